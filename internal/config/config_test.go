package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsbundle/tsb/internal/config"
)

func TestScriptKindFromPath(t *testing.T) {
	cases := map[string]config.ScriptKind{
		"a.ts":        config.TS,
		"a.tsx":       config.TSX,
		"a.js":        config.JS,
		"a.mjs":       config.JS,
		"a.cjs":       config.JS,
		"a.jsx":       config.JSX,
		"a.json":      config.JSON,
		"a.d.ts":      config.DTS,
		"a.whatever":  config.Unknown,
	}
	for path, want := range cases {
		assert.Equal(t, want, config.ScriptKindFromPath(path), path)
	}
}

func TestByteSize(t *testing.T) {
	cases := []struct {
		text string
		want int64
		ok   bool
	}{
		{"", 64, true},
		{"512", 512, true},
		{"1K", 1 << 10, true},
		{"2M", 2 << 20, true},
		{"1G", 1 << 30, true},
		{"1T", 1 << 40, true},
		{"abc", 0, false},
		{"K", 0, false},
	}
	for _, c := range cases {
		got, ok := config.ByteSize(c.text, 64)
		assert.Equal(t, c.ok, ok, c.text)
		if c.ok {
			assert.Equal(t, c.want, got, c.text)
		}
	}
}

func TestParseModuleMode(t *testing.T) {
	rule, name, ok := config.ParseModuleMode("")
	assert.True(t, ok)
	assert.Equal(t, config.ExportNone, rule)
	assert.Equal(t, "", name)

	rule, _, ok = config.ParseModuleMode("commonjs")
	assert.True(t, ok)
	assert.Equal(t, config.ExportCommonJS, rule)

	rule, name, ok = config.ParseModuleMode("const Foo")
	assert.True(t, ok)
	assert.Equal(t, config.ExportConst, rule)
	assert.Equal(t, "Foo", name)

	_, _, ok = config.ParseModuleMode("var ")
	assert.False(t, ok)

	_, _, ok = config.ParseModuleMode("bogus")
	assert.False(t, ok)
}
