package api_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbundle/tsb/internal/maincontext"
	"github.com/tsbundle/tsb/pkg/api"
)

// writeFixture materializes a real on-disk project, since
// resolver.StatMtime and fs.RealFS both require genuine files rather than
// an in-memory fixture.
func writeFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newMainContext(t *testing.T) *maincontext.MainContext {
	t.Helper()
	return maincontext.New(maincontext.Config{CacheDir: t.TempDir()})
}

// TestBundleSingleFile exercises spec §8's simplest scenario: one entry
// point with no imports at all.
func TestBundleSingleFile(t *testing.T) {
	root := writeFixture(t, map[string]string{
		"entry.js": "console.log('hello');\n",
	})
	mc := newMainContext(t)

	results, err := api.Bundle(context.Background(), mc, api.Options{
		EntryPaths: []string{filepath.Join(root, "entry.js")},
		Module:     "commonjs",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Empty(t, res.Diagnostics)
	assert.Contains(t, res.JS, "console.log('hello')")
	assert.Contains(t, res.JS, "module.exports")
}

// TestBundleWithLocalImport exercises spec §8's "one local import" scenario.
func TestBundleWithLocalImport(t *testing.T) {
	root := writeFixture(t, map[string]string{
		"entry.js": "import { greet } from './greet';\nconsole.log(greet('world'));\n",
		"greet.js": "export function greet(name) { return 'hi ' + name; }\n",
	})
	mc := newMainContext(t)

	results, err := api.Bundle(context.Background(), mc, api.Options{
		EntryPaths: []string{filepath.Join(root, "entry.js")},
		Module:     "commonjs",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Empty(t, res.Diagnostics)
	assert.Contains(t, res.JS, "greet(name)")
	assert.Contains(t, res.JS, "__tsb.greet()")
	assert.Equal(t, 2, res.RefinementCount)
}

// TestBundleWithExternalImport exercises spec §8's "external import"
// scenario: a bare package specifier left untouched for the host runtime's
// own require().
func TestBundleWithExternalImport(t *testing.T) {
	root := writeFixture(t, map[string]string{
		"entry.js": "const fs = require('fs');\nconsole.log(fs);\n",
	})
	mc := newMainContext(t)

	results, err := api.Bundle(context.Background(), mc, api.Options{
		EntryPaths: []string{filepath.Join(root, "entry.js")},
		Module:     "commonjs",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Empty(t, res.Diagnostics)
	assert.Contains(t, res.JS, "require('fs')")
}

// TestBundleWithJSONImport exercises spec §8's "JSON import" scenario.
func TestBundleWithJSONImport(t *testing.T) {
	root := writeFixture(t, map[string]string{
		"entry.js": "import data from './data.json';\nconsole.log(data.version);\n",
		"data.json": `{"version": "1.2.3"}`,
	})
	mc := newMainContext(t)

	results, err := api.Bundle(context.Background(), mc, api.Options{
		EntryPaths: []string{filepath.Join(root, "entry.js")},
		Module:     "commonjs",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Empty(t, res.Diagnostics)
	assert.Contains(t, res.JS, `module.exports = {"version": "1.2.3"};`)
	assert.Contains(t, res.JS, "__tsb.data()")
}

// TestBundleEmitsDeclarationWhenRequested exercises the declaration-file
// output end to end, across a local import boundary.
func TestBundleEmitsDeclarationWhenRequested(t *testing.T) {
	root := writeFixture(t, map[string]string{
		"entry.ts": "import { greet } from './greet';\nexport const message: string = greet('world');\n",
		"greet.ts": "export function greet(name: string): string { return 'hi ' + name; }\n",
	})
	mc := newMainContext(t)

	results, err := api.Bundle(context.Background(), mc, api.Options{
		EntryPaths:      []string{filepath.Join(root, "entry.ts")},
		Module:          "commonjs",
		EmitDeclaration: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Empty(t, res.Diagnostics)
	assert.Contains(t, res.Declaration, "declare namespace __tsb {")
	assert.Contains(t, res.Declaration, "greet(")
	assert.Contains(t, res.Declaration, "message: string;")
}
