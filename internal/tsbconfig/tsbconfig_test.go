package tsbconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbundle/tsb/internal/tsbconfig"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadYAMLAppliesBundlerOptions(t *testing.T) {
	p := writeConfig(t, "tsb.config.yaml", `
entry: src/index.ts
output: dist/out.js
bundlerOptions:
  module: commonjs
  exportLib: true
  externals:
    - "./vendor/*"
  checkCircularDependency: true
`)
	opts, err := tsbconfig.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "commonjs", opts.Module)
	assert.True(t, opts.ExportLib)
	assert.Equal(t, []string{"./vendor/*"}, opts.Externals)
	assert.True(t, opts.CheckCircularDependency)
	require.Len(t, opts.Entries, 1)
	assert.Equal(t, "dist/out.js", opts.Entries[0].Output)
}

func TestLoadJSONAppliesBundlerOptions(t *testing.T) {
	p := writeConfig(t, "tsb.config.json", `{
		"entry": "src/index.ts",
		"output": "dist/out.js",
		"bundlerOptions": {"module": "es2015", "verbose": true}
	}`)
	opts, err := tsbconfig.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "es2015", opts.Module)
	assert.True(t, opts.Verbose)
}

func TestLoadDefaultsWhenBundlerOptionsOmitted(t *testing.T) {
	p := writeConfig(t, "tsb.config.yaml", `entry: src/index.ts`)
	opts, err := tsbconfig.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "none", opts.Module)
	assert.Equal(t, "1G", opts.CacheMemory)
}

func TestLoadMultiEntryArray(t *testing.T) {
	p := writeConfig(t, "tsb.config.yaml", `
entry:
  - src/a.ts
  - src/b.ts
`)
	opts, err := tsbconfig.Load(p)
	require.NoError(t, err)
	assert.Len(t, opts.Entries, 2)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := tsbconfig.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
