package graph_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbundle/tsb/internal/compiler"
	"github.com/tsbundle/tsb/internal/config"
	"github.com/tsbundle/tsb/internal/fs"
	"github.com/tsbundle/tsb/internal/graph"
	"github.com/tsbundle/tsb/internal/idreg"
	"github.com/tsbundle/tsb/internal/logger"
	"github.com/tsbundle/tsb/internal/modcache"
	"github.com/tsbundle/tsb/internal/queue"
	"github.com/tsbundle/tsb/internal/refine"
	"github.com/tsbundle/tsb/internal/resolver"
)

// identityFrontEnd is a fake compiler.FrontEnd that performs no TypeScript
// transform at all, since the fixtures in this file are already plain JS;
// this keeps these tests independent of esbuild's exact output shape.
type identityFrontEnd struct{}

func (identityFrontEnd) Transform(sourceText string, kind config.ScriptKind, sourcePath string, inlineSourceMap bool) compiler.TransformResult {
	return compiler.TransformResult{Code: sourceText}
}

func (identityFrontEnd) TransformDTS(sourceText string, kind config.ScriptKind, sourcePath string) compiler.DTSResult {
	return compiler.ExtractDeclaration(sourceText)
}

// writeFiles materializes real files under t.TempDir(), since
// resolver.StatMtime stats the real filesystem rather than going through
// fs.FS, so every fixture module needs to genuinely exist on disk.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newDriver(t *testing.T, root string, opts config.BundlerOptions) *graph.Driver {
	t.Helper()
	cacheDir := t.TempDir()
	vfs, err := fs.RealFS(fs.RealFSOptions{AbsWorkingDir: root})
	require.NoError(t, err)
	r := &refine.Refiner{
		FS:        vfs,
		Resolver:  resolver.New(vfs, opts),
		FrontEnd:  identityFrontEnd{},
		DiskCache: modcache.NewDiskCache(cacheDir),
		MemCache:  modcache.NewMemCache(1<<20, time.Minute),
		Registry:  idreg.New(filepath.Join(cacheDir, "registry.json")),
		Log:       logger.NewDeferLog(),
		Options:   opts,
	}
	q := queue.New(4)
	return graph.NewDriver(r, q, opts.CheckCircularDependency)
}

func TestDriverRunDiscoversChildAndWritesInOrder(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.js": "import { a } from './a';\nconsole.log(a);\n",
		"a.js":     "export const a = 1;\n",
	})
	d := newDriver(t, root, config.BundlerOptions{})

	err := d.Run(filepath.Join(root, "entry.js"), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ErrorCount())

	items := d.Drain()
	require.Len(t, items, 2)
	assert.Equal(t, filepath.Join(root, "entry.js"), items[0].Module.AbsolutePath)
	assert.True(t, items[0].Module.IsEntry)
	assert.Equal(t, filepath.Join(root, "a.js"), items[1].Module.AbsolutePath)
}

func TestDriverRunReportsMissingModule(t *testing.T) {
	root := writeFiles(t, map[string]string{})
	d := newDriver(t, root, config.BundlerOptions{})

	err := d.Run(filepath.Join(root, "does-not-exist.js"), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, d.ErrorCount())

	items := d.Drain()
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Refined)
	assert.True(t, items[0].Module.Missing)
}

func TestDriverRunDetectsCircularDependency(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.js": "import { b } from './b';\n",
		"b.js": "import { a } from './a';\n",
	})
	d := newDriver(t, root, config.BundlerOptions{CheckCircularDependency: true})

	err := d.Run(filepath.Join(root, "a.js"), nil, false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Circular dependency detected")
}

func TestDriverDrainClearsBuffer(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.js": "console.log(1);\n",
	})
	d := newDriver(t, root, config.BundlerOptions{})

	require.NoError(t, d.Run(filepath.Join(root, "entry.js"), nil, false))
	first := d.Drain()
	require.Len(t, first, 1)
	assert.Empty(t, d.Drain())
}
