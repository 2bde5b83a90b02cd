package refine_test

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
	"github.com/tsbundle/tsb/internal/idreg"
	"github.com/tsbundle/tsb/internal/logger"
	"github.com/tsbundle/tsb/internal/modcache"
	"github.com/tsbundle/tsb/internal/refine"
	"github.com/tsbundle/tsb/internal/resolver"
)

// identityFrontEnd performs no TypeScript transform, matching the graph
// package's own test stub: the fixtures below are already plain JS, so the
// refiner's own splicing is what's under test here, not esbuild's output.
type identityFrontEnd struct{}

func (identityFrontEnd) Transform(sourceText string, kind config.ScriptKind, sourcePath string, inlineSourceMap bool) compiler.TransformResult {
	return compiler.TransformResult{Code: sourceText}
}

func (identityFrontEnd) TransformDTS(sourceText string, kind config.ScriptKind, sourcePath string) compiler.DTSResult {
	return compiler.ExtractDeclaration(sourceText)
}

// writeFiles materializes real files under t.TempDir(), since
// resolver.StatMtime stats the real filesystem rather than going through
// fs.FS.
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

func newRefiner(t *testing.T, root string, opts config.BundlerOptions) (*refine.Refiner, logger.Log) {
	t.Helper()
	cacheDir := t.TempDir()
	vfs, err := fs.RealFS(fs.RealFSOptions{AbsWorkingDir: root})
	require.NoError(t, err)
	log := logger.NewDeferLog()
	r := &refine.Refiner{
		FS:        vfs,
		Resolver:  resolver.New(vfs, opts),
		FrontEnd:  identityFrontEnd{},
		DiskCache: modcache.NewDiskCache(cacheDir),
		MemCache:  modcache.NewMemCache(1<<20, time.Minute),
		Registry:  idreg.New(filepath.Join(cacheDir, "registry.json")),
		Log:       log,
		Options:   opts,
	}
	return r, log
}

func TestRefineRewritesLocalImportToRegistryCall(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.js": "import { a } from './a';\nconsole.log(a);\n",
		"a.js":     "export const a = 1;\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.js"), true, false)
	require.NoError(t, err)
	require.False(t, rm.Errored)
	assert.Contains(t, rm.Content, "__tsb.a()")
	require.Len(t, rm.Imports, 1)
	assert.Equal(t, filepath.Join(root, "a.js"), rm.Imports[0].AbsolutePath)
	assert.Equal(t, config.NoExternal, rm.Imports[0].ExternalMode)
}

func TestRefinePropagatesNeedDeclarationToBundledImports(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "import { a } from './a';\nexport const b: number = a;\n",
		"a.ts":     "export const a = 1;\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, true)
	require.NoError(t, err)
	require.False(t, rm.Errored)
	require.Len(t, rm.Imports, 1)
	assert.True(t, rm.Imports[0].NeedDeclaration)
	assert.Contains(t, rm.Declaration, "function _entry(): {")
	assert.Contains(t, rm.Declaration, "b: number;")
}

func TestRefineSkipsDeclarationWhenNotRequested(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "import { a } from './a';\n",
		"a.ts":     "export const a = 1;\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, false)
	require.NoError(t, err)
	require.Len(t, rm.Imports, 1)
	assert.False(t, rm.Imports[0].NeedDeclaration)
	assert.Empty(t, rm.Declaration)
}

func TestRefineRewritesDunderFilenameAndDirname(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"src/entry.js": "console.log(__filename, __dirname);\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "src/entry.js"), true, false)
	require.NoError(t, err)
	require.False(t, rm.Errored)
	assert.Contains(t, rm.Content, `__tsb.__resolve("src/entry.js")`)
	assert.Contains(t, rm.Content, `__tsb.__resolve("src")`)

	var manual []refine.ImportInfo
	for _, imp := range rm.Imports {
		if imp.ExternalMode == config.Manual {
			manual = append(manual, imp)
		}
	}
	require.Len(t, manual, 2)
}

func TestRefineRewritesGlobalAndImportMetaURL(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.js": "global.x = 1;\nconsole.log(import.meta.url);\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.js"), true, false)
	require.NoError(t, err)
	assert.Contains(t, rm.Content, "__tsb.__global.x = 1;")
	assert.Contains(t, rm.Content, `__tsb.__resolve("entry.js")`)
}

func TestRefineExpandsImportRawMarker(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "const data = importRaw<'./data.txt'>();\n",
		"data.txt": "hello world",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, false)
	require.NoError(t, err)
	require.False(t, rm.Errored)
	assert.Contains(t, rm.Content, `"hello world"`)
	assert.NotContains(t, rm.Content, "importRaw")
}

func TestRefineExpandsReflectMarkerWithoutReflecter(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "const t = reflect<MyInterface>();\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, false)
	require.NoError(t, err)
	require.False(t, rm.Errored)
	assert.Contains(t, rm.Content, `"MyInterface"`)
}

func TestRefineExpandsReflectMarkerWithReflecter(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "const t = reflect<MyInterface>();\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})
	r.Reflecter = func(typeArgText string) (string, error) {
		return "{kind:" + `"` + typeArgText + `"` + "}", nil
	}

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, false)
	require.NoError(t, err)
	assert.Contains(t, rm.Content, `{kind:"MyInterface"}`)
}

func TestRefineReportsWrongUsageForEmptyReflectArgument(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "const t = reflect<>();\n",
	})
	r, log := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, false)
	require.NoError(t, err)
	assert.Contains(t, rm.Content, "undefined")

	msgs := log.Done()
	require.Len(t, msgs, 1)
	assert.Equal(t, logger.MsgID_WrongUsage, msgs[0].ID)
	assert.Contains(t, msgs[0].Data.Text, "reflect<>()")
}

func TestRefineReportsWrongUsageForUnreadableImportRaw(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "const data = importRaw<'./missing.txt'>();\n",
	})
	r, log := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, false)
	require.NoError(t, err)
	assert.Contains(t, rm.Content, "undefined")

	msgs := log.Done()
	require.Len(t, msgs, 1)
	assert.Equal(t, logger.MsgID_WrongUsage, msgs[0].ID)
	assert.Contains(t, msgs[0].Data.Text, "importRaw")
}

func TestRefineDeclarationQualifiesCrossModuleImportType(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"entry.ts": "export type T = import('./a').A;\n",
		"a.ts":     "export interface A { x: number; }\n",
	})
	r, _ := newRefiner(t, root, config.BundlerOptions{})

	rm, err := r.Refine(filepath.Join(root, "entry.ts"), true, true)
	require.NoError(t, err)
	require.False(t, rm.Errored)
	assert.Contains(t, rm.Declaration, "__tsb.a.A")
	assert.NotContains(t, rm.Declaration, "import(")
}
