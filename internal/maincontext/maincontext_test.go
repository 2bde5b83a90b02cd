package maincontext_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbundle/tsb/internal/logger"
	"github.com/tsbundle/tsb/internal/maincontext"
)

func newTestContext(t *testing.T) *maincontext.MainContext {
	t.Helper()
	return maincontext.New(maincontext.Config{CacheDir: t.TempDir()})
}

func TestClaimOutputRejectsDuplicate(t *testing.T) {
	mc := newTestContext(t)
	require.NoError(t, mc.ClaimOutput("/dist/out.js"))
	err := mc.ClaimOutput("/dist/out.js")
	assert.Error(t, err)
}

func TestReleaseOutputAllowsReclaim(t *testing.T) {
	mc := newTestContext(t)
	require.NoError(t, mc.ClaimOutput("/dist/out.js"))
	mc.ReleaseOutput("/dist/out.js")
	assert.NoError(t, mc.ClaimOutput("/dist/out.js"))
}

func TestIncrementErrorsAccumulates(t *testing.T) {
	mc := newTestContext(t)
	mc.IncrementErrors(2)
	mc.IncrementErrors(3)
	assert.Equal(t, 5, mc.ErrorCount())
}

func TestRegistryForReturnsStableInstance(t *testing.T) {
	mc := newTestContext(t)
	a := mc.RegistryFor("/dist/out.js")
	b := mc.RegistryFor("/dist/out.js")
	assert.Same(t, a, b)
}

func TestRegistryForDiffersAcrossOutputs(t *testing.T) {
	mc := newTestContext(t)
	a := mc.RegistryFor("/dist/a.js")
	b := mc.RegistryFor("/dist/b.js")
	assert.NotSame(t, a, b)
}

func TestFlushSavesTouchedRegistries(t *testing.T) {
	dir := t.TempDir()
	mc := maincontext.New(maincontext.Config{CacheDir: dir})
	reg := mc.RegistryFor("/dist/out.js")
	reg.GetOrAllocate("/project/src/a.ts", 0)

	mc.Flush(logger.NewDeferLog())

	entries, err := filepath.Glob(filepath.Join(dir, "registry-*.json"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
