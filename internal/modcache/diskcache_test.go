package modcache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsbundle/tsb/internal/modcache"
)

func TestDiskCacheWriteReadRoundTrip(t *testing.T) {
	c := modcache.NewDiskCache(t.TempDir())

	rec := modcache.Record{
		SourceMtime:   100,
		DTSMtime:      200,
		TsconfigMtime: 300,
		Imports: []modcache.ImportRecord{
			{AbsolutePath: "/project/b.ts", ModulePath: "./b", Line: 1, Column: 0},
		},
		FirstLineComment: "#!/usr/bin/env node",
		Content:          "// a.ts\nexports.a = 1;\n",
		Declaration:      "declare const a: number;",
	}

	require.NoError(t, c.Write(7, rec))

	got, ok := c.Read(7)
	require.True(t, ok)
	assert.Equal(t, rec.SourceMtime, got.SourceMtime)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.FirstLineComment, got.FirstLineComment)
	assert.Len(t, got.Imports, 1)
	assert.Equal(t, "./b", got.Imports[0].ModulePath)
}

func TestDiskCacheReadMissReportsMissing(t *testing.T) {
	c := modcache.NewDiskCache(t.TempDir())
	_, ok := c.Read(42)
	assert.False(t, ok)
}

func TestDiskCacheReadRejectsTruncatedRecord(t *testing.T) {
	dir := t.TempDir()
	c := modcache.NewDiskCache(dir)
	require.NoError(t, c.Write(1, modcache.Record{Content: "hello"}))

	// Corrupt the signature trailer.
	path := filepath.Join(dir, "1")
	require.NoError(t, os.WriteFile(path, []byte("not a valid cache record"), 0o644))

	_, ok := c.Read(1)
	assert.False(t, ok)
}

func TestDiskCacheEvictRemovesEntry(t *testing.T) {
	c := modcache.NewDiskCache(t.TempDir())
	require.NoError(t, c.Write(3, modcache.Record{Content: "x"}))
	c.Evict(3)
	_, ok := c.Read(3)
	assert.False(t, ok)
}
