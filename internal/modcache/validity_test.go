package modcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsbundle/tsb/internal/modcache"
)

func freshRecord(relativePath string) modcache.Record {
	return modcache.Record{
		SourceMtime: 100,
		Content:     "// " + relativePath + "\nexports.a = 1;\n",
	}
}

func TestIsFreshAcceptsMatchingGuardAndStamps(t *testing.T) {
	r := freshRecord("src/a.ts")
	ok := modcache.IsFresh(r, 200, modcache.Stamps{SourceMtime: 100}, "src/a.ts")
	assert.True(t, ok)
}

func TestIsFreshRejectsStaleSource(t *testing.T) {
	r := freshRecord("src/a.ts")
	ok := modcache.IsFresh(r, 50, modcache.Stamps{SourceMtime: 100}, "src/a.ts")
	assert.False(t, ok)
}

func TestIsFreshRejectsMismatchedGuardLine(t *testing.T) {
	r := freshRecord("src/a.ts")
	// Same integer id, different absolute path reused after eviction.
	ok := modcache.IsFresh(r, 200, modcache.Stamps{SourceMtime: 100}, "src/b.ts")
	assert.False(t, ok)
}

func TestIsFreshRejectsStaleDeclarationWhenWanted(t *testing.T) {
	r := freshRecord("src/a.ts")
	ok := modcache.IsFresh(r, 150, modcache.Stamps{SourceMtime: 100, DTSMtime: 200, WantDTS: true}, "src/a.ts")
	assert.False(t, ok)
}

func TestIsFreshIgnoresDeclarationStampWhenNotWanted(t *testing.T) {
	r := freshRecord("src/a.ts")
	ok := modcache.IsFresh(r, 150, modcache.Stamps{SourceMtime: 100, DTSMtime: 200, WantDTS: false}, "src/a.ts")
	assert.True(t, ok)
}
