package modcache

import "strings"

// Stamps are the three modification times a cache entry is validated
// against (spec §4.B).
type Stamps struct {
	SourceMtime   int64
	DTSMtime      int64 // 0 if no .d.ts sibling exists
	TsconfigMtime int64
	WantDTS       bool // declarations were requested for this build
}

// IsFresh implements the validity predicate of spec §4.B: the cache_mtime
// (this process's read of the file's own modification time, passed in as
// cacheMtime) must be at or after every stamp that applies, and the stored
// first line must match "// <relative path>" to guard against id reuse
// across different absolute paths sharing a freed integer id.
func IsFresh(r Record, cacheMtime int64, stamps Stamps, relativePath string) bool {
	if cacheMtime < stamps.TsconfigMtime {
		return false
	}
	if cacheMtime < stamps.SourceMtime {
		return false
	}
	if stamps.WantDTS && stamps.DTSMtime != 0 && cacheMtime < stamps.DTSMtime {
		return false
	}
	// The refiner always prepends a "// <relative path>" guard comment as
	// the literal first line of Content (distinct from any preserved
	// shebang, which lives in FirstLineComment) so that a cache entry
	// whose integer id was reused for a different absolute path is never
	// mistaken for a hit.
	want := "// " + relativePath
	got := strings.TrimRight(firstLine(r.Content), "\r")
	return got == want
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
