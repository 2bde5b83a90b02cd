// Package idreg implements the Identifier Registry (spec component A): it
// assigns each absolute file path a stable small integer id and a unique
// JavaScript-safe variable name, and persists that mapping across runs so
// that repeated builds of the same output reuse the same ids.
//
// The on-disk shape and the free-id/eviction bookkeeping follow the same
// "snapshot + version guard" pattern the teacher's cache package used for
// its own persisted JSON documents.
package idreg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tsbundle/tsb/internal/config"
)

// CacheVersion is compared against a persisted registry's Version field;
// on mismatch the whole registry is discarded and rebuilt from scratch.
const CacheVersion = 1

// retentionWindow is how long an unused registry is kept before it is
// dropped at save time (spec §4.A).
const retentionWindow = 24 * time.Hour

var reservedVarNames = map[string]bool{
	"_": true, "entry": true, "require": true,
}

// jsKeywords are never allocated as a bare var_name; a "_" prefix is used
// instead, per spec §4.A.
var jsKeywords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "export": true, "extends": true, "finally": true,
	"for": true, "function": true, "if": true, "import": true, "in": true,
	"instanceof": true, "new": true, "return": true, "super": true,
	"switch": true, "this": true, "throw": true, "try": true, "typeof": true,
	"var": true, "void": true, "while": true, "with": true, "yield": true,
	"let": true, "static": true, "enum": true, "await": true, "implements": true,
	"package": true, "protected": true, "interface": true, "private": true,
	"public": true, "null": true, "true": true, "false": true,
}

var invalidIdentChar = regexp.MustCompile(`[^A-Za-z0-9_$]`)
var leadingDigit = regexp.MustCompile(`^[0-9]`)

// ModuleId is the immutable record of spec §3. Once allocated it is never
// mutated; a path's ModuleId is stable for the lifetime of the registry.
type ModuleId struct {
	IntegerId    uint32           `json:"id"`
	VarName      string           `json:"name"`
	AbsolutePath string           `json:"path"`
	Kind         config.ScriptKind `json:"-"`
}

type persistedEntry struct {
	IntegerId    uint32 `json:"id"`
	VarName      string `json:"name"`
	AbsolutePath string `json:"path"`
}

type persistedRegistry struct {
	Version         int              `json:"version"`
	RetainUntilUnix int64            `json:"retainUntil"`
	Entries         []persistedEntry `json:"entries"`
	LastId          uint32           `json:"lastId"`
	FreeIds         []uint32         `json:"freeIds"`
}

// IdRegistry is the mapping for one output file: absolute_path -> ModuleId,
// a free-id list reused from deletions, and a cache-retention timestamp.
// It is owned by the process-wide MainContext and shared read-mostly with
// each concurrent Bundler (spec §3 Ownership).
type IdRegistry struct {
	mu            sync.Mutex
	path          string // where the registry JSON is persisted
	byPath        map[string]*ModuleId
	varNamesInUse map[string]bool
	lastId        uint32
	freeIds       []uint32
	retainUntil   time.Time
	dirty         bool
}

// New creates an empty, unpersisted registry for the given persistence
// path (the on-disk location described in spec §4.A).
func New(persistPath string) *IdRegistry {
	return &IdRegistry{
		path:          persistPath,
		byPath:        make(map[string]*ModuleId),
		varNamesInUse: make(map[string]bool),
		retainUntil:   time.Now().Add(retentionWindow),
	}
}

// Load restores a registry from disk, per spec §4.A's persistence rules.
// A version mismatch or unreadable file yields a fresh, empty registry
// rather than an error, matching "on mismatch the whole registry is
// discarded".
func Load(persistPath string) *IdRegistry {
	reg := New(persistPath)
	data, err := os.ReadFile(persistPath)
	if err != nil {
		return reg
	}
	var p persistedRegistry
	if err := json.Unmarshal(data, &p); err != nil || p.Version != CacheVersion {
		return reg
	}
	seen := make(map[uint32]bool, len(p.Entries))
	for _, e := range p.Entries {
		if seen[e.IntegerId] {
			// Catastrophic corruption: duplicate integer id. Skip the
			// offending entry and keep going (spec §4.A).
			continue
		}
		seen[e.IntegerId] = true
		id := &ModuleId{IntegerId: e.IntegerId, VarName: e.VarName, AbsolutePath: e.AbsolutePath,
			Kind: config.ScriptKindFromPath(e.AbsolutePath)}
		reg.byPath[e.AbsolutePath] = id
		reg.varNamesInUse[e.VarName] = true
	}
	reg.lastId = p.LastId
	reg.freeIds = append([]uint32(nil), p.FreeIds...)
	if p.RetainUntilUnix > 0 {
		reg.retainUntil = time.Unix(p.RetainUntilUnix, 0)
	}
	return reg
}

// sanitizeBaseName implements the var_name derivation rule of spec §4.A:
// basename minus extension (or the parent directory's name for an "index"
// basename), sanitized to a valid JS identifier.
func sanitizeBaseName(absolutePath string) string {
	base := filepath.Base(absolutePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "index" {
		base = filepath.Base(filepath.Dir(absolutePath))
	}
	base = invalidIdentChar.ReplaceAllString(base, "_")
	if base == "" {
		base = "_"
	}
	if leadingDigit.MatchString(base) {
		base = "_" + base
	}
	if jsKeywords[base] || reservedVarNames[base] {
		base = "_" + base
	}
	return base
}

// GetOrAllocate returns the ModuleId for absolutePath, allocating one if
// this is the first reference. The mode parameter only affects how an
// import is later classified (spec §3's ExternalMode); it has no bearing
// on id allocation itself.
func (r *IdRegistry) GetOrAllocate(absolutePath string, mode config.ExternalMode) *ModuleId {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPath[absolutePath]; ok {
		return id
	}

	base := sanitizeBaseName(absolutePath)
	varName := base
	for n := 2; r.varNamesInUse[varName]; n++ {
		// Spec §4.A / §9 resolves the var_name collision ambiguity as
		// "always suffix to keep uniqueness" — never silently reuse a
		// prior allocation for a different absolute path.
		varName = fmt.Sprintf("%s%d", base, n)
	}
	r.varNamesInUse[varName] = true

	var integerId uint32
	if n := len(r.freeIds); n > 0 {
		integerId = r.freeIds[n-1]
		r.freeIds = r.freeIds[:n-1]
	} else {
		r.lastId++
		integerId = r.lastId
	}

	id := &ModuleId{
		IntegerId:    integerId,
		VarName:      varName,
		AbsolutePath: absolutePath,
		Kind:         config.ScriptKindFromPath(absolutePath),
	}
	r.byPath[absolutePath] = id
	r.dirty = true
	r.touch()
	return id
}

// Delete frees absolutePath's id, returning it to the free list for reuse.
// Callers are responsible for deleting the corresponding cache file under
// the id's namelock (spec §4.A, §5) before or after calling this.
func (r *IdRegistry) Delete(absolutePath string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPath[absolutePath]
	if !ok {
		return 0, false
	}
	delete(r.byPath, absolutePath)
	delete(r.varNamesInUse, id.VarName)
	r.freeIds = append(r.freeIds, id.IntegerId)
	r.dirty = true
	return id.IntegerId, true
}

// Lookup returns the ModuleId already allocated for absolutePath, if any,
// without allocating.
func (r *IdRegistry) Lookup(absolutePath string) (*ModuleId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPath[absolutePath]
	return id, ok
}

// touch pushes the retention deadline forward by 24h; callers must hold r.mu.
func (r *IdRegistry) touch() {
	r.retainUntil = time.Now().Add(retentionWindow)
}

// Expired reports whether this registry's retention timestamp has passed,
// making it eligible to be dropped at save time (spec §4.A).
func (r *IdRegistry) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Now().After(r.retainUntil)
}

// Snapshot serializes the registry's current state, without writing it to
// disk. Save calls this internally; MainContext may call it directly when
// composing a multi-registry flush.
func (r *IdRegistry) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := persistedRegistry{
		Version:         CacheVersion,
		RetainUntilUnix: r.retainUntil.Unix(),
		LastId:          r.lastId,
		FreeIds:         append([]uint32(nil), r.freeIds...),
	}
	for path, id := range r.byPath {
		p.Entries = append(p.Entries, persistedEntry{IntegerId: id.IntegerId, VarName: id.VarName, AbsolutePath: path})
	}
	data, _ := json.MarshalIndent(p, "", "  ")
	return data
}

// Save persists the registry to disk, unless it has expired, in which case
// the on-disk file is removed instead (spec §4.A eviction rule). A registry
// with no unsaved changes is not rewritten. Returns an error only when the
// directory or the file cannot be written.
func (r *IdRegistry) Save() error {
	if r.Expired() {
		os.Remove(r.path)
		return nil
	}
	if !r.isDirty() {
		return nil
	}
	data := r.Snapshot()
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return err
	}
	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
	return nil
}

func (r *IdRegistry) isDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Restore re-reads the registry from disk, discarding in-memory state.
// Equivalent to Load but reusing the existing path and mutex.
func (r *IdRegistry) Restore() {
	fresh := Load(r.path)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPath = fresh.byPath
	r.varNamesInUse = fresh.varNamesInUse
	r.lastId = fresh.lastId
	r.freeIds = fresh.freeIds
	r.retainUntil = fresh.retainUntil
	r.dirty = false
}
