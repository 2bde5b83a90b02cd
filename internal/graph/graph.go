// Package graph implements the Graph Driver (spec component D): it owns
// the set of known modules for one build, schedules refinement through the
// concurrency queue, receives child-import lists and enqueues them, and
// detects circular import paths. Grounded on the teacher's own bundler
// driver loop (internal/bundler's parallel module walk in the original
// esbuild tree), adapted from esbuild's full linking graph down to this
// system's much smaller "discover, refine, write" loop.
package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tsbundle/tsb/internal/config"
	"github.com/tsbundle/tsb/internal/queue"
	"github.com/tsbundle/tsb/internal/refine"
)

// CheckState is a BundlerModule's DFS visitation state for cycle
// detection (spec §3, §4.D).
type CheckState uint8

const (
	StateNone CheckState = iota
	StateEntered
	StateChecked
)

// BundlerModule is the in-memory working node for one absolute path
// during one build (spec §3). Its lifetime equals one bundle invocation;
// it is never shared across runs.
type BundlerModule struct {
	AbsolutePath    string
	ModulePath      string // as written by whichever import first referenced it
	IsEntry         bool
	IsAppended      bool
	NeedDeclaration bool
	CheckState      CheckState

	Refined  *refine.RefinedModule
	Children []string // absolute paths, populated once refinement completes
	Parent   string   // absolute path of the discoverer
	Missing  bool
}

// WriteItem is one unit handed to the single-consumer writer queue, in
// the exact order refinement completions are committed (spec §4.D, §5's
// non-negotiable ordering contract).
type WriteItem struct {
	Module  *BundlerModule
	Refined *refine.RefinedModule // nil if the module could not be found
}

// Driver runs one build's graph traversal.
type Driver struct {
	Refiner *refine.Refiner
	Queue   *queue.Queue

	mu      sync.Mutex
	modules map[string]*BundlerModule

	writerMu sync.Mutex
	writeSeq []WriteItem // buffered in submission order; flushed by Drain

	checkCircular bool

	errCount int
}

func NewDriver(r *refine.Refiner, q *queue.Queue, checkCircular bool) *Driver {
	return &Driver{
		Refiner:       r,
		Queue:         q,
		modules:       make(map[string]*BundlerModule),
		checkCircular: checkCircular,
	}
}

func (d *Driver) getOrCreate(absolutePath, modulePath, parent string) *BundlerModule {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.modules[absolutePath]; ok {
		return m
	}
	m := &BundlerModule{AbsolutePath: absolutePath, ModulePath: modulePath, Parent: parent}
	d.modules[absolutePath] = m
	return m
}

// Run implements spec §4.D's algorithm: a breadth-by-wavefront discovery
// loop, submitting refinement to the queue and committing completions,
// in submission order, to the writer sequence.
func (d *Driver) Run(entryPath string, libPaths []string, needDeclaration bool) error {
	entry := d.getOrCreate(entryPath, entryPath, "")
	entry.IsEntry = true
	entry.NeedDeclaration = needDeclaration

	nextTargets := []*BundlerModule{entry}
	for _, lib := range libPaths {
		nextTargets = append(nextTargets, d.getOrCreate(lib, lib, ""))
	}

	for len(nextTargets) > 0 {
		current := nextTargets
		nextTargets = nil

		type completion struct {
			module  *BundlerModule
			refined *refine.RefinedModule
			err     error
		}
		results := make([]completion, len(current))

		var wg sync.WaitGroup
		for i, m := range current {
			if m.IsAppended {
				continue
			}
			m.IsAppended = true
			i, m := i, m
			wg.Add(1)
			d.Queue.Run(m.AbsolutePath, func() error {
				defer wg.Done()
				refined, err := d.Refiner.Refine(m.AbsolutePath, m.IsEntry, m.NeedDeclaration)
				results[i] = completion{module: m, refined: refined, err: err}
				return nil // per-module errors are reported, not queue-poisoning
			})
		}
		wg.Wait()

		if err := d.Queue.Error(); err != nil {
			return err
		}

		// Commit completions in submission order (the writer queue's
		// single-consumer FIFO discipline, spec §4.D/§5).
		for _, c := range results {
			if c.module == nil {
				continue
			}
			if c.err != nil || c.refined == nil || c.refined.Errored {
				c.module.Missing = c.err != nil
				d.enqueueWrite(WriteItem{Module: c.module, Refined: nil})
				d.errCount++
				continue
			}
			c.module.Refined = c.refined
			for _, imp := range c.refined.Imports {
				if imp.ExternalMode != config.NoExternal {
					continue // pre-registered by the refiner itself
				}
				child := d.getOrCreate(imp.AbsolutePath, imp.ModulePath, c.module.AbsolutePath)
				if imp.NeedDeclaration {
					child.NeedDeclaration = true
				}
				if !child.IsAppended {
					nextTargets = append(nextTargets, child)
				}
				c.module.Children = append(c.module.Children, imp.AbsolutePath)
			}
			d.enqueueWrite(WriteItem{Module: c.module, Refined: c.refined})
		}
	}

	if d.checkCircular {
		if cycle := d.detectCycle(entryPath); cycle != "" {
			return fmt.Errorf("Circular dependency detected: %s", cycle)
		}
	}

	return nil
}

func (d *Driver) enqueueWrite(item WriteItem) {
	d.writerMu.Lock()
	defer d.writerMu.Unlock()
	d.writeSeq = append(d.writeSeq, item)
}

// Drain returns every write item accumulated so far, in commit order, and
// clears the internal buffer. The output assembler calls this once after
// Run returns.
func (d *Driver) Drain() []WriteItem {
	d.writerMu.Lock()
	defer d.writerMu.Unlock()
	items := d.writeSeq
	d.writeSeq = nil
	return items
}

// ErrorCount reports how many modules failed to refine.
func (d *Driver) ErrorCount() int {
	return d.errCount
}

// detectCycle runs the DFS of spec §4.D: a neighbor already in Entered
// reveals a cycle, reported as a chain of relative paths in order.
func (d *Driver) detectCycle(entryPath string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var stack []string
	var cyclePath string

	var visit func(path string) bool
	visit = func(path string) bool {
		m, ok := d.modules[path]
		if !ok {
			return false
		}
		if m.CheckState == StateEntered {
			// Found the repeated node; build the chain from here back.
			idx := indexOf(stack, path)
			chain := append(append([]string(nil), stack[idx:]...), path)
			for i, p := range chain {
				if rel, ok := d.Refiner.FS.Rel(d.Refiner.FS.Cwd(), p); ok {
					chain[i] = rel
				}
			}
			cyclePath = strings.Join(chain, " -> ")
			return true
		}
		if m.CheckState == StateChecked {
			return false
		}
		m.CheckState = StateEntered
		stack = append(stack, path)
		for _, child := range m.Children {
			if visit(child) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		m.CheckState = StateChecked
		return false
	}

	visit(entryPath)
	return cyclePath
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}
