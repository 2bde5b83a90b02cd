// Package queue implements the Concurrency Queue (spec component F): a
// bounded worker pool shared by the module refiner and the graph driver,
// coordinating back-pressure and end-of-work signaling. The run/ref/unref
// API and the panic-recovery discipline follow the teacher's own
// goroutine-pool idiom (internal/bundler's parallel-for-each loops, which
// used a raw sync.WaitGroup plus a buffered semaphore channel); here that
// is generalized into a reusable queue using the thread-safe wait group
// from internal/helpers, since Go's sync.WaitGroup forbids calling Add
// concurrently with Wait.
package queue

import (
	"fmt"
	"runtime"

	"github.com/tsbundle/tsb/internal/helpers"
)

// DefaultConcurrency picks 2*CPU, raised to at least 8 and then capped at
// CPU squared, so a machine with fewer than three CPUs gets less than 8.
func DefaultConcurrency() int {
	n := 2 * runtime.NumCPU()
	if n < 8 {
		n = 8
	}
	cap := runtime.NumCPU() * runtime.NumCPU()
	if n > cap {
		n = cap
	}
	return n
}

// Queue is a bounded-parallelism task runner. The zero value is not
// usable; construct with New.
type Queue struct {
	sem     chan struct{}
	wg      *helpers.ThreadSafeWaitGroup
	errCh   chan error
	errOnce chan struct{}
	err     error
}

func New(concurrency int) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}
	return &Queue{
		sem:     make(chan struct{}, concurrency),
		wg:      helpers.MakeThreadSafeWaitGroup(),
		errCh:   make(chan error, 1),
		errOnce: make(chan struct{}, 1),
	}
}

// Run schedules task to execute, blocking the caller only long enough to
// acquire a concurrency slot (providing the back-pressure named in spec
// §4.F). Within a single goroutine's sequence of Run calls, submission
// order is preserved relative to that goroutine, matching the "within a
// single run caller, task submission order is preserved" guarantee; no
// ordering is implied across different callers.
func (q *Queue) Run(name string, task func() error) {
	q.wg.Add(1)
	q.sem <- struct{}{}
	go func() {
		defer func() {
			<-q.sem
			if r := recover(); r != nil {
				q.poison(fmt.Errorf("panic in task %q: %v\n%s", name, r, helpers.PrettyPrintedStack()))
			}
			q.wg.Done()
		}()
		if err := task(); err != nil {
			q.poison(err)
		}
	}()
}

func (q *Queue) poison(err error) {
	select {
	case q.errOnce <- struct{}{}:
		q.err = err
	default:
	}
}

// OnceHasIdle blocks until the in-flight task count drops below the
// queue's capacity, i.e. a concurrency slot is free.
func (q *Queue) OnceHasIdle() {
	q.sem <- struct{}{}
	<-q.sem
}

// OnceEnd blocks until the queue has drained (all scheduled tasks have
// returned) and all external reference counts are zero, then returns the
// queue's poison error, if any, per spec §4.F.
func (q *Queue) OnceEnd() error {
	q.wg.Wait()
	return q.err
}

// Ref and Unref let callers (e.g. the graph driver, holding pending
// sub-tasks it hasn't yet submitted) delay OnceEnd from observing
// completion until they are done bookkeeping.
func (q *Queue) Ref()   { q.wg.Add(1) }
func (q *Queue) Unref() { q.wg.Done() }

// Error returns the queue's poison error, if the queue has been poisoned
// by a failed task, without blocking.
func (q *Queue) Error() error {
	return q.err
}
