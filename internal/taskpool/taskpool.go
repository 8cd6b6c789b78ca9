// Package taskpool is the DAG-aware worker pool (C5): callers register
// tasks with explicit prerequisite ids; a task only runs once every
// prerequisite has completed, and a failed task still counts as complete
// for everyone waiting on it.
//
// Grounded on spec.md §4.5 and, for the C++ original's pool-size formula
// and "detach and forget" prohibition, original_source's thread-pool
// usage in CompilerCangjieProject.h. The concurrency bound
// (golang.org/x/sync/semaphore) is the teacher's own choice for bounded
// fan-out pools.
package taskpool

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// TaskID is a stable 64-bit key, typically a hash of a package name.
type TaskID uint64

// Thunk is a unit of work. A non-nil return is recorded as the task's
// failure but never stops sibling or dependent tasks from running —
// only the orchestrator decides what a failure means for a package.
type Thunk func(ctx context.Context) error

type taskState struct {
	id         TaskID
	prereqs    map[TaskID]struct{}
	dependents []TaskID
	thunk      Thunk
	queued     bool
	done       bool
	err        error
}

// Pool is safe for concurrent use by many callers submitting tasks, and
// by task bodies submitting further tasks of their own (so long as no
// task synchronously blocks on a dependent's completion other than via
// a registered prerequisite edge — the one documented misuse, left as a
// caller discipline rather than something the pool can detect).
type Pool struct {
	mu    sync.Mutex
	tasks map[TaskID]*taskState
	ready []TaskID
	wg    sync.WaitGroup
	sem   *semaphore.Weighted
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Size returns the configured worker concurrency: max(1,
// runtime.NumCPU()/2 - 3), leaving headroom for the RPC and orchestrator
// goroutines, or 1 when test is true (deterministic single-threaded
// execution for unit tests).
func Size(test bool) int64 {
	if test {
		return 1
	}
	n := int64(runtime.NumCPU()/2 - 3)
	if n < 1 {
		n = 1
	}
	return n
}

// New builds a Pool with the given maximum concurrently-running task
// count. Pass Size(test) for the spec-mandated formula.
func New(concurrency int64, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		tasks:  map[TaskID]*taskState{},
		sem:    semaphore.NewWeighted(concurrency),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close cancels any not-yet-started task bodies' contexts. Running task
// bodies are expected to check ctx.Err() at their own suspension points.
func (p *Pool) Close() { p.cancel() }

// AddTask registers a task keyed by id with the given prerequisite ids
// and body. Re-adding an id that is still pending (queued or blocked,
// not yet completed) replaces its thunk and prerequisite set in place —
// "coalescing into the pending entry" per spec. Re-adding an id that
// already completed resets it so it runs again, which is how the
// orchestrator re-submits a package recompile across compile cycles
// using the same stable task id.
func (p *Pool) AddTask(id TaskID, prerequisites []TaskID, thunk Thunk) {
	p.mu.Lock()

	st, exists := p.tasks[id]
	if !exists {
		st = &taskState{id: id}
		p.tasks[id] = st
		p.wg.Add(1)
	} else if st.done {
		// Resetting a completed task for a new cycle: account for it again.
		p.wg.Add(1)
		st.queued = false
	}
	// A task that is already queued stays queued: it runs once, with the
	// replaced thunk.
	st.thunk = thunk
	st.done = false
	st.err = nil
	st.prereqs = map[TaskID]struct{}{}

	for _, dep := range prerequisites {
		depState, ok := p.tasks[dep]
		if ok && depState.done {
			continue // already satisfied
		}
		st.prereqs[dep] = struct{}{}
		if !ok {
			// Prerequisite not registered yet; create a placeholder so its
			// eventual AddTask/completion can find this dependent.
			depState = &taskState{id: dep}
			p.tasks[dep] = depState
			p.wg.Add(1)
		}
		depState.dependents = append(depState.dependents, id)
	}

	p.maybeEnqueueLocked(st)
	p.mu.Unlock()

	p.drain()
}

// maybeEnqueueLocked pushes st onto the ready queue if it has no
// outstanding prerequisites and a thunk to run. Called with p.mu held.
func (p *Pool) maybeEnqueueLocked(st *taskState) {
	if st.queued || st.done || st.thunk == nil || len(st.prereqs) > 0 {
		return
	}
	st.queued = true
	p.ready = append(p.ready, st.id)
}

// drain spawns a goroutine per currently-ready task, each acquiring the
// pool's semaphore before running its thunk. Called after every state
// change that might have produced new ready tasks.
func (p *Pool) drain() {
	for {
		p.mu.Lock()
		if len(p.ready) == 0 {
			p.mu.Unlock()
			return
		}
		id := p.ready[0]
		p.ready = p.ready[1:]
		st := p.tasks[id]
		p.mu.Unlock()

		go p.run(st)
	}
}

func (p *Pool) run(st *taskState) {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.finish(st, err)
		return
	}
	defer p.sem.Release(1)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("taskpool: task panicked, recovered", zap.Uint64("task", uint64(st.id)), zap.Any("panic", r))
				err = errPanic
			}
		}()
		return st.thunk(p.ctx)
	}()

	p.finish(st, err)
}

var errPanic = &taskError{"task body panicked"}

type taskError struct{ msg string }

func (e *taskError) Error() string { return e.msg }

// finish marks st complete — whether it succeeded, failed, or panicked,
// a finished task releases every dependent's prerequisite count exactly
// the same way, matching "a failed task is treated as completed for
// dependency purposes."
func (p *Pool) finish(st *taskState, err error) {
	p.mu.Lock()
	st.done = true
	st.err = err
	dependents := st.dependents
	for _, depID := range dependents {
		dep := p.tasks[depID]
		if dep == nil {
			continue
		}
		delete(dep.prereqs, st.id)
		p.maybeEnqueueLocked(dep)
	}
	p.mu.Unlock()

	p.wg.Done()
	p.drain()
}

// TaskCompleted reports whether id has finished and, if so, its error
// (nil on success). Useful for a caller that wants to inspect a
// specific package recompile's outcome after WaitUntilAllComplete.
func (p *Pool) TaskCompleted(id TaskID) (done bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.tasks[id]
	if !ok {
		return false, nil
	}
	return st.done, st.err
}

// WaitUntilAllComplete blocks until the pool has no runnable and no
// in-flight tasks.
func (p *Pool) WaitUntilAllComplete() {
	p.wg.Wait()
}

// Depth returns the number of tasks registered but not yet complete,
// queued or blocked on prerequisites alike. Exposed for the orchestrator
// to report queue depth to metrics (C5).
func (p *Pool) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, st := range p.tasks {
		if !st.done {
			n++
		}
	}
	return n
}
