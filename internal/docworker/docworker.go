// Package docworker is the single per-server document worker (C7): it
// serializes LSP requests that touch compilation state behind a
// mutex-guarded deque, elides requests a later one has superseded, and
// runs the completion lane in a separate, cancel-on-replace goroutine.
//
// Grounded on spec.md §4.7 and the teacher's own single-goroutine
// request-serialization pattern in langserver/internal/cache/view.go.
// The read-only LSP semaphore uses golang.org/x/sync/semaphore.Weighted;
// the completion lane is bounded by cancelling the previous request's
// context. Request correlation ids use github.com/google/uuid, which no
// other package of this module uses.
package docworker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/saibing/cjlscore/internal/model"
)

// Worker runs queued requests one at a time in FIFO order, skipping any
// request a later same-file entry has superseded.
type Worker struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []model.Request
	done  bool

	lspSem *semaphore.Weighted

	completionMu     sync.Mutex
	completionCancel context.CancelFunc

	log *zap.Logger
}

func New(log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{
		lspSem: semaphore.NewWeighted(1),
		log:    log,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start runs the worker's drain loop until Stop is called. Intended to
// be run in its own goroutine; Start returns once the queue is drained
// after a Stop.
func (w *Worker) Start(ctx context.Context) {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.done {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.done {
			w.mu.Unlock()
			return
		}

		req, ok := w.popRunnableLocked()
		w.mu.Unlock()
		if !ok {
			continue
		}

		w.runOne(ctx, req)
	}
}

// popRunnableLocked drops every head entry superseded by a later
// same-file AUTO request, then pops and returns the first request still
// worth running. Called with w.mu held.
func (w *Worker) popRunnableLocked() (model.Request, bool) {
	for len(w.queue) > 0 {
		head := w.queue[0]
		if head.Tag != model.UpdateYes && w.supersededLocked(head) {
			w.queue = w.queue[1:]
			continue
		}
		w.queue = w.queue[1:]
		return head, true
	}
	return model.Request{}, false
}

// supersededLocked reports whether a later entry in the queue targets
// the same file as req with update type AUTO — the one case spec.md
// §4.7 names as superseding a pending AUTO/NO request.
func (w *Worker) supersededLocked(req model.Request) bool {
	for _, later := range w.queue[1:] {
		if later.File == req.File && later.Tag == model.UpdateAuto {
			return true
		}
	}
	return false
}

func (w *Worker) runOne(ctx context.Context, req model.Request) {
	if err := w.lspSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer w.lspSem.Release(1)

	if req.Thunk == nil {
		return
	}
	if err := req.Thunk(); err != nil {
		w.log.Warn("docworker: request failed, diagnostics reflect last known good state",
			zap.String("request", req.Name), zap.String("file", req.File), zap.Error(err))
	}
}

// Enqueue appends req, first removing any prior request with the same
// (name, file) key — "dedup on enqueue" per spec.md §4.7.
func (w *Worker) Enqueue(req model.Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	filtered := w.queue[:0]
	for _, existing := range w.queue {
		if existing.Key() != req.Key() {
			filtered = append(filtered, existing)
		}
	}
	w.queue = append(filtered, req)
	w.cond.Signal()
}

// Stop marks the worker done; Start returns once the current queue
// drains. No request is retried automatically — a transient failure
// simply surfaces through diagnostics on its next natural recompile.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.done = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// CompletionFunc is the body of a run_with_ast_cache request: a
// cursor-scoped partial compile, cancellable cooperatively via ctx.
type CompletionFunc func(ctx context.Context) error

// RunCompletion starts fn in its own goroutine, cancelling any
// previously running completion first — "the incoming request
// displaces it" per spec.md §4.7. It does not block on fn's body; the
// caller observes completion through whatever side channel fn uses to
// deliver its result (e.g. a reply callback captured in the closure).
func (w *Worker) RunCompletion(parent context.Context, fn CompletionFunc) {
	w.completionMu.Lock()
	if w.completionCancel != nil {
		w.completionCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	w.completionCancel = cancel
	w.completionMu.Unlock()

	go func() {
		defer cancel()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			w.log.Debug("docworker: completion pass ended with error", zap.Error(err))
		}
	}()
}
