package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leaf-ai/leaf-common/internal/logger"
)

var (
	// ErrNotStarted is returned by Submit before Start.
	ErrNotStarted = errors.New("executor must be started before any function can be submitted")

	// ErrShutdown is returned by Submit after Shutdown.
	ErrShutdown = errors.New("cannot schedule new tasks after shutdown")
)

// PanicError is the error of a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Executor runs submitted tasks on background goroutines.
type Executor struct {
	lggr  *zap.SugaredLogger
	limit int

	// mu guards the state flags. It is never held while Submit blocks on
	// the concurrency limit, so a running task may itself call Submit
	// while Shutdown is pending.
	mu       sync.Mutex
	started  bool
	shutdown bool
	group    *errgroup.Group
	ctx      context.Context //nolint:containedctx // parent of every task context
	cancel   context.CancelFunc

	// inflight counts accepted tasks, including those still waiting for a
	// slot. It is only incremented under mu before shutdown is set.
	inflight sync.WaitGroup

	tasksMu sync.Mutex
	tasks   map[string]TaskInfo
}

// TaskInfo describes a task that has not finished.
type TaskInfo struct {
	ID          string
	SubmitterID string
}

// New creates an executor running at most limit tasks at once. A
// non-positive limit means no limit.
func New(limit int, lggr *zap.SugaredLogger) *Executor {
	return &Executor{
		lggr:  logger.OrNop(lggr).Named("executor"),
		limit: limit,
		tasks: make(map[string]TaskInfo),
	}
}

// Start prepares the executor. Starting twice is a no-op.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.group = &errgroup.Group{}
	if e.limit > 0 {
		e.group.SetLimit(e.limit)
	}
	e.started = true
}

// Pending returns the tasks that have not finished.
func (e *Executor) Pending() []TaskInfo {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()

	out := make([]TaskInfo, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	return out
}

// Shutdown stops accepting tasks and waits for the submitted ones. If ctx
// ends first, running tasks have their context cancelled and ctx's error
// is returned without waiting further.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started || e.shutdown {
		e.shutdown = true
		e.mu.Unlock()
		return nil
	}
	e.shutdown = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		// Every group.Go call happened before its task was counted done.
		_ = e.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		pending := e.Pending()
		e.lggr.Warnw("shutdown timed out, cancelling tasks", "pending", len(pending))
		e.cancel()
		return ctx.Err()
	}
}

func (e *Executor) track(info TaskInfo) {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	e.tasks[info.ID] = info
}

func (e *Executor) untrack(id string) {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	delete(e.tasks, id)
}

// Future is the eventual result of a submitted task.
type Future[T any] struct {
	info  TaskInfo
	done  chan struct{}
	value T
	err   error
}

// ID returns the task id.
func (f *Future[T]) ID() string { return f.info.ID }

// SubmitterID returns the id given to Submit.
func (f *Future[T]) SubmitterID() string { return f.info.SubmitterID }

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit runs fn in the background. submitterID identifies the caller in
// logs. Submit blocks while the executor is at its concurrency limit; a
// task accepted before Shutdown still runs once a slot frees up.
func Submit[T any](e *Executor, submitterID string, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{
		info: TaskInfo{ID: uuid.NewString(), SubmitterID: submitterID},
		done: make(chan struct{}),
	}

	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil, ErrShutdown
	}
	if !e.started {
		e.mu.Unlock()
		return nil, ErrNotStarted
	}
	e.inflight.Add(1)
	group, parent := e.group, e.ctx
	e.mu.Unlock()

	e.track(f.info)

	group.Go(func() error {
		defer e.inflight.Done()
		defer close(f.done)
		defer e.untrack(f.info.ID)
		defer func() {
			if r := recover(); r != nil {
				perr := &PanicError{Value: r, Stack: debug.Stack()}
				e.lggr.Errorw("task panicked", "submitter", submitterID, "task", f.info.ID, "panic", r, "stack", string(perr.Stack))
				f.err = perr
			}
		}()

		f.value, f.err = fn(parent)
		if f.err != nil {
			e.lggr.Debugw("task failed", "submitter", submitterID, "task", f.info.ID, "err", f.err)
		}
		// Task errors belong to the future; the group never sees them.
		return nil
	})
	return f, nil
}
