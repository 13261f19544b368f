// Package future implements a single resolution result bound to a thread.
// Continuations always run on that thread.
package future

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/thread"
)

// ErrAwaitOnThread is returned by Await on the thread that resolves the future.
var ErrAwaitOnThread = errors.New("await called on the resolving thread")

type Future[V any] struct {
	th *thread.Thread

	mu        sync.Mutex
	resolved  bool
	value     V
	err       error
	callbacks []func(ctx context.Context, v V, err error)
	done      chan struct{}
}

func New[V any](th *thread.Thread) *Future[V] {
	return &Future[V]{th: th, done: make(chan struct{})}
}

// Resolved returns a future already holding v.
func Resolved[V any](th *thread.Thread, v V) *Future[V] {
	f := New[V](th)
	f.ResolveOk(v)
	return f
}

// Failed returns a future already holding err.
func Failed[V any](th *thread.Thread, err error) *Future[V] {
	f := New[V](th)
	f.ResolveErr(err)
	return f
}

// WithPromise creates a future and hands it to fn for resolution.
func WithPromise[V any](th *thread.Thread, fn func(p *Future[V])) *Future[V] {
	f := New[V](th)
	fn(f)
	return f
}

func (f *Future[V]) ResolveOk(v V) bool {
	return f.resolve(v, nil)
}

func (f *Future[V]) ResolveErr(err error) bool {
	var zero V
	return f.resolve(zero, err)
}

// Resolve settles with err when it is non-nil, with v otherwise.
func (f *Future[V]) Resolve(v V, err error) bool {
	if err != nil {
		return f.ResolveErr(err)
	}
	return f.ResolveOk(v)
}

func (f *Future[V]) resolve(v V, err error) bool {
	f.mu.Lock()
	if f.resolved {
		prevErr := f.err
		f.mu.Unlock()
		log.Warn().
			Str("module", "future").
			AnErr("previous", prevErr).
			AnErr("ignored", err).
			Msg("future already resolved, ignoring")
		return false
	}
	f.resolved = true
	f.value = v
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		f.dispatch(cb, v, err)
	}
	return true
}

func (f *Future[V]) dispatch(cb func(ctx context.Context, v V, err error), v V, err error) {
	f.th.Post(func(ctx context.Context) { cb(ctx, v, err) })
}

// OnResult registers fn to run on the thread once the future settles.
func (f *Future[V]) OnResult(fn func(ctx context.Context, v V, err error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	f.dispatch(fn, v, err)
}

// WithErrorCallback runs g on failure as a side effect. The returned future is f itself.
func (f *Future[V]) WithErrorCallback(g func(ctx context.Context, err error)) *Future[V] {
	f.OnResult(func(ctx context.Context, _ V, err error) {
		if err != nil {
			g(ctx, err)
		}
	})
	return f
}

// WithCallback runs g with the value on success.
func (f *Future[V]) WithCallback(g func(ctx context.Context, v V)) *Future[V] {
	f.OnResult(func(ctx context.Context, v V, err error) {
		if err == nil {
			g(ctx, v)
		}
	})
	return f
}

// Await blocks until the future settles or ctx is done.
// It refuses to block the thread that would resolve it.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	var zero V
	if f.th.IsCurrent(ctx) {
		return zero, ErrAwaitOnThread
	}
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (f *Future[V]) Done() <-chan struct{} { return f.done }

func (f *Future[V]) IsResolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// Peek returns the outcome without blocking; both are zero while unresolved.
func (f *Future[V]) Peek() (V, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}
