package future

import (
	"context"

	"github.com/dkeye/voicebridge/internal/thread"
)

// Chain forwards the outcome of fn(value) when f succeeds and the error otherwise.
func Chain[V, W any](f *Future[V], fn func(ctx context.Context, v V) *Future[W]) *Future[W] {
	out := New[W](f.th)
	f.OnResult(func(ctx context.Context, v V, err error) {
		if err != nil {
			out.ResolveErr(err)
			return
		}
		fn(ctx, v).OnResult(func(_ context.Context, w W, err error) {
			out.Resolve(w, err)
		})
	})
	return out
}

// Map transforms the success value.
func Map[V, W any](f *Future[V], fn func(v V) W) *Future[W] {
	out := New[W](f.th)
	f.OnResult(func(_ context.Context, v V, err error) {
		if err != nil {
			out.ResolveErr(err)
			return
		}
		out.ResolveOk(fn(v))
	})
	return out
}

// OnThread defers both the dispatch of fn and the resolution of the returned
// future until th runs fn. When ctx belongs to th, fn runs immediately.
func OnThread[V any](ctx context.Context, th *thread.Thread, fn func(ctx context.Context) *Future[V]) *Future[V] {
	out := New[V](th)
	th.Run(ctx, func(ctx context.Context) {
		fn(ctx).OnResult(func(_ context.Context, v V, err error) {
			out.Resolve(v, err)
		})
	})
	return out
}
