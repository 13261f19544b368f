// Package thread provides a confined execution context: one goroutine that runs
// every task submitted to it in FIFO order.
//
// The identity of the context is carried explicitly in a context.Context. Tasks
// receive a ctx for which IsCurrent reports true; code that holds such a ctx may
// call Run and have the task executed synchronously.
package thread

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Task func(ctx context.Context)

type ctxKey struct{}

type Thread struct {
	name   string
	strict bool
	logger zerolog.Logger

	ctx context.Context

	mu     sync.Mutex
	queue  []Task
	wake   chan struct{}
	closed bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Thread)

// WithStrict makes AssertCurrent panic instead of only logging.
func WithStrict(strict bool) Option {
	return func(t *Thread) { t.strict = strict }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Thread) { t.logger = logger }
}

// New starts the thread loop.
func New(name string, opts ...Option) *Thread {
	t := &Thread{
		name:   name,
		logger: log.With().Str("module", "thread").Str("thread", name).Logger(),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx = context.WithValue(context.Background(), ctxKey{}, t)
	go t.loop()
	return t
}

func (t *Thread) Name() string { return t.name }

// IsCurrent reports whether ctx was handed out by this thread to a running task.
func (t *Thread) IsCurrent(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(ctxKey{}).(*Thread)
	return owner == t
}

// AssertCurrent is a precondition check for code that mutates confined state.
func (t *Thread) AssertCurrent(ctx context.Context) bool {
	if t.IsCurrent(ctx) {
		return true
	}
	msg := fmt.Sprintf("called off thread %q", t.name)
	if t.strict {
		panic(msg)
	}
	t.logger.Error().Msg(msg)
	return false
}

// Run executes task synchronously when ctx belongs to this thread and posts it otherwise.
func (t *Thread) Run(ctx context.Context, task Task) {
	if t.IsCurrent(ctx) {
		task(ctx)
		return
	}
	t.Post(task)
}

// Post enqueues task for later execution.
func (t *Thread) Post(task Task) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.logger.Warn().Msg("post after stop, task dropped")
		return
	}
	t.queue = append(t.queue, task)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// PostDelayed schedules a single shot task after d.
func (t *Thread) PostDelayed(d time.Duration, task Task) *Timer {
	tm := &Timer{thread: t}
	tm.timer = time.AfterFunc(d, func() {
		t.Post(func(ctx context.Context) {
			if tm.cancelled {
				return
			}
			tm.fired = true
			task(ctx)
		})
	})
	return tm
}

// Stop ends the loop without waiting for it; pending tasks are dropped. Use Done to wait.
func (t *Thread) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.queue = nil
		t.mu.Unlock()
		close(t.stop)
	})
}

func (t *Thread) Done() <-chan struct{} { return t.done }

func (t *Thread) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			t.logger.Debug().Msg("thread stopped")
			return
		case <-t.wake:
		}
		for {
			task, ok := t.next()
			if !ok {
				break
			}
			t.exec(task)
			select {
			case <-t.stop:
				t.logger.Debug().Msg("thread stopped")
				return
			default:
			}
		}
	}
}

func (t *Thread) next() (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, false
	}
	task := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	return task, true
}

func (t *Thread) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	task(t.ctx)
}
