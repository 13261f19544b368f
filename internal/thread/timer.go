package thread

import (
	"context"
	"time"
)

// Timer is a delayed task created by PostDelayed. Its flags are only touched on the thread.
type Timer struct {
	thread    *Thread
	timer     *time.Timer
	cancelled bool
	fired     bool
}

// Cancel stops the timer. Called on the thread, it guarantees the task will not run.
func (tm *Timer) Cancel(ctx context.Context) {
	if tm == nil {
		return
	}
	tm.thread.AssertCurrent(ctx)
	tm.cancelled = true
	tm.timer.Stop()
}

// Fired reports whether the task ran. Only meaningful on the thread.
func (tm *Timer) Fired() bool {
	return tm != nil && tm.fired
}
