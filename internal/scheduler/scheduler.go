// Package scheduler provides a small periodic-task abstraction whose
// lifetime is tied to a context, so no ticker outlives the component that
// started it.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Task is a handle for a running periodic task.
type Task struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Every runs fn every interval until ctx is cancelled or Stop is called.
// The first run happens after one full interval, not immediately.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) *Task {
	t := &Task{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	return t
}

// Stop cancels the task and waits for the loop to exit. Safe to call more
// than once; a run already in progress completes first.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}
