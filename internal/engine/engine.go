// Package engine ties the durable queues, the connectivity monitor and the
// drain scheduler together into one sync lifecycle.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/document"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/netmon"
	"github.com/bsvalues/terrafield/internal/queue"
	"github.com/bsvalues/terrafield/internal/request"
	"github.com/bsvalues/terrafield/internal/scheduler"
)

// SyncState summarizes where the client stands relative to the server.
type SyncState string

const (
	// StateSynced means both queues are empty and the last drain succeeded.
	StateSynced SyncState = "synced"
	// StatePending means work is queued awaiting delivery.
	StatePending SyncState = "pending"
	// StateError means the last drain left failures behind.
	StateError SyncState = "error"
)

// Status is a point-in-time snapshot of the sync lifecycle.
type Status struct {
	Connected        bool      `json:"connected"`
	PendingRequests  int       `json:"pendingRequests"`
	PendingFragments int       `json:"pendingFragments"`
	LastSyncAt       time.Time `json:"lastSyncAt"`
	State            SyncState `json:"state"`
}

// Engine owns the drain side of both durable queues. It drains when
// connectivity returns, on a timer while online, and on demand.
type Engine struct {
	monitor   *netmon.Monitor
	reqQueue  *queue.Queue[request.OfflineRequest]
	fragQueue *queue.Queue[document.SyncFragment]
	reqProc   *queue.Processor[request.OfflineRequest]
	fragProc  *queue.Processor[document.SyncFragment]
	interval  time.Duration
	log       logging.Logger

	mu          sync.Mutex
	lastSyncAt  time.Time
	lastFailed  bool
	unsubscribe func()
	task        *scheduler.Task
}

// New constructs an Engine. interval is the periodic drain cadence while
// online.
func New(
	monitor *netmon.Monitor,
	reqQueue *queue.Queue[request.OfflineRequest],
	fragQueue *queue.Queue[document.SyncFragment],
	reqProc *queue.Processor[request.OfflineRequest],
	fragProc *queue.Processor[document.SyncFragment],
	interval time.Duration,
	log logging.Logger,
) *Engine {
	return &Engine{
		monitor:   monitor,
		reqQueue:  reqQueue,
		fragQueue: fragQueue,
		reqProc:   reqProc,
		fragProc:  fragProc,
		interval:  interval,
		log:       log,
	}
}

// Start wires the connectivity subscription and the periodic drain. The
// engine stops when ctx is canceled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unsubscribe != nil {
		return
	}

	e.unsubscribe = e.monitor.Subscribe(func(st netmon.State) {
		if st.IsConnected {
			e.log.Info(ctx, "connectivity restored, draining queues")
			go e.syncAll(ctx)
		}
	})

	e.task = scheduler.Every(ctx, e.interval, func(ctx context.Context) {
		if e.monitor.IsConnected() {
			e.syncAll(ctx)
		}
	})
}

// Stop tears down the subscription and the periodic drain. A drain already
// in flight finishes on its own.
func (e *Engine) Stop() {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	task := e.task
	e.unsubscribe = nil
	e.task = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if task != nil {
		task.Stop()
	}
}

// ForceSync re-probes connectivity and, when online, drains both queues
// before returning the resulting status. Offline it returns immediately
// with common.ErrNetworkUnavailable; nothing is lost, the queues keep
// their contents.
func (e *Engine) ForceSync(ctx context.Context) (Status, error) {
	e.monitor.Check(ctx)
	if !e.monitor.IsConnected() {
		return e.Status(), common.ErrNetworkUnavailable
	}
	e.syncAll(ctx)
	return e.Status(), nil
}

// Status reports the current snapshot without touching the network.
func (e *Engine) Status() Status {
	e.mu.Lock()
	lastSyncAt := e.lastSyncAt
	lastFailed := e.lastFailed
	e.mu.Unlock()

	s := Status{
		Connected:        e.monitor.IsConnected(),
		PendingRequests:  e.reqQueue.Len(),
		PendingFragments: e.fragQueue.Len(),
		LastSyncAt:       lastSyncAt,
		State:            StateSynced,
	}
	if lastFailed {
		s.State = StateError
	} else if s.PendingRequests > 0 || s.PendingFragments > 0 {
		s.State = StatePending
	}
	return s
}

// syncAll drains the request and fragment queues concurrently. The queues
// are independent; each one's busy flag already prevents overlapping drains
// of the same queue.
func (e *Engine) syncAll(ctx context.Context) {
	var wg sync.WaitGroup
	var reqRes, fragRes queue.Result

	wg.Add(2)
	go func() {
		defer wg.Done()
		reqRes = e.reqProc.Drain(ctx)
	}()
	go func() {
		defer wg.Done()
		fragRes = e.fragProc.Drain(ctx)
	}()
	wg.Wait()

	e.mu.Lock()
	if reqRes.Ran || fragRes.Ran {
		e.lastSyncAt = time.Now()
		e.lastFailed = reqRes.Retained+fragRes.Retained+reqRes.Dropped+fragRes.Dropped > 0
	}
	e.mu.Unlock()
}
