package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/document"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/netmon"
	"github.com/bsvalues/terrafield/internal/queue"
	"github.com/bsvalues/terrafield/internal/request"
	"github.com/bsvalues/terrafield/internal/store"
)

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// countingSender tallies deliveries and fails while failing is set.
type countingSender struct {
	mu      sync.Mutex
	failing bool
	sent    []string
}

func (s *countingSender) Do(_ context.Context, method, path string, _ []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, common.ErrNetworkUnavailable
	}
	s.sent = append(s.sent, method+" "+path)
	return nil, nil
}

func (s *countingSender) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *countingSender) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fixture struct {
	engine  *Engine
	monitor *netmon.Monitor
	online  *atomic.Bool
	sender  *countingSender
	reqQ    *queue.Queue[request.OfflineRequest]
	fragQ   *queue.Queue[document.SyncFragment]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := discardLogger()
	st := store.NewMemoryStore()

	online := &atomic.Bool{}
	probe := netmon.ProbeFunc(func(context.Context) error {
		if online.Load() {
			return nil
		}
		return common.ErrNetworkUnavailable
	})
	monitor := netmon.New(probe, st, log, time.Hour)

	sender := &countingSender{}
	reqQ := request.NewQueue(st, log)
	fragQ := document.NewQueue(st, log)
	reqProc := queue.NewProcessor(reqQ, request.Deliver(sender), 3, log)
	fragProc := queue.NewProcessor(fragQ, document.Deliver(sender), 3, log)

	return &fixture{
		engine:  New(monitor, reqQ, fragQ, reqProc, fragProc, time.Hour, log),
		monitor: monitor,
		online:  online,
		sender:  sender,
		reqQ:    reqQ,
		fragQ:   fragQ,
	}
}

func enqueueRequest(t *testing.T, f *fixture, url string) {
	t.Helper()
	req, err := request.New("PUT", url, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, f.reqQ.Enqueue(context.Background(), req))
}

func enqueueFragment(t *testing.T, f *fixture, docID string) {
	t.Helper()
	frag := document.SyncFragment{
		ID:           queue.NewID(),
		DocumentID:   docID,
		DocumentType: common.DocumentTypeFieldNotes,
		Updates:      []byte{0x01},
		Timestamp:    time.Now(),
	}
	require.NoError(t, f.fragQ.Enqueue(context.Background(), frag))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestForceSync_OfflineReturnsWithoutDraining(t *testing.T) {
	f := newFixture(t)
	enqueueRequest(t, f, "/api/properties/1")

	status, err := f.engine.ForceSync(context.Background())
	assert.True(t, errors.Is(err, common.ErrNetworkUnavailable))
	assert.False(t, status.Connected)
	assert.Equal(t, 1, status.PendingRequests)
	assert.Equal(t, StatePending, status.State)
	assert.Empty(t, f.sender.delivered())
}

func TestForceSync_DrainsBothQueues(t *testing.T) {
	f := newFixture(t)
	f.online.Store(true)
	enqueueRequest(t, f, "/api/properties/1")
	enqueueFragment(t, f, "doc-1")

	status, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	assert.True(t, status.Connected)
	assert.Zero(t, status.PendingRequests)
	assert.Zero(t, status.PendingFragments)
	assert.Equal(t, StateSynced, status.State)
	assert.False(t, status.LastSyncAt.IsZero())

	sent := f.sender.delivered()
	assert.Contains(t, sent, "PUT /api/properties/1")
	assert.Contains(t, sent, "POST /api/fieldNotes/doc-1/sync")
}

func TestForceSync_FailuresLeaveErrorState(t *testing.T) {
	f := newFixture(t)
	f.online.Store(true)
	f.sender.setFailing(true)
	enqueueRequest(t, f, "/api/properties/1")

	status, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateError, status.State)
	assert.Equal(t, 1, status.PendingRequests)
	assert.Equal(t, 1, f.reqQ.Items()[0].Retries)
}

func TestStart_DrainsOnReconnect(t *testing.T) {
	f := newFixture(t)
	enqueueRequest(t, f, "/api/properties/1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.engine.Start(ctx)
	defer f.engine.Stop()

	// offline probe first so the monitor has a definite disconnected state
	f.monitor.Check(ctx)
	assert.Empty(t, f.sender.delivered())

	f.online.Store(true)
	f.monitor.Check(ctx)

	waitFor(t, func() bool { return len(f.sender.delivered()) == 1 })
	waitFor(t, func() bool { return f.reqQ.Len() == 0 })
}

func TestStart_PeriodicDrainWhileOnline(t *testing.T) {
	log := discardLogger()
	st := store.NewMemoryStore()

	probe := netmon.ProbeFunc(func(context.Context) error { return nil })
	monitor := netmon.New(probe, st, log, time.Hour)
	monitor.Check(context.Background())

	sender := &countingSender{}
	reqQ := request.NewQueue(st, log)
	fragQ := document.NewQueue(st, log)
	reqProc := queue.NewProcessor(reqQ, request.Deliver(sender), 3, log)
	fragProc := queue.NewProcessor(fragQ, document.Deliver(sender), 3, log)

	e := New(monitor, reqQ, fragQ, reqProc, fragProc, 20*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	req, err := request.New("POST", "/api/comps", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, reqQ.Enqueue(ctx, req))

	waitFor(t, func() bool { return len(sender.delivered()) == 1 })
}

func TestStop_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.engine.Start(ctx)
	f.engine.Stop()
	f.engine.Stop()
}

func TestStatus_PendingWithoutSyncAttempt(t *testing.T) {
	f := newFixture(t)
	enqueueFragment(t, f, "doc-1")

	status := f.engine.Status()
	assert.Equal(t, StatePending, status.State)
	assert.Equal(t, 1, status.PendingFragments)
	assert.True(t, status.LastSyncAt.IsZero())
}
