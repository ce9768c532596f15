// Package netmon tracks server reachability. Connectivity is probed on a
// fixed interval; subscribers are notified once per connected/disconnected
// transition, never once per queued item. The last known state is persisted
// so a cold start can report something before the first probe completes.
package netmon

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/scheduler"
	"github.com/bsvalues/terrafield/internal/store"
)

// StateKey is the store key the last known state is persisted under.
const StateKey = "network:last_state"

// State is a snapshot of connectivity, replaced wholesale on every probe
// that changes the outcome.
type State struct {
	IsConnected         bool      `json:"is_connected"`
	IsInternetReachable *bool     `json:"is_internet_reachable"`
	Transport           string    `json:"transport"`
	CheckedAt           time.Time `json:"checked_at"`
}

// Prober reports whether the server is reachable right now. An error means
// unreachable; implementations should keep their own timeout short.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// Monitor watches connectivity and fans out transition events.
type Monitor struct {
	probe    Prober
	store    store.Store
	log      logging.Logger
	interval time.Duration

	mu      sync.Mutex
	state   State
	known   bool // at least one probe (or persisted state) observed
	subs    map[int]func(State)
	nextSub int
}

// New constructs a Monitor. The persisted last state, if any, seeds
// IsConnected so callers get a plausible answer before the first probe;
// it may be stale until then.
func New(probe Prober, st store.Store, log logging.Logger, interval time.Duration) *Monitor {
	m := &Monitor{
		probe:    probe,
		store:    st,
		log:      log,
		interval: interval,
		subs:     make(map[int]func(State)),
	}

	if raw, err := st.Get(context.Background(), StateKey); err == nil {
		var s State
		if err := json.Unmarshal(raw, &s); err == nil {
			m.state = s
			m.known = true
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		log.Warn(context.Background(), "could not read persisted network state", "error", err)
	}

	return m
}

// IsConnected returns the last known connectivity synchronously.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsConnected
}

// State returns a copy of the last known state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to be called on every connectivity transition and
// returns a handle that removes the subscription.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Run probes immediately, then keeps probing on the configured interval
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	task := scheduler.Every(ctx, m.interval, m.Check)
	<-ctx.Done()
	task.Stop()
}

// Check performs a single probe and records the outcome. Exposed so a
// caller can force a re-check, e.g. right before a manual sync.
func (m *Monitor) Check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := m.probe.Probe(probeCtx)
	cancel()

	m.setConnected(ctx, err == nil)
}

func (m *Monitor) setConnected(ctx context.Context, connected bool) {
	m.mu.Lock()

	changed := !m.known || m.state.IsConnected != connected
	m.known = true
	m.state = State{
		IsConnected:         connected,
		IsInternetReachable: &connected,
		Transport:           "http",
		CheckedAt:           time.Now(),
	}
	state := m.state

	var subs []func(State)
	if changed {
		subs = make([]func(State), 0, len(m.subs))
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	m.log.Info(ctx, "connectivity changed", "connected", connected)

	if raw, err := json.Marshal(state); err == nil {
		if err := m.store.Set(ctx, StateKey, raw); err != nil {
			m.log.Warn(ctx, "could not persist network state", "error", err)
		}
	}

	// Callbacks run outside the lock so they may call back into the monitor.
	for _, fn := range subs {
		fn(state)
	}
}
