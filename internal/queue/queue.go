package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/store"
)

// Queue is a durable FIFO queue of items awaiting delivery. Every mutation
// is followed by a snapshot write to the store; on restart Load restores the
// last snapshot. Items leave the queue only on successful delivery or when
// their retry budget is exhausted.
type Queue[T Item[T]] struct {
	name  string
	key   string
	store store.Store
	log   logging.Logger

	mu    sync.Mutex
	items []T
	busy  bool
}

// New constructs an empty queue persisting under the given store key.
// The name only appears in logs.
func New[T Item[T]](name, key string, st store.Store, log logging.Logger) *Queue[T] {
	return &Queue[T]{
		name:  name,
		key:   key,
		store: st,
		log:   log.With("queue", name),
	}
}

// Load replaces the in-memory items with the persisted snapshot. A missing
// key means an empty queue. A corrupt or unreadable snapshot is an
// infrastructure failure and escalates to the caller.
func (q *Queue[T]) Load(ctx context.Context) error {
	raw, err := q.store.Get(ctx, q.key)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load queue %s: %w", q.name, err)
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode queue %s snapshot: %w", q.name, err)
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()

	q.log.Info(ctx, "queue restored", "items", len(items))
	return nil
}

// Enqueue appends the item and persists the new snapshot. Append is always
// safe mid-drain: the running drain works on its own snapshot and unifies
// later appends afterwards. A persistence failure is logged and the item is
// kept in memory, risking loss on restart.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.Lock()
	q.items = append(q.items, item)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.log.Debug(ctx, "item enqueued", "id", item.ItemID())

	if err := q.persist(ctx, snapshot); err != nil {
		q.log.Error(ctx, "could not persist queue after enqueue", "error", err)
	}
	return nil
}

// Items returns a copy of the current queue contents in FIFO order.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) snapshotLocked() []T {
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue[T]) persist(ctx context.Context, items []T) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue %s: %w", q.name, err)
	}
	if err := q.store.Set(ctx, q.key, raw); err != nil {
		return fmt.Errorf("persist queue %s: %w", q.name, err)
	}
	return nil
}

// beginDrain claims the per-queue busy flag and returns the drain snapshot.
// ok is false while another drain is in flight; that caller's drain is a
// no-op, not queued for later.
func (q *Queue[T]) beginDrain() (snapshot []T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.busy {
		return nil, false
	}
	q.busy = true
	return q.snapshotLocked(), true
}

// completeDrain rebuilds the queue as the surviving snapshot items (with
// their updated retry counts) followed by anything appended mid-drain, then
// persists and releases the busy flag.
func (q *Queue[T]) completeDrain(ctx context.Context, survivors []T, snapshotLen int) {
	q.mu.Lock()
	q.items = append(survivors, q.items[snapshotLen:]...)
	persisted := q.snapshotLocked()
	q.busy = false
	q.mu.Unlock()

	if err := q.persist(ctx, persisted); err != nil {
		q.log.Error(ctx, "could not persist queue after drain", "error", err)
	}
}
