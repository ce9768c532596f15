// Package store implements the durable key→JSON store used by the sync
// queues and the network monitor. Values survive process restarts; each key
// holds one JSON blob overwritten atomically on Set. There is no cross-key
// transactionality.
package store

import (
	"context"
	"encoding/json"
)

// Store is a durable key→JSON store.
//
// Get returns common.ErrNotFound (wrapped) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	Remove(ctx context.Context, key string) error
}
