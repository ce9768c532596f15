// Package document coordinates CRDT-fragment replication for collaborative
// documents: live document handles, the durable fragment queue fed by local
// edits, and the registry that merges remote fragments back in. Fragments
// are opaque bytes end to end; the queue never inspects or reorders them,
// which is what preserves same-replica emission order.
package document

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/queue"
	"github.com/bsvalues/terrafield/internal/store"
)

// StorageKey is the store key the fragment queue snapshot is persisted under.
const StorageKey = "queue:fragments"

// SyncFragment is one opaque unit of CRDT state change awaiting delivery.
// Updates marshals to base64 in the persisted snapshot and on the wire.
type SyncFragment struct {
	ID           string              `json:"id"`
	DocumentID   string              `json:"documentId"`
	DocumentType common.DocumentType `json:"documentType"`
	Updates      []byte              `json:"updates"`
	Timestamp    time.Time           `json:"timestamp"`
	Retries      int                 `json:"retries"`
}

func (f SyncFragment) ItemID() string  { return f.ID }
func (f SyncFragment) RetryCount() int { return f.Retries }
func (f SyncFragment) WithRetries(n int) SyncFragment {
	f.Retries = n
	return f
}

// NewQueue constructs the durable fragment queue.
func NewQueue(st store.Store, log logging.Logger) *queue.Queue[SyncFragment] {
	return queue.New[SyncFragment]("fragments", StorageKey, st, log)
}

// Sender is the transport surface fragment delivery needs.
type Sender interface {
	Do(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

type syncPayload struct {
	Updates   []byte    `json:"updates"`
	Timestamp time.Time `json:"timestamp"`
}

// Deliver returns the delivery function posting fragments to the
// per-document-type sync path. The server merges and fans the result out to
// other replicas.
func Deliver(t Sender) queue.DeliverFunc[SyncFragment] {
	return func(ctx context.Context, f SyncFragment) error {
		body, err := json.Marshal(syncPayload{Updates: f.Updates, Timestamp: f.Timestamp})
		if err != nil {
			return err
		}
		_, err = t.Do(ctx, http.MethodPost, f.DocumentType.SyncPath(f.DocumentID), body)
		return err
	}
}
