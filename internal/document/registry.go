package document

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/queue"
)

// UnregisteredPolicy decides what happens to a remote fragment arriving for
// a document nobody has registered yet.
type UnregisteredPolicy string

const (
	// PolicyDiscard drops the fragment with a warning. This matches the
	// behavior field clients have always had: the fragment comes around
	// again on the next full sync.
	PolicyDiscard UnregisteredPolicy = "discard"

	// PolicyBuffer keeps a bounded backlog per document and replays it in
	// arrival order when the document is registered.
	PolicyBuffer UnregisteredPolicy = "buffer"
)

// maxBufferedPerDocument bounds the PolicyBuffer backlog; the oldest
// fragment is evicted when the bound is hit.
const maxBufferedPerDocument = 32

type registration struct {
	handle      *Handle
	unsubscribe func()
}

// Registry holds the live document handles, feeds the fragment queue from
// local edits and routes remote fragments into the matching document.
type Registry struct {
	queue  *queue.Queue[SyncFragment]
	log    logging.Logger
	policy UnregisteredPolicy

	mu      sync.Mutex
	docs    map[string]*registration
	pending map[string][][]byte
}

// NewRegistry constructs a Registry feeding q.
func NewRegistry(q *queue.Queue[SyncFragment], log logging.Logger, policy UnregisteredPolicy) *Registry {
	if policy == "" {
		policy = PolicyDiscard
	}
	return &Registry{
		queue:   q,
		log:     log,
		policy:  policy,
		docs:    make(map[string]*registration),
		pending: make(map[string][][]byte),
	}
}

// Register adds a handle to the registry. Registration is idempotent per
// document id: registering again replaces the previous handle and rewires
// the local-edit subscription, so the old handle leaks no listener. With
// PolicyBuffer, fragments that arrived before registration are replayed in
// arrival order.
func (r *Registry) Register(ctx context.Context, h *Handle) error {
	if !h.Type().Valid() {
		return fmt.Errorf("document %s: unknown type %q", h.DocumentID(), h.Type())
	}

	id := h.DocumentID()
	docType := h.Type()

	unsubscribe := h.Subscribe(func(update []byte) {
		frag := SyncFragment{
			ID:           queue.NewID(),
			DocumentID:   id,
			DocumentType: docType,
			Updates:      update,
			Timestamp:    time.Now(),
		}
		if err := r.queue.Enqueue(context.Background(), frag); err != nil {
			r.log.Error(context.Background(), "could not enqueue fragment",
				"document_id", id, "error", err)
		}
	})

	r.mu.Lock()
	if old, ok := r.docs[id]; ok {
		old.unsubscribe()
	}
	r.docs[id] = &registration{handle: h, unsubscribe: unsubscribe}
	backlog := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	r.log.Info(ctx, "document registered", "document_id", id, "type", string(docType))

	for _, update := range backlog {
		if err := h.applyRemote(update); err != nil {
			r.log.Warn(ctx, "buffered fragment rejected by document",
				"document_id", id, "error", err)
		}
	}
	return nil
}

// Unregister drops the handle and its subscription. Fragments already
// queued stay queued.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.docs[id]; ok {
		reg.unsubscribe()
		delete(r.docs, id)
	}
}

// Registered reports whether a handle exists for the document id.
func (r *Registry) Registered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.docs[id]
	return ok
}

// ApplyRemoteFragment decodes a base64-carried fragment and merges it into
// the matching document. An unregistered id follows the configured policy:
// discard returns common.ErrNotRegistered and performs no mutation, buffer
// accepts the fragment for replay on registration. A malformed fragment is
// a decode error; the document is left untouched.
func (r *Registry) ApplyRemoteFragment(ctx context.Context, documentID string, encoded string) error {
	update, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		r.log.Warn(ctx, "malformed fragment", "document_id", documentID, "error", err)
		return fmt.Errorf("fragment for %s: %w", documentID, common.ErrDecode)
	}

	r.mu.Lock()
	reg, ok := r.docs[documentID]
	if !ok {
		if r.policy == PolicyBuffer {
			backlog := append(r.pending[documentID], update)
			if len(backlog) > maxBufferedPerDocument {
				backlog = backlog[1:]
				r.log.Warn(ctx, "fragment buffer full, oldest evicted", "document_id", documentID)
			}
			r.pending[documentID] = backlog
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()
		r.log.Warn(ctx, "fragment for unregistered document discarded", "document_id", documentID)
		return fmt.Errorf("document %s: %w", documentID, common.ErrNotRegistered)
	}
	r.mu.Unlock()

	if err := reg.handle.applyRemote(update); err != nil {
		r.log.Warn(ctx, "fragment rejected by document", "document_id", documentID, "error", err)
		return fmt.Errorf("apply fragment to %s: %w", documentID, common.ErrDecode)
	}
	return nil
}
