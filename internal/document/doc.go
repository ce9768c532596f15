package document

import (
	"fmt"
	"sync"

	"github.com/bsvalues/terrafield/internal/common"
)

// Doc is the minimal surface the registry needs from a live CRDT document.
// The merge algorithm itself is the CRDT library's job; fragments from
// different replicas merge in any order, fragments from the same replica
// must be applied in emission order.
type Doc interface {
	// ApplyUpdate merges an opaque fragment produced elsewhere.
	ApplyUpdate(update []byte) error

	// Changes returns the opaque fragment covering local edits made since
	// the previous call, or nil when there is nothing new.
	Changes() ([]byte, error)
}

// Handle owns one live in-memory CRDT document and fans locally produced
// fragments out to subscribers. A handle is created when a caller registers
// interest in a document and is not destroyed while referenced.
type Handle struct {
	id      string
	docType common.DocumentType
	doc     Doc

	mu      sync.Mutex
	subs    map[int]func(update []byte)
	nextSub int
}

// NewHandle wraps doc in a handle for the given document.
func NewHandle(id string, docType common.DocumentType, doc Doc) *Handle {
	return &Handle{
		id:      id,
		docType: docType,
		doc:     doc,
		subs:    make(map[int]func(update []byte)),
	}
}

// DocumentID returns the document id.
func (h *Handle) DocumentID() string { return h.id }

// Type returns the document type.
func (h *Handle) Type() common.DocumentType { return h.docType }

// Doc returns the underlying document.
func (h *Handle) Doc() Doc { return h.doc }

// Subscribe registers fn to receive every locally produced fragment and
// returns a handle that removes the subscription.
func (h *Handle) Subscribe(fn func(update []byte)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Edit runs one local mutation, collects the resulting fragment and
// publishes it to subscribers. The mutation closure edits the document
// through whatever typed reference the caller holds; Edit only brackets it
// with change collection. Edits always succeed locally from the caller's
// point of view; delivery happens later through the queue.
func (h *Handle) Edit(mutate func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := mutate(); err != nil {
		return fmt.Errorf("edit %s: %w", h.id, err)
	}

	update, err := h.doc.Changes()
	if err != nil {
		return fmt.Errorf("collect changes for %s: %w", h.id, err)
	}
	if len(update) == 0 {
		return nil
	}

	for _, fn := range h.subs {
		fn(update)
	}
	return nil
}

// applyRemote merges a fragment from another replica into the document.
func (h *Handle) applyRemote(update []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc.ApplyUpdate(update)
}
