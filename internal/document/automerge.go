package document

import (
	"fmt"
	"sync"

	"github.com/automerge/automerge-go"
)

// AutomergeDoc adapts an automerge document to the Doc interface. Incremental
// saves are the fragments this engine ships around; loading an incremental
// save merges it.
type AutomergeDoc struct {
	mu  sync.Mutex
	doc *automerge.Doc
}

// NewAutomergeDoc returns an adapter around an empty document.
func NewAutomergeDoc() *AutomergeDoc {
	return &AutomergeDoc{doc: automerge.New()}
}

// LoadAutomergeDoc restores an adapter from a full snapshot produced by
// Snapshot.
func LoadAutomergeDoc(snapshot []byte) (*AutomergeDoc, error) {
	doc, err := automerge.Load(snapshot)
	if err != nil {
		return nil, fmt.Errorf("load document snapshot: %w", err)
	}
	return &AutomergeDoc{doc: doc}, nil
}

// Edit applies one local mutation and commits it as a single change.
func (a *AutomergeDoc) Edit(mutate func(doc *automerge.Doc) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := mutate(a.doc); err != nil {
		return err
	}
	if _, err := a.doc.Commit("local edit"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Changes returns the incremental save covering everything since the last
// call, or nil when the document has not changed.
func (a *AutomergeDoc) Changes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	update := a.doc.SaveIncremental()
	if len(update) == 0 {
		return nil, nil
	}
	return update, nil
}

// ApplyUpdate merges a fragment produced by another replica. The incremental
// buffer is collected afterwards and discarded so remote changes are not
// echoed back as local fragments.
func (a *AutomergeDoc) ApplyUpdate(update []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.doc.LoadIncremental(update); err != nil {
		return fmt.Errorf("merge fragment: %w", err)
	}
	a.doc.SaveIncremental()
	return nil
}

// Snapshot returns a full serialized copy of the document, suitable for
// LoadAutomergeDoc.
func (a *AutomergeDoc) Snapshot() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc.Save()
}

// Heads returns the current change heads, useful for equality checks.
func (a *AutomergeDoc) Heads() []automerge.ChangeHash {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc.Heads()
}
