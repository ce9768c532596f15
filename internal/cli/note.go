package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/document"
)

// Note opens (or reuses) a field note document and appends text to it. The
// edit lands in the fragment queue immediately; delivery happens whenever
// connectivity allows.
func (a *App) Note(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Property ID", os.Stdout)
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Println("Property ID is required")
		return nil
	}

	text, err := GetMultiline(a.reader, "Note text", os.Stdout)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Println("Nothing to save")
		return nil
	}

	doc, err := a.openNote(ctx, id)
	if err != nil {
		fmt.Println("Could not open document:", err)
		return err
	}

	handle := a.handleFor(id)
	noteKey := uuid.NewString()
	err = handle.Edit(func() error {
		return doc.Edit(func(d *automerge.Doc) error {
			return d.Path("notes", noteKey).Set(text)
		})
	})
	if err != nil {
		fmt.Println("Could not save note:", err)
		return err
	}

	fmt.Println("Note saved and queued for sync")
	return nil
}

// openNote returns the live document for id, registering it on first use.
func (a *App) openNote(ctx context.Context, id string) (*document.AutomergeDoc, error) {
	a.mu.Lock()
	if doc, ok := a.open[id]; ok {
		a.mu.Unlock()
		return doc, nil
	}
	a.mu.Unlock()

	doc := document.NewAutomergeDoc()
	handle := document.NewHandle(id, common.DocumentTypeFieldNotes, doc)
	if err := a.registry.Register(ctx, handle); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.open[id] = doc
	a.handles[id] = handle
	a.mu.Unlock()
	return doc, nil
}

func (a *App) handleFor(id string) *document.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handles[id]
}
