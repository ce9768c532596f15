package document

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeDoc records applies and hands out pre-seeded change fragments.
type fakeDoc struct {
	applied  [][]byte
	pending  []byte
	applyErr error
}

func (d *fakeDoc) ApplyUpdate(update []byte) error {
	if d.applyErr != nil {
		return d.applyErr
	}
	d.applied = append(d.applied, update)
	return nil
}

func (d *fakeDoc) Changes() ([]byte, error) {
	update := d.pending
	d.pending = nil
	return update, nil
}

func newRegistry(t *testing.T, policy UnregisteredPolicy) (*Registry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	q := NewQueue(st, discardLogger())
	return NewRegistry(q, discardLogger(), policy), st
}

func edit(t *testing.T, h *Handle, doc *fakeDoc, update string) {
	t.Helper()
	require.NoError(t, h.Edit(func() error {
		doc.pending = []byte(update)
		return nil
	}))
}

func TestLocalEdits_EnqueuedInEmissionOrder(t *testing.T) {
	r, st := newRegistry(t, PolicyDiscard)
	ctx := context.Background()

	doc := &fakeDoc{}
	h := NewHandle("doc-1", common.DocumentTypeFieldNotes, doc)
	require.NoError(t, r.Register(ctx, h))

	edit(t, h, doc, "u1")
	edit(t, h, doc, "u2")
	edit(t, h, doc, "u3")

	items := r.queue.Items()
	require.Len(t, items, 3)
	for i, want := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, "doc-1", items[i].DocumentID)
		assert.Equal(t, common.DocumentTypeFieldNotes, items[i].DocumentType)
		assert.Equal(t, []byte(want), items[i].Updates)
	}

	// persisted order equals emission order
	raw, err := st.Get(ctx, StorageKey)
	require.NoError(t, err)
	var persisted []SyncFragment
	require.NoError(t, json.Unmarshal(raw, &persisted))
	require.Len(t, persisted, 3)
	for i, want := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, []byte(want), persisted[i].Updates)
	}
}

func TestEdit_NoChangesEnqueuesNothing(t *testing.T) {
	r, _ := newRegistry(t, PolicyDiscard)
	ctx := context.Background()

	doc := &fakeDoc{}
	h := NewHandle("doc-1", common.DocumentTypeReport, doc)
	require.NoError(t, r.Register(ctx, h))

	require.NoError(t, h.Edit(func() error { return nil }))
	assert.Zero(t, r.queue.Len())
}

func TestRegister_RejectsUnknownType(t *testing.T) {
	r, _ := newRegistry(t, PolicyDiscard)
	h := NewHandle("doc-1", common.DocumentType("bogus"), &fakeDoc{})
	assert.Error(t, r.Register(context.Background(), h))
}

func TestRegister_IdempotentPerID(t *testing.T) {
	r, _ := newRegistry(t, PolicyDiscard)
	ctx := context.Background()

	doc1 := &fakeDoc{}
	h1 := NewHandle("doc-1", common.DocumentTypeFieldNotes, doc1)
	require.NoError(t, r.Register(ctx, h1))

	doc2 := &fakeDoc{}
	h2 := NewHandle("doc-1", common.DocumentTypeFieldNotes, doc2)
	require.NoError(t, r.Register(ctx, h2))

	// the replaced handle's subscription is gone: its edits go nowhere
	edit(t, h1, doc1, "stale")
	assert.Zero(t, r.queue.Len())

	// the new handle feeds the queue exactly once per edit
	edit(t, h2, doc2, "fresh")
	items := r.queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, []byte("fresh"), items[0].Updates)

	// remote fragments land in the new document
	enc := base64.StdEncoding.EncodeToString([]byte("remote"))
	require.NoError(t, r.ApplyRemoteFragment(ctx, "doc-1", enc))
	assert.Empty(t, doc1.applied)
	require.Len(t, doc2.applied, 1)
	assert.Equal(t, []byte("remote"), doc2.applied[0])
}

func TestApplyRemoteFragment_MalformedBase64(t *testing.T) {
	r, _ := newRegistry(t, PolicyDiscard)
	ctx := context.Background()

	doc := &fakeDoc{}
	require.NoError(t, r.Register(ctx, NewHandle("doc-1", common.DocumentTypeFieldNotes, doc)))

	err := r.ApplyRemoteFragment(ctx, "doc-1", "%%% not base64 %%%")
	assert.True(t, errors.Is(err, common.ErrDecode))
	assert.Empty(t, doc.applied)
}

func TestApplyRemoteFragment_DocRejectionIsDecodeError(t *testing.T) {
	r, _ := newRegistry(t, PolicyDiscard)
	ctx := context.Background()

	doc := &fakeDoc{applyErr: errors.New("bad chunk")}
	require.NoError(t, r.Register(ctx, NewHandle("doc-1", common.DocumentTypeFieldNotes, doc)))

	enc := base64.StdEncoding.EncodeToString([]byte("u"))
	err := r.ApplyRemoteFragment(ctx, "doc-1", enc)
	assert.True(t, errors.Is(err, common.ErrDecode))
}

func TestApplyRemoteFragment_UnregisteredDiscard(t *testing.T) {
	r, _ := newRegistry(t, PolicyDiscard)

	enc := base64.StdEncoding.EncodeToString([]byte("u"))
	err := r.ApplyRemoteFragment(context.Background(), "nobody", enc)
	assert.True(t, errors.Is(err, common.ErrNotRegistered))
}

func TestApplyRemoteFragment_UnregisteredBufferReplaysOnRegister(t *testing.T) {
	r, _ := newRegistry(t, PolicyBuffer)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2"} {
		enc := base64.StdEncoding.EncodeToString([]byte(u))
		require.NoError(t, r.ApplyRemoteFragment(ctx, "doc-1", enc))
	}

	doc := &fakeDoc{}
	require.NoError(t, r.Register(ctx, NewHandle("doc-1", common.DocumentTypeFieldNotes, doc)))

	require.Len(t, doc.applied, 2)
	assert.Equal(t, []byte("u1"), doc.applied[0])
	assert.Equal(t, []byte("u2"), doc.applied[1])

	// the backlog is consumed, not replayed twice
	doc2 := &fakeDoc{}
	require.NoError(t, r.Register(ctx, NewHandle("doc-1", common.DocumentTypeFieldNotes, doc2)))
	assert.Empty(t, doc2.applied)
}

func TestApplyRemoteFragment_BufferBounded(t *testing.T) {
	r, _ := newRegistry(t, PolicyBuffer)
	ctx := context.Background()

	for i := 0; i < maxBufferedPerDocument+3; i++ {
		enc := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("u%02d", i)))
		require.NoError(t, r.ApplyRemoteFragment(ctx, "doc-1", enc))
	}

	doc := &fakeDoc{}
	require.NoError(t, r.Register(ctx, NewHandle("doc-1", common.DocumentTypeFieldNotes, doc)))

	require.Len(t, doc.applied, maxBufferedPerDocument)
	// the oldest three were evicted
	assert.Equal(t, []byte("u03"), doc.applied[0])
}

func TestUnregister_StopsFeedingQueue(t *testing.T) {
	r, _ := newRegistry(t, PolicyDiscard)
	ctx := context.Background()

	doc := &fakeDoc{}
	h := NewHandle("doc-1", common.DocumentTypeFieldNotes, doc)
	require.NoError(t, r.Register(ctx, h))
	r.Unregister("doc-1")

	edit(t, h, doc, "u1")
	assert.Zero(t, r.queue.Len())
	assert.False(t, r.Registered("doc-1"))
}

// captureSender records delivered paths and bodies.
type captureSender struct {
	paths  []string
	bodies [][]byte
	err    error
}

func (c *captureSender) Do(_ context.Context, method, path string, body []byte) ([]byte, error) {
	c.paths = append(c.paths, method+" "+path)
	c.bodies = append(c.bodies, body)
	return nil, c.err
}

func TestDeliver_PostsToPerTypeSyncPath(t *testing.T) {
	sender := &captureSender{}
	deliver := Deliver(sender)

	frag := SyncFragment{
		ID:           "f1",
		DocumentID:   "doc-9",
		DocumentType: common.DocumentTypePropertyDetails,
		Updates:      []byte{0x01, 0x02},
	}
	require.NoError(t, deliver(context.Background(), frag))

	require.Len(t, sender.paths, 1)
	assert.Equal(t, "POST /api/propertyDetails/doc-9/sync", sender.paths[0])

	var payload struct {
		Updates []byte `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(sender.bodies[0], &payload))
	assert.Equal(t, []byte{0x01, 0x02}, payload.Updates)
}

func TestFragmentQueue_SurvivesRestart(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	q1 := NewQueue(st, discardLogger())
	frag := SyncFragment{ID: "f1", DocumentID: "d", DocumentType: common.DocumentTypeReport, Updates: []byte{0xde, 0xad}}
	require.NoError(t, q1.Enqueue(ctx, frag))

	q2 := NewQueue(st, discardLogger())
	require.NoError(t, q2.Load(ctx))

	items := q2.Items()
	require.Len(t, items, 1)
	assert.Equal(t, []byte{0xde, 0xad}, items[0].Updates)
}
