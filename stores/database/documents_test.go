package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"epserver/core"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	store, err := NewDocumentStore("sqlite:///:memory:", PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestCreateAndFindID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	history := core.History{{"url": "https://example.com/#abc", "hash": "abc", "creation": "2024-01-01T00:00:00Z"}}
	id, err := store.Create(ctx, &core.Document{
		Title:      "t",
		Data:       "x=1",
		DataHash:   core.Digest([]byte("x=1")),
		CreationIP: "127.0.0.1",
		History:    history,
	})
	require.NoError(t, err)
	assert.Len(t, id, core.IDLength)

	document, err := store.FindID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "t", document.Title)
	assert.Equal(t, "x=1", document.Data)
	assert.Equal(t, core.Digest([]byte("x=1")), document.DataHash)
	assert.Equal(t, "127.0.0.1", document.CreationIP)
	assert.Equal(t, int64(0), document.NumReads)
	assert.Equal(t, history, document.History)
}

func TestFindIDMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.FindID(context.Background(), "0000000000000000000000")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestFindHashReturnsAllMatches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	hash := core.Digest([]byte("same"))

	first, err := store.Create(ctx, &core.Document{Data: "same", DataHash: hash, Creation: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	second, err := store.Create(ctx, &core.Document{Data: "same", DataHash: hash, Creation: time.Now()})
	require.NoError(t, err)
	_, err = store.Create(ctx, &core.Document{Data: "other", DataHash: core.Digest([]byte("other"))})
	require.NoError(t, err)

	found, err := store.FindHash(ctx, hash)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, first, found[0].ID)
	assert.Equal(t, second, found[1].ID)
}

func TestUpdateHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, err := store.Create(ctx, &core.Document{Data: "a"})
	require.NoError(t, err)

	history := core.History{{"hash": id}}
	require.NoError(t, store.UpdateHistory(ctx, id, history))

	document, err := store.FindID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, history, document.History)

	err = store.UpdateHistory(ctx, "missing", history)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestRecordRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, err := store.Create(ctx, &core.Document{Data: "a"})
	require.NoError(t, err)

	at := time.Now().UTC().Add(time.Hour)
	document, err := store.RecordRead(ctx, id, at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), document.NumReads)
	assert.WithinDuration(t, at, document.Access, time.Second)

	document, err = store.RecordRead(ctx, id, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), document.NumReads)
	assert.False(t, document.Access.Before(at))
	last := document.Access

	document, err = store.RecordRead(ctx, id, at.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), document.NumReads)
	assert.WithinDuration(t, last, document.Access, time.Second)

	_, err = store.RecordRead(ctx, "missing", at)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestDeleteTitle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n, err := store.DeleteTitle(ctx, "sentinel")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := 0; i < 2; i++ {
		_, err := store.Create(ctx, &core.Document{Title: "sentinel", Data: "a"})
		require.NoError(t, err)
	}
	keep, err := store.Create(ctx, &core.Document{Title: "keep", Data: "a"})
	require.NoError(t, err)

	n, err = store.DeleteTitle(ctx, "sentinel")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.FindID(ctx, keep)
	assert.NoError(t, err)
}

func TestDropAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.DropAll(ctx))
	_, err := store.FindID(ctx, "any")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrNotFound))
	require.NoError(t, store.Migrate(ctx))
	assert.NoError(t, store.Ping(ctx))
}

func TestDocumentServiceOnDatabase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	service := core.NewDocumentService(store, core.ServiceOptions{SPAURL: "https://sheets.example"})

	create := func(document string, history core.History) *core.CreateResult {
		t.Helper()
		result, err := service.Create(ctx, core.Digest([]byte(document)), core.CreateRequest{
			Title:    "t",
			Document: document,
			History:  history,
			ClientIP: "127.0.0.1",
		})
		require.NoError(t, err)
		return result
	}

	first := create("x=1", nil)
	require.Len(t, first.History, 1)
	assert.Equal(t, first.Hash, first.History.Head()[core.HistoryHash])

	again := create("x=1", first.History)
	assert.Equal(t, first.Hash, again.Hash)
	assert.Equal(t, first.History, again.History)

	var rows int64
	require.NoError(t, store.db.Model(&document{}).Where("data_hash = ?", core.Digest([]byte("x=1"))).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	fresh := create("x=1", nil)
	assert.NotEqual(t, first.Hash, fresh.Hash)

	for i := 1; i <= 2; i++ {
		result, err := service.Get(ctx, first.Hash)
		require.NoError(t, err)
		assert.Equal(t, "x=1", result.Data)
		assert.Equal(t, first.History, result.History)

		stored, err := store.FindID(ctx, first.Hash)
		require.NoError(t, err)
		assert.Equal(t, int64(i), stored.NumReads)
	}

	big := strings.Repeat("a", core.DefaultMaxDocumentSize)
	result := create(big, nil)
	stored, err := store.FindID(ctx, result.Hash)
	require.NoError(t, err)
	assert.Len(t, stored.Data, core.DefaultMaxDocumentSize)

	_, err = service.Create(ctx, core.Digest([]byte(big+"a")), core.CreateRequest{Document: big + "a"})
	assert.True(t, errors.Is(err, core.ErrPayloadTooLarge))
}
