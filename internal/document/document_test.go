package document

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/badgerdb"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
)

func TestNew(t *testing.T) {
	doc, err := New("t1", "hello", []string{"news", "sports", "news"}, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	parsed, err := uuid.Parse(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Equal(t, []string{"news", "sports"}, doc.Sections)
	assert.Equal(t, ContentHash("hello"), doc.ContentHash)
	assert.Len(t, doc.ContentHash, 64)
	assert.NotEqual(t, ContentHash("hello"), ContentHash("hello "))
}

func TestInAnySection(t *testing.T) {
	doc := &Document{Sections: []string{"a", "b"}}
	assert.True(t, doc.InAnySection(nil))
	assert.True(t, doc.InAnySection([]string{"x", "b"}))
	assert.False(t, doc.InAnySection([]string{"x"}))
	assert.False(t, (&Document{}).InAnySection([]string{"a"}))
}

func newBadgerStore(t *testing.T) Store {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db)
}

func TestBadgerStore(t *testing.T) {
	runStoreTests(t, newBadgerStore)
}

func mustNew(t *testing.T, tenantID, text string, sections ...string) *Document {
	t.Helper()
	doc, err := New(tenantID, text, sections, nil)
	require.NoError(t, err)
	return doc
}

// runStoreTests exercises behaviour every Store implementation shares.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		store := open(t)
		tenant := uuid.NewString()
		doc := mustNew(t, tenant, "Chất phụ gia thực phẩm", "health")
		doc.Phrases = []string{"chất phụ gia", "thực phẩm"}
		doc.ExtraData = json.RawMessage(`{"source":"rss"}`)
		require.NoError(t, store.Insert(ctx, doc))

		got, err := store.Get(ctx, tenant, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.Text, got.Text)
		assert.Equal(t, doc.Sections, got.Sections)
		assert.Equal(t, doc.Phrases, got.Phrases)
		assert.JSONEq(t, `{"source":"rss"}`, string(got.ExtraData))
		assert.Equal(t, doc.ContentHash, got.ContentHash)
		assert.WithinDuration(t, doc.CreatedAt, got.CreatedAt, 0)
	})

	t.Run("foreign tenant sees nothing", func(t *testing.T) {
		store := open(t)
		doc := mustNew(t, uuid.NewString(), "private")
		require.NoError(t, store.Insert(ctx, doc))

		other := uuid.NewString()
		_, err := store.Get(ctx, other, doc.ID)
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
		assert.ErrorIs(t, store.Delete(ctx, other, doc.ID), apperrors.ErrDocumentNotFound)

		_, err = store.Get(ctx, doc.TenantID, "not-a-uuid")
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		store := open(t)
		tenant := uuid.NewString()
		var ids []string
		for _, text := range []string{"one", "two", "three"} {
			doc := mustNew(t, tenant, text)
			require.NoError(t, store.Insert(ctx, doc))
			ids = append(ids, doc.ID)
		}
		require.NoError(t, store.Insert(ctx, mustNew(t, uuid.NewString(), "elsewhere")))

		all, err := store.List(ctx, tenant, 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, docIDs(all))

		page, err := store.List(ctx, tenant, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[1]}, docIDs(page))

		empty, err := store.List(ctx, tenant, 5, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete", func(t *testing.T) {
		store := open(t)
		doc := mustNew(t, uuid.NewString(), "gone soon")
		doc.IdempotencyKey = "k1"
		require.NoError(t, store.Insert(ctx, doc))
		require.NoError(t, store.Delete(ctx, doc.TenantID, doc.ID))

		_, err := store.Get(ctx, doc.TenantID, doc.ID)
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
		assert.ErrorIs(t, store.Delete(ctx, doc.TenantID, doc.ID), apperrors.ErrDocumentNotFound)

		found, err := store.FindByIdempotencyKey(ctx, doc.TenantID, "k1")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("idempotency key", func(t *testing.T) {
		store := open(t)
		tenant := uuid.NewString()
		first := mustNew(t, tenant, "first")
		first.IdempotencyKey = "req-1"
		require.NoError(t, store.Insert(ctx, first))

		found, err := store.FindByIdempotencyKey(ctx, tenant, "req-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, first.ID, found.ID)

		second := mustNew(t, tenant, "second")
		second.IdempotencyKey = "req-1"
		err = store.Insert(ctx, second)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Equal(t, 409, apperrors.HTTPStatusCode(err))

		other := mustNew(t, uuid.NewString(), "same key, other tenant")
		other.IdempotencyKey = "req-1"
		assert.NoError(t, store.Insert(ctx, other))

		missing, err := store.FindByIdempotencyKey(ctx, tenant, "req-2")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("scan", func(t *testing.T) {
		store := open(t)
		tenant := uuid.NewString()
		for _, text := range []string{"a", "b", "c", "d"} {
			require.NoError(t, store.Insert(ctx, mustNew(t, tenant, text)))
		}
		require.NoError(t, store.Insert(ctx, mustNew(t, uuid.NewString(), "x")))

		var texts []string
		require.NoError(t, store.Scan(ctx, tenant, func(d *Document) error {
			texts = append(texts, d.Text)
			return nil
		}))
		assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, texts)

		var kept []*Document
		require.NoError(t, store.Scan(ctx, tenant, func(d *Document) error {
			kept = append(kept, d)
			return nil
		}))
		require.Len(t, kept, 4)
		retained := make([]string, 0, len(kept))
		for i, d := range kept {
			for _, other := range kept[i+1:] {
				assert.NotSame(t, d, other)
			}
			retained = append(retained, d.Text)
		}
		assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, retained)

		stop := errors.New("stop")
		calls := 0
		err := store.Scan(ctx, tenant, func(*Document) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err = store.Scan(cancelled, tenant, func(*Document) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, open(t).Ping(ctx))
	})
}

func docIDs(docs []*Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
