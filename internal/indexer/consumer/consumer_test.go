package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/phrase"
	"github.com/Adithya-Monish-Kumar-K/kokuto/internal/wordindex"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/badgerdb"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/kafka"
)

func newIndex(t *testing.T) *wordindex.Index {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return wordindex.New(wordindex.NewBadgerStore(db), config.IndexConfig{}, 4, nil)
}

func message(t *testing.T, evt ingestion.DocumentEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(evt)
	require.NoError(t, err)
	return kafka.Message{
		Key:     []byte(evt.TenantID),
		Value:   value,
		Headers: map[string]string{kafka.HeaderEventType: evt.Type},
	}
}

func TestHandleMessageAppliesQueuedCounts(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	handle := HandleMessage(idx, nil)

	evt := ingestion.DocumentEvent{
		Type:       ingestion.EventDocumentIngested,
		TenantID:   "t1",
		DocumentID: "d1",
		Sections:   []string{"news"},
		Counts:     []phrase.Count{{Phrase: "hello", Count: 2}, {Phrase: "hello world", Count: 1}},
	}
	require.NoError(t, handle(ctx, message(t, evt)))

	entry, err := idx.GetAppWord(ctx, "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Global)
	assert.Equal(t, int64(2), entry.Sections["news"])

	top, err := idx.GetAppSectionWords(ctx, "t1", "news", 0, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "hello", top[0].Word)
}

func TestHandleMessageSkips(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	handle := HandleMessage(idx, nil)
	counts := []phrase.Count{{Phrase: "hello", Count: 1}}

	require.NoError(t, handle(ctx, message(t, ingestion.DocumentEvent{
		Type: ingestion.EventDocumentIngested, TenantID: "t1", Counts: counts, Indexed: true,
	})))
	require.NoError(t, handle(ctx, message(t, ingestion.DocumentEvent{
		Type: ingestion.EventDocumentDeleted, TenantID: "t1", Counts: counts,
	})))
	require.NoError(t, handle(ctx, kafka.Message{Key: []byte("t1"), Value: []byte("{not json")}))

	words, err := idx.GetAppWords(ctx, "t1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, words)
}

type failingStore struct{ wordindex.Store }

func (failingStore) Incr(context.Context, string, string, []string, int64) error {
	return errors.New("connection refused")
}

func (failingStore) Name() string { return "failing" }

func TestHandleMessageReturnsIndexFailure(t *testing.T) {
	idx := wordindex.New(failingStore{}, config.IndexConfig{}, 1, nil)
	err := HandleMessage(idx, nil)(context.Background(), message(t, ingestion.DocumentEvent{
		Type:       ingestion.EventDocumentIngested,
		TenantID:   "t1",
		DocumentID: "d1",
		Counts:     []phrase.Count{{Phrase: "hello", Count: 1}},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIndexUpdate)
	assert.Contains(t, err.Error(), "d1")
}
