package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader replays queued fetch results, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	fetches   []fetchResult
	committed []int64
}

type fetchResult struct {
	msg kafka.Message
	err error
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.fetches) > 0 {
		next := f.fetches[0]
		f.fetches = f.fetches[1:]
		f.mu.Unlock()
		return next.msg, next.err
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{fetches: []fetchResult{
		{msg: kafka.Message{Offset: 1, Key: []byte("acme"), Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte("document.ingested")}}}},
		{err: errors.New("broker unavailable")},
		{msg: kafka.Message{Offset: 2, Value: []byte("bad")}},
		{msg: kafka.Message{Offset: 3}},
	}}

	var (
		mu   sync.Mutex
		seen []Message
	)
	handler := func(_ context.Context, m Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m)
		if string(m.Value) == "bad" {
			return errors.New("undecodable")
		}
		return nil
	}
	c := newConsumer(r, slog.Default(), handler)
	c.minBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 3}, r.commits())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, "acme", string(seen[0].Key))
	assert.Equal(t, "document.ingested", seen[0].Headers[HeaderEventType])
}

func TestConsumerStopsDuringBackoff(t *testing.T) {
	r := &fakeReader{fetches: []fetchResult{{err: errors.New("down")}}}
	c := newConsumer(r, slog.Default(), func(context.Context, Message) error { return nil })
	c.minBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
