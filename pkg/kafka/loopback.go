package kafka

import (
	"context"
	"errors"
	"sync"
)

// Loopback is an in-process stand-in for a Producer. Publish encodes the event
// exactly as the Producer would and hands it to every registered handler
// before returning, so single-binary deployments run the same handlers
// without a broker.
type Loopback struct {
	mu       sync.RWMutex
	handlers []MessageHandler
}

// NewLoopback returns a Loopback that delivers to the given handlers.
func NewLoopback(handlers ...MessageHandler) *Loopback {
	return &Loopback{handlers: handlers}
}

// Subscribe adds a handler for subsequent events.
func (l *Loopback) Subscribe(h MessageHandler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
}

// Publish delivers the event to every handler and joins their errors.
func (l *Loopback) Publish(ctx context.Context, event Event) error {
	raw, err := encode(event)
	if err != nil {
		return err
	}
	msg := Message{Key: raw.Key, Value: raw.Value, Headers: make(map[string]string, len(raw.Headers))}
	for _, h := range raw.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}

	l.mu.RLock()
	handlers := append([]MessageHandler(nil), l.handlers...)
	l.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op.
func (l *Loopback) Close() error { return nil }
