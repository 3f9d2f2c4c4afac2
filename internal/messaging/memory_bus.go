package messaging

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"

	"commbus/internal/logging"
)

// MemoryBus delivers payloads synchronously, on the publisher's goroutine,
// to every handler subscribed to the subject.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
	closed   bool
	logger   logging.Logger
}

type subscription struct {
	h Handler
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus(logger logging.Logger) *MemoryBus {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &MemoryBus{handlers: make(map[string][]*subscription), logger: logger}
}

func (b *MemoryBus) Subscribe(subject string, h Handler) (io.Closer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &subscription{h: h}
	b.handlers[subject] = append(b.handlers[subject], sub)
	return closerFunc(func() error {
		b.unsubscribe(subject, sub)
		return nil
	}), nil
}

func (b *MemoryBus) unsubscribe(subject string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[subject]
	for i, s := range subs {
		if s == sub {
			b.handlers[subject] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[subject]) == 0 {
		delete(b.handlers, subject)
	}
}

// Publish returns the combined errors of the handlers that failed or
// panicked; the remaining handlers still run.
func (b *MemoryBus) Publish(ctx context.Context, subject string, payload any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := append([]*subscription(nil), b.handlers[subject]...)
	b.mu.RUnlock()

	var result *multierror.Error
	for i, s := range subs {
		if err := b.deliver(ctx, subject, i, s.h, payload); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (b *MemoryBus) deliver(ctx context.Context, subject string, idx int, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Bus handler panic", "subject", subject, "handler_index", idx, "panic", r)
			err = fmt.Errorf("handler %d on %q panicked: %v", idx, subject, r)
		}
	}()
	if err = h(ctx, payload); err != nil {
		b.logger.Warn("Bus handler error", "subject", subject, "handler_index", idx, "error", err)
	}
	return err
}

// Close drops all subscriptions; later calls fail with ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]*subscription)
	return nil
}
