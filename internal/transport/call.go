package transport

import (
	"context"
	"sync"

	"commbus/internal/request"
)

// Call is the handle of one in-flight HTTP call.
type Call struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	err    error
	status int
}

var _ request.Handle = (*Call)(nil)

func newCall(id string, cancel context.CancelFunc) *Call {
	return &Call{id: id, cancel: cancel, done: make(chan struct{})}
}

func (c *Call) ID() string { return c.id }

// Cancel aborts the call. The transport reports it as a failure with
// ErrCanceled unless the call already finished.
func (c *Call) Cancel() { c.cancel() }

func (c *Call) Done() <-chan struct{} { return c.done }

func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Call) StatusCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Call) finish(status int, err error) {
	c.mu.Lock()
	c.status = status
	c.err = err
	c.mu.Unlock()
	close(c.done)
}
