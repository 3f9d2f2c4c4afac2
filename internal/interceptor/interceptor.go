package interceptor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"commbus/internal/logging"
	"commbus/internal/messaging"
	"commbus/internal/metrics"
	"commbus/internal/request"
	"commbus/internal/transport"
)

const (
	DefaultDispatchSubject = "dispatch"
	DefaultErrorSubject    = "error"
)

// Interceptor bridges the dispatch subject and the transport. Failed calls
// become one error event each; successful calls publish nothing.
type Interceptor struct {
	bus       messaging.Bus
	transport transport.Transport
	logger    logging.Logger
	metrics   metrics.Provider

	dispatchSubject string
	errorSubject    string

	mu  sync.Mutex
	sub io.Closer
}

type Option func(*Interceptor)

func WithLogger(l logging.Logger) Option    { return func(i *Interceptor) { i.logger = l } }
func WithMetrics(m metrics.Provider) Option { return func(i *Interceptor) { i.metrics = m } }

// WithSubjects overrides the subject names; empty values keep the defaults.
func WithSubjects(dispatch, errSubject string) Option {
	return func(i *Interceptor) {
		if dispatch != "" {
			i.dispatchSubject = dispatch
		}
		if errSubject != "" {
			i.errorSubject = errSubject
		}
	}
}

func New(bus messaging.Bus, tr transport.Transport, opts ...Option) *Interceptor {
	i := &Interceptor{
		bus:             bus,
		transport:       tr,
		dispatchSubject: DefaultDispatchSubject,
		errorSubject:    DefaultErrorSubject,
	}
	for _, o := range opts {
		o(i)
	}
	if i.logger == nil {
		i.logger = logging.NewDefaultLogger()
	}
	if i.metrics == nil {
		i.metrics = metrics.Noop{}
	}
	return i
}

func (i *Interceptor) DispatchSubject() string { return i.dispatchSubject }
func (i *Interceptor) ErrorSubject() string    { return i.errorSubject }

// Start subscribes to the dispatch subject. Calling it twice is a no-op.
func (i *Interceptor) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sub != nil {
		return nil
	}
	sub, err := i.bus.Subscribe(i.dispatchSubject, i.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", i.dispatchSubject, err)
	}
	i.sub = sub
	i.logger.Info("Request interceptor listening", "dispatch", i.dispatchSubject, "error", i.errorSubject)
	return nil
}

// Close unsubscribes. Calls already issued run to completion and still
// report failures.
func (i *Interceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sub == nil {
		return nil
	}
	err := i.sub.Close()
	i.sub = nil
	return err
}

func (i *Interceptor) handle(ctx context.Context, payload any) error {
	d, err := messaging.Decode[*request.Description](payload)
	if err != nil {
		i.logger.Warn("Dropping dispatch payload", "error", err)
		return fmt.Errorf("dispatch payload: %w", err)
	}
	if d == nil {
		return fmt.Errorf("dispatch payload: %w: nil description", messaging.ErrPayloadType)
	}
	i.OnDispatch(ctx, d)
	return nil
}

// OnDispatch issues the call described by d. It works on a copy of d, so the
// caller's value is never modified, and it returns as soon as the call is
// issued and the control hook has run. Every description gets its own call;
// IDs only label calls in logs and handles.
func (i *Interceptor) OnDispatch(ctx context.Context, d *request.Description) {
	d = d.Clone()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	// The call must outlive the publisher, e.g. an ingress HTTP request.
	callCtx := context.WithoutCancel(ctx)
	id, prefix := d.ID, d.ErrorPrefix
	d.OnFailure = func(f *request.Failure) {
		i.reportFailure(callCtx, id, prefix, f)
	}

	i.metrics.IncCounter(metrics.Dispatched, 1)
	i.logger.Debug("Dispatching request", "id", id, "method", d.Method, "url", d.URL)
	call := i.transport.Do(callCtx, d)

	if d.OnControl != nil {
		i.control(d, call)
	}
}

func (i *Interceptor) control(d *request.Description, call *transport.Call) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Control hook panicked", "id", d.ID, "panic", r)
		}
	}()
	d.OnControl(call)
}

func (i *Interceptor) reportFailure(ctx context.Context, id, prefix string, f *request.Failure) {
	eb := decodeErrorBody(f.Body)
	if eb.kind == bodyUnparsed {
		i.metrics.IncCounter(metrics.UnparsedBodies, 1)
	}
	i.metrics.IncCounter(metrics.Failures, 1)
	i.logger.Debug("Request failed", "id", id, "status", f.StatusCode, "error", f.Err)

	msg := format(prefix, eb)
	if err := i.bus.Publish(ctx, i.errorSubject, msg); err != nil {
		i.metrics.IncCounter(metrics.ErrorPublishFails, 1)
		i.logger.Error("Publishing error event failed", "id", id, "subject", i.errorSubject, "error", err)
		return
	}
	i.metrics.IncCounter(metrics.ErrorEvents, 1)
}
