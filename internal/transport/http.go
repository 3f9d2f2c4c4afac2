package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"commbus/internal/logging"
	"commbus/internal/metrics"
	"commbus/internal/request"
)

var (
	ErrBuildRequest = errors.New("build request")
	ErrNetwork      = errors.New("network error")
	ErrTimeout      = errors.New("request timeout")
	ErrCanceled     = errors.New("request canceled")
	ErrStatus       = errors.New("unsuccessful status")
	ErrShutdown     = errors.New("transport shut down")
)

// Status texts for failures without a response, in the vocabulary browser
// clients use.
const (
	StatusTimeout = "timeout"
	StatusAbort   = "abort"
	StatusError   = "error"
)

const defaultFormContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// Transport issues the call described by d and returns at once. It must
// invoke d.OnFailure at most once, and only for a failed call.
type Transport interface {
	Do(ctx context.Context, d *request.Description) *Call
}

type Config struct {
	Timeout       time.Duration
	MaxBodyBytes  int64
	UserAgent     string
	DefaultHeader http.Header
	// DefaultQuery is merged into every URL unless the URL or the
	// description already sets the key.
	DefaultQuery url.Values
}

func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxBodyBytes: 1 << 20,
		UserAgent:    "commbus/1.0",
	}
}

type Option func(*HTTPTransport)

func WithClient(c *http.Client) Option     { return func(t *HTTPTransport) { t.client = c } }
func WithLogger(l logging.Logger) Option    { return func(t *HTTPTransport) { t.logger = l } }
func WithMetrics(m metrics.Provider) Option { return func(t *HTTPTransport) { t.metrics = m } }

// HTTPTransport runs each call on its own goroutine.
type HTTPTransport struct {
	client  *http.Client
	cfg     Config
	logger  logging.Logger
	metrics metrics.Provider

	// mu orders wg.Add in Do against wg.Wait in Shutdown.
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(cfg Config, opts ...Option) *HTTPTransport {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	t := &HTTPTransport{cfg: cfg}
	for _, o := range opts {
		o(t)
	}
	if t.client == nil {
		t.client = cleanhttp.DefaultPooledClient()
	}
	if t.logger == nil {
		t.logger = logging.NewDefaultLogger()
	}
	if t.metrics == nil {
		t.metrics = metrics.Noop{}
	}
	return t
}

func (t *HTTPTransport) Do(ctx context.Context, d *request.Description) *Call {
	callCtx, cancel := context.WithCancel(ctx)
	c := newCall(d.ID, cancel)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		t.fail(c, d, &request.Failure{Status: StatusAbort, Err: ErrShutdown})
		return c
	}
	t.wg.Add(1)
	t.mu.Unlock()

	t.metrics.SetGauge(metrics.InFlight, float64(t.inFlight.Add(1)))
	go func() {
		defer t.wg.Done()
		defer cancel()
		defer func() { t.metrics.SetGauge(metrics.InFlight, float64(t.inFlight.Add(-1))) }()
		t.run(callCtx, c, d)
	}()
	return c
}

// Shutdown waits for in-flight calls. It cancels nothing; calls issued
// afterwards fail at once with ErrShutdown.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d in-flight calls: %w", t.inFlight.Load(), ctx.Err())
	}
}

func (t *HTTPTransport) run(callCtx context.Context, c *Call, d *request.Description) {
	timeout := t.cfg.Timeout
	if v, ok := d.OptionDuration(request.OptTimeout); ok && v > 0 {
		timeout = v
	}
	reqCtx, cancelTimeout := context.WithTimeout(callCtx, timeout)
	defer cancelTimeout()

	start := time.Now()
	req, err := t.buildRequest(reqCtx, d)
	if err != nil {
		t.fail(c, d, &request.Failure{Status: StatusError, Err: fmt.Errorf("%w: %v", ErrBuildRequest, err)})
		return
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.fail(c, d, classify(callCtx, reqCtx, err))
		return
	}
	defer resp.Body.Close()

	limit := t.cfg.MaxBodyBytes
	if n, ok := d.OptionInt(request.OptMaxBodyBytes); ok && n > 0 {
		limit = n
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, limit))
	elapsed := time.Since(start)
	t.metrics.Observe(metrics.Latency, float64(elapsed.Milliseconds()))

	t.logger.Debug("HTTP call finished",
		"id", d.ID,
		"method", req.Method,
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"elapsed", elapsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.fail(c, d, &request.Failure{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
			Err:        fmt.Errorf("%w: %s", ErrStatus, resp.Status),
		})
		return
	}
	if readErr != nil {
		f := classify(callCtx, reqCtx, readErr)
		f.StatusCode = resp.StatusCode
		t.fail(c, d, f)
		return
	}

	if d.OnSuccess != nil {
		t.guard(d, "OnSuccess", func() {
			d.OnSuccess(&request.Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body})
		})
	}
	c.finish(resp.StatusCode, nil)
}

// fail runs the failure callback before Done is closed, so a caller waiting
// on the handle observes its side effects.
func (t *HTTPTransport) fail(c *Call, d *request.Description, f *request.Failure) {
	if d.OnFailure != nil {
		t.guard(d, "OnFailure", func() { d.OnFailure(f) })
	}
	c.finish(f.StatusCode, f)
}

func (t *HTTPTransport) guard(d *request.Description, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Request callback panicked", "id", d.ID, "callback", name, "panic", r)
		}
	}()
	fn()
}

func (t *HTTPTransport) buildRequest(ctx context.Context, d *request.Description) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(d.Method))
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, err
	}
	if len(t.cfg.DefaultQuery) > 0 || len(d.Query) > 0 {
		q := u.Query()
		for k, vs := range t.cfg.DefaultQuery {
			if !q.Has(k) {
				if _, own := d.Query[k]; !own {
					q[k] = append([]string(nil), vs...)
				}
			}
		}
		for k, vs := range d.Query {
			q[k] = append([]string(nil), vs...)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if d.Body != "" {
		body = strings.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", t.cfg.UserAgent)
	for k, vs := range t.cfg.DefaultHeader {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	for k, vs := range d.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if ct, ok := d.OptionString(request.OptContentType); ok && ct != "" {
		req.Header.Set("Content-Type", ct)
	} else if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", defaultFormContentType)
	}
	return req, nil
}

func classify(callCtx, reqCtx context.Context, err error) *request.Failure {
	switch {
	case errors.Is(callCtx.Err(), context.Canceled):
		return &request.Failure{Status: StatusAbort, Err: fmt.Errorf("%w: %v", ErrCanceled, err)}
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded) || isTimeout(err):
		return &request.Failure{Status: StatusTimeout, Err: fmt.Errorf("%w: %v", ErrTimeout, err)}
	default:
		return &request.Failure{Status: StatusError, Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
