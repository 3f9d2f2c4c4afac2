package request

import (
	"net/http"
	"net/url"
)

// Description describes one outgoing HTTP call plus the error prefix and the
// optional control hook. Callback fields never travel over a wire bus.
type Description struct {
	ID      string                 `json:"id,omitempty" yaml:"id,omitempty"`
	URL     string                 `json:"url" yaml:"url"`
	Method  string                 `json:"method,omitempty" yaml:"method,omitempty"`
	Header  http.Header            `json:"header,omitempty" yaml:"header,omitempty"`
	Query   url.Values             `json:"query,omitempty" yaml:"query,omitempty"`
	Body    string                 `json:"body,omitempty" yaml:"body,omitempty"`
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`

	// ErrorPrefix is prepended to every failure message published for this call.
	ErrorPrefix string `json:"error_prefix" yaml:"error_prefix"`

	// OnControl receives the in-flight call handle right after the call is issued.
	OnControl func(Handle) `json:"-" yaml:"-"`
	// OnSuccess is handed to the transport as is.
	OnSuccess func(*Response) `json:"-" yaml:"-"`
	// OnFailure is invoked by the transport at most once.
	OnFailure func(*Failure) `json:"-" yaml:"-"`
}

// Clone returns a shallow copy. Maps are shared; callers only replace
// callback fields on the copy.
func (d *Description) Clone() *Description {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Handle is the view of an in-flight call handed to OnControl.
type Handle interface {
	ID() string
	// Cancel aborts the call. A cancelled call reports a failure.
	Cancel()
	Done() <-chan struct{}
	// Err is nil until Done is closed, and nil after a successful call.
	Err() error
	StatusCode() int
}

// Response is what a successful call hands to OnSuccess.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Failure is what a failed call hands to OnFailure.
type Failure struct {
	StatusCode int
	Status     string
	Body       []byte
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Err.Error()
	}
	return f.Status
}

func (f *Failure) Unwrap() error { return f.Err }
