package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrClosed      = errors.New("bus closed")
	ErrPayloadType = errors.New("unexpected payload type")
)

// Handler receives one published payload. In-process buses hand over the
// published value; wire buses hand over json.RawMessage.
type Handler func(ctx context.Context, payload any) error

// Bus is a pluggable messaging interface for broadcast and subscription.
// Every handler subscribed to a subject receives every payload published on it.
type Bus interface {
	Publish(ctx context.Context, subject string, payload any) error
	Subscribe(subject string, handler Handler) (io.Closer, error)
}

// Decode turns a payload into T, whichever bus delivered it.
func Decode[T any](payload any) (T, error) {
	var out T
	switch v := payload.(type) {
	case T:
		return v, nil
	case json.RawMessage:
		return out, unmarshal(v, &out)
	case []byte:
		return out, unmarshal(v, &out)
	default:
		return out, fmt.Errorf("%w: %T", ErrPayloadType, payload)
	}
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadType, err)
	}
	return nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }
