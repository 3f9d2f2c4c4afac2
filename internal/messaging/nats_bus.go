package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"

	"commbus/internal/logging"
)

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

// NATSBus carries JSON-encoded payloads over NATS. Handlers receive
// json.RawMessage; use Decode to get a typed value.
type NATSBus struct {
	nc     *nats.Conn
	prefix string
	logger logging.Logger
}

var _ Bus = (*NATSBus)(nil)

func NewNATSBus(cfg NATSConfig, logger logging.Logger, opts ...nats.Option) (*NATSBus, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}
	base := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("NATS error", "error", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}
	if cfg.Name != "" {
		base = append(base, nats.Name(cfg.Name))
	}
	nc, err := nats.Connect(cfg.URL, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSBus{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

func (b *NATSBus) subject(s string) string {
	if b.prefix == "" {
		return s
	}
	return b.prefix + "." + s
}

func (b *NATSBus) Publish(_ context.Context, subject string, payload any) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", subject, err)
	}
	if err := b.nc.Publish(b.subject(subject), data); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(subject string, handler Handler) (io.Closer, error) {
	full := b.subject(subject)
	sub, err := b.nc.Subscribe(full, func(m *nats.Msg) {
		if err := handler(context.Background(), json.RawMessage(m.Data)); err != nil {
			b.logger.Warn("Bus handler error", "subject", full, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", full, err)
	}
	return closerFunc(func() error { return sub.Unsubscribe() }), nil
}

func (b *NATSBus) Flush() error { return b.nc.Flush() }

func (b *NATSBus) IsConnected() bool { return b.nc.IsConnected() }

// Close drains pending messages before closing the connection.
func (b *NATSBus) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}
