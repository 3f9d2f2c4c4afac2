package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-multierror"

	"commbus/internal/config"
	"commbus/internal/interceptor"
	"commbus/internal/logging"
	"commbus/internal/messaging"
	"commbus/internal/metrics"
	"commbus/internal/storage"
	"commbus/internal/transport"
)

// stack is the wired set of components one process runs.
type stack struct {
	cfg    *config.AppConfig
	logger logging.Logger

	prom    *metrics.Prom
	metrics metrics.Provider

	bus      messaging.Bus
	closeBus func() error
	health   func() error

	transport   *transport.HTTPTransport
	interceptor *interceptor.Interceptor

	store   storage.Store
	journal *storage.Journal
}

func buildStack(cfg *config.AppConfig, logger logging.Logger) (_ *stack, err error) {
	s := &stack{cfg: cfg, logger: logger, metrics: metrics.Noop{}}
	defer func() {
		if err != nil {
			_ = s.close(context.Background())
		}
	}()

	if cfg.Metrics.Enabled {
		s.prom = metrics.NewProm()
		s.metrics = s.prom
	}

	switch cfg.Bus.Kind {
	case "nats":
		nb, nerr := messaging.NewNATSBus(messaging.NATSConfig{
			URL:           cfg.Bus.NATS.URL,
			Name:          cfg.Bus.NATS.Name,
			SubjectPrefix: cfg.Bus.NATS.SubjectPrefix,
			ReconnectWait: cfg.Bus.NATS.ReconnectWait,
			MaxReconnects: cfg.Bus.NATS.MaxReconnects,
		}, logger)
		if nerr != nil {
			return nil, nerr
		}
		s.bus, s.closeBus = nb, nb.Close
		s.health = func() error {
			if !nb.IsConnected() {
				return fmt.Errorf("nats bus disconnected")
			}
			return nil
		}
	default:
		mb := messaging.NewMemoryBus(logger)
		s.bus, s.closeBus = mb, mb.Close
	}

	s.transport = transport.NewHTTPTransport(transportConfig(cfg.Transport),
		transport.WithLogger(logger),
		transport.WithMetrics(s.metrics),
	)

	s.interceptor = interceptor.New(s.bus, s.transport,
		interceptor.WithLogger(logger),
		interceptor.WithMetrics(s.metrics),
		interceptor.WithSubjects(cfg.Events.Dispatch, cfg.Events.Error),
	)

	if cfg.Journal.Enabled {
		store, serr := openStore(cfg.Journal)
		if serr != nil {
			return nil, fmt.Errorf("open journal: %w", serr)
		}
		s.store = store
		s.journal = storage.NewJournal(s.store, logger, s.metrics)
		if err = s.journal.Attach(s.bus, s.interceptor.ErrorSubject()); err != nil {
			return nil, err
		}
	}

	if err = s.interceptor.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

func openStore(jc config.JournalConfig) (storage.Store, error) {
	if jc.LevelDBPath != "" {
		return storage.NewLevelDB(jc.LevelDBPath)
	}
	return storage.NewInMemory(jc.MemorySize)
}

func transportConfig(tc config.TransportConfig) transport.Config {
	out := transport.Config{
		Timeout:       tc.Timeout,
		MaxBodyBytes:  tc.MaxBodyBytes,
		UserAgent:     tc.UserAgent,
		DefaultHeader: http.Header{},
		DefaultQuery:  url.Values{},
	}
	for k, v := range tc.DefaultHeaders {
		out.DefaultHeader.Set(k, v)
	}
	for k, v := range tc.DefaultQuery {
		out.DefaultQuery.Set(k, v)
	}
	return out
}

// close stops intake first, then drains in-flight calls so their error
// events still reach the journal, then releases storage and the bus.
func (s *stack) close(ctx context.Context) error {
	var result *multierror.Error
	if s.interceptor != nil {
		if err := s.interceptor.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.transport != nil {
		if err := s.transport.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("drain transport: %w", err))
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close journal store: %w", err))
		}
	}
	if s.closeBus != nil {
		if err := s.closeBus(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close bus: %w", err))
		}
	}
	return result.ErrorOrNil()
}
