package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"commbus/internal/logging"
	"commbus/internal/messaging"
	"commbus/internal/metrics"
)

// Journal records every error event published on a subject.
type Journal struct {
	store   Store
	logger  logging.Logger
	metrics metrics.Provider
	now     func() time.Time

	mu  sync.Mutex
	sub io.Closer
}

func NewJournal(store Store, logger logging.Logger, m metrics.Provider) *Journal {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Journal{store: store, logger: logger, metrics: m, now: time.Now}
}

// Attach subscribes the journal to subject on bus.
func (j *Journal) Attach(bus messaging.Bus, subject string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sub != nil {
		return fmt.Errorf("journal already attached")
	}
	sub, err := bus.Subscribe(subject, j.Record)
	if err != nil {
		return fmt.Errorf("subscribe journal to %s: %w", subject, err)
	}
	j.sub = sub
	return nil
}

// Record is the bus handler; it stores one error event.
func (j *Journal) Record(_ context.Context, payload any) error {
	msg, err := messaging.Decode[string](payload)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	rec := ErrorRecord{ID: uuid.NewString(), Message: msg, At: j.now().UTC()}
	if err := j.store.Append(rec); err != nil {
		j.logger.Error("Failed to record error event", "error", err)
		return fmt.Errorf("journal append: %w", err)
	}
	j.metrics.IncCounter(metrics.JournalRecords, 1)
	return nil
}

func (j *Journal) Recent(limit int) ([]ErrorRecord, error) { return j.store.Recent(limit) }

func (j *Journal) Get(id string) (ErrorRecord, error) { return j.store.Get(id) }

// Close detaches from the bus. The store stays open.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sub == nil {
		return nil
	}
	err := j.sub.Close()
	j.sub = nil
	return err
}
