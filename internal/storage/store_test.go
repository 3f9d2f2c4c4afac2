package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commbus/internal/logging"
	"commbus/internal/messaging"
)

func records(n int) []ErrorRecord {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]ErrorRecord, n)
	for i := range out {
		out[i] = ErrorRecord{
			ID:      fmt.Sprintf("rec-%d", i),
			Message: fmt.Sprintf("Save failed. attempt %d.", i),
			At:      base.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	for _, r := range records(5) {
		require.NoError(t, s.Append(r))
	}

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "rec-4", recent[0].ID)
	assert.Equal(t, "rec-3", recent[1].ID)

	all, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	got, err := s.Get("rec-2")
	require.NoError(t, err)
	assert.Equal(t, "Save failed. attempt 2.", got.Message)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewInMemory(10)
	require.NoError(t, err)
	testStore(t, s)
}

func TestInMemoryStoreEvictsOldest(t *testing.T) {
	s, err := NewInMemory(3)
	require.NoError(t, err)
	for _, r := range records(5) {
		require.NoError(t, s.Append(r))
	}
	all, err := s.Recent(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rec-4", all[0].ID)
	assert.Equal(t, "rec-2", all[2].ID)
	_, err = s.Get("rec-0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLevelDBStore(t *testing.T) {
	s, err := NewLevelDB(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestLevelDBStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	s, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, s.Append(records(1)[0]))
	require.NoError(t, s.Close())

	s, err = NewLevelDB(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rec-0", got[0].ID)
}

func TestJournalRecordsErrorEvents(t *testing.T) {
	s, err := NewInMemory(10)
	require.NoError(t, err)
	bus := messaging.NewMemoryBus(logging.NewDiscard())
	j := NewJournal(s, logging.NewDiscard(), nil)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600))
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.Attach(bus, "error"))
	assert.Error(t, j.Attach(bus, "error"))

	require.NoError(t, bus.Publish(context.Background(), "error", "Save failed. disk full."))
	require.NoError(t, bus.Publish(context.Background(), "error", json.RawMessage(`"Load failed. "`)))
	assert.ErrorIs(t, bus.Publish(context.Background(), "error", 7), messaging.ErrPayloadType)

	got, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"Save failed. disk full.", "Load failed. "}, []string{got[0].Message, got[1].Message})
	assert.Equal(t, time.UTC, got[0].At.Location())

	require.NoError(t, j.Close())
	require.NoError(t, bus.Publish(context.Background(), "error", "ignored"))
	got, err = j.Recent(0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
