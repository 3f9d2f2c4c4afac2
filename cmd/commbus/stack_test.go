package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commbus/internal/config"
	"commbus/internal/logging"
	"commbus/internal/request"
)

func TestBuildStackJournalsErrorEvents(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t)
	cfg.Journal.LevelDBPath = filepath.Join(t.TempDir(), "journal")

	st, err := buildStack(cfg, logging.NewDiscard())
	require.NoError(t, err)
	require.NotNil(t, st.prom)
	require.NotNil(t, st.journal)

	var h request.Handle
	require.NoError(t, st.bus.Publish(context.Background(), cfg.Events.Dispatch, &request.Description{
		URL:         srv.URL + "/full",
		ErrorPrefix: "Save failed",
		OnControl:   func(handle request.Handle) { h = handle },
	}))
	require.NotNil(t, h)
	<-h.Done()

	recs, err := st.journal.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Save failed. disk full.", recs[0].Message)

	// The scrape output carries the interceptor counters.
	rec := httptest.NewRecorder()
	st.prom.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "commbus_")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, st.close(ctx))
}

func TestBuildStackWithoutJournalOrMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	cfg.Metrics.Enabled = false

	st, err := buildStack(cfg, logging.NewDiscard())
	require.NoError(t, err)
	assert.Nil(t, st.journal)
	assert.Nil(t, st.prom)
	assert.Nil(t, st.health)
	require.NoError(t, st.close(context.Background()))
}

func TestBuildStackNATSUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.Kind = "nats"
	cfg.Bus.NATS = config.NATSConfig{URL: "nats://127.0.0.1:1", Name: "test"}

	_, err := buildStack(cfg, logging.NewDiscard())
	assert.Error(t, err)
}

func TestTransportConfigFromSettings(t *testing.T) {
	tc := transportConfig(config.TransportConfig{
		Timeout:        time.Second,
		UserAgent:      "ua",
		DefaultHeaders: map[string]string{"x-client": "portal"},
		DefaultQuery:   map[string]string{"lang": "en"},
	})
	assert.Equal(t, time.Second, tc.Timeout)
	assert.Equal(t, "portal", tc.DefaultHeader.Get("X-Client"))
	assert.Equal(t, "en", tc.DefaultQuery.Get("lang"))
}
