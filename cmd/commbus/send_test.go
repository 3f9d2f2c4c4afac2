package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commbus/internal/config"
	"commbus/internal/logging"
	"commbus/internal/request"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	t.Setenv("COMMBUS_MODE", "test")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Transport.Timeout = 5 * time.Second
	return cfg
}

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"saved"}`))
	})
	mux.HandleFunc("/full", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"disk full"}`))
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html>500</html>`))
	})
	mux.HandleFunc("/lang", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lang") != "fr" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"no-lang"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestParseRequests(t *testing.T) {
	descs, err := parseRequests(strings.NewReader(`
- url: http://portal/api/layers
  method: PUT
  error_prefix: Cannot add layer
  header:
    X-Trace: [abc]
  query:
    page: ["2"]
  options:
    timeout: 2s
- id: search-1
  url: http://portal/api/search
  error_prefix: Search failed
`))
	require.NoError(t, err)
	require.Len(t, descs, 2)

	assert.Equal(t, "PUT", descs[0].Method)
	assert.Equal(t, "Cannot add layer", descs[0].ErrorPrefix)
	assert.Equal(t, "abc", descs[0].Header.Get("X-Trace"))
	assert.Equal(t, "2", descs[0].Query.Get("page"))
	d, ok := descs[0].OptionDuration("timeout")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	assert.Equal(t, "search-1", descs[1].ID)
}

func TestParseRequestsErrors(t *testing.T) {
	_, err := parseRequests(strings.NewReader(``))
	assert.Error(t, err)

	_, err = parseRequests(strings.NewReader(`- method: GET`))
	assert.ErrorContains(t, err, "url is required")

	_, err = parseRequests(strings.NewReader(`url: http://x`))
	assert.Error(t, err)
}

func TestRunSendPrintsErrorEvents(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t)

	var out bytes.Buffer
	n, err := runSend(context.Background(), cfg, []*request.Description{
		{URL: srv.URL + "/ok", ErrorPrefix: "Save failed"},
		{URL: srv.URL + "/full", Method: http.MethodPost, ErrorPrefix: "Save failed"},
		{URL: srv.URL + "/html", ErrorPrefix: "Load failed"},
	}, &out, logging.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	sort.Strings(lines)
	assert.Equal(t, []string{"Load failed. ", "Save failed. disk full."}, lines)
}

func TestRunSendAllSucceed(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t)
	cfg.Transport.DefaultQuery = map[string]string{"lang": "fr"}

	var out bytes.Buffer
	n, err := runSend(context.Background(), cfg, []*request.Description{
		{URL: srv.URL + "/ok", ErrorPrefix: "A"},
		{URL: srv.URL + "/lang", ErrorPrefix: "B"},
	}, &out, logging.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, out.String())
}

func TestRunSendForcesLocalStack(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t)
	cfg.Bus.Kind = "nats"
	cfg.Bus.NATS.URL = "nats://127.0.0.1:1"
	cfg.Journal.LevelDBPath = filepath.Join(t.TempDir(), "unused")

	var out bytes.Buffer
	n, err := runSend(context.Background(), cfg, []*request.Description{
		{URL: srv.URL + "/lang", ErrorPrefix: "B"},
	}, &out, logging.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "B. Unrecognized error from server.\n", out.String())
	assert.Equal(t, "nats", cfg.Bus.Kind)
}

func TestRunSendSameIDsIssueEachRequest(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t)

	var out bytes.Buffer
	n, err := runSend(context.Background(), cfg, []*request.Description{
		{ID: "same", URL: srv.URL + "/full", ErrorPrefix: "Save layer"},
		{ID: "same", URL: srv.URL + "/full", ErrorPrefix: "Save legend"},
	}, &out, logging.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	sort.Strings(lines)
	assert.Equal(t, []string{"Save layer. disk full.", "Save legend. disk full."}, lines)
}
