package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/kb"
	"github.com/m3rciful/synobot/core/stats"
)

type memoryStats struct {
	stats.Nop

	mu         sync.Mutex
	requests   []string
	categories map[int64]string
	responses  int
}

func (m *memoryStats) RecordRequest(_ context.Context, _, _, question string, _ *string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, question)
	return int64(len(m.requests)), nil
}

func (m *memoryStats) UpdateRequestCategory(_ context.Context, id int64, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.categories == nil {
		m.categories = map[int64]string{}
	}
	m.categories[id] = category
	return nil
}

func (m *memoryStats) RecordResponse(context.Context, int64, string, string, bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses++
	return nil
}

type incoming struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (in *incoming) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		if !assert.NoError(t, r.ParseForm()) ||
			!assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("payload")), &p)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		in.mu.Lock()
		in.payloads = append(in.payloads, p)
		in.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func newSynologyApp(t *testing.T, async bool) (*App, *incoming, *memoryStats) {
	t.Helper()
	in := &incoming{}
	srv := httptest.NewServer(in.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Synology.IncomingURL = srv.URL
	cfg.Synology.AsyncDelivery = async
	// one worker keeps the journal in arrival order
	cfg.Stats.Workers = 1
	require.NoError(t, config.Normalize(&cfg))

	rec := &memoryStats{}
	a, err := New(&cfg, rec, Options{
		KB:             kb.NewStaticStore(kb.Fallback()),
		SynologyClient: srv.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, in, rec
}

func postMessage(t *testing.T, h http.Handler, text string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"text": {text}, "user_id": {"5"}, "username": {"alice"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNewNilConfig(t *testing.T) {
	_, err := New(nil, nil, Options{})
	require.Error(t, err)
}

func TestSynologyConversationRoundTrip(t *testing.T) {
	a, in, rec := newSynologyApp(t, false)
	h := a.Handler()

	rr := postMessage(t, h, "привет")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = postMessage(t, h, "1")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "dsm", body["category"])

	in.mu.Lock()
	require.Len(t, in.payloads, 2)
	assert.Contains(t, in.payloads[0]["text"], "DSM")
	assert.Contains(t, in.payloads[1]["text"], "Категория: DSM")
	assert.Equal(t, []any{float64(5)}, in.payloads[1]["user_ids"])
	in.mu.Unlock()

	a.Close()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"привет", "1"}, rec.requests)
	_, labelled := rec.categories[1]
	assert.False(t, labelled, "error turns stay unlabelled")
	assert.Equal(t, "dsm", rec.categories[2])
	assert.Equal(t, 2, rec.responses)
}

func TestSynologyAsyncDelivery(t *testing.T) {
	a, in, _ := newSynologyApp(t, true)

	rr := postMessage(t, a.Handler(), "меню")
	require.Equal(t, http.StatusOK, rr.Code)

	a.Close()
	in.mu.Lock()
	defer in.mu.Unlock()
	require.Len(t, in.payloads, 1)
	assert.Contains(t, in.payloads[0]["text"], "Выберите категорию")
}

func TestStatsDisabledServesEmptySummary(t *testing.T) {
	cfg := config.Defaults()
	cfg.Synology.IncomingURL = "http://127.0.0.1:1/unused"
	cfg.Stats.Enabled = false
	require.NoError(t, config.Normalize(&cfg))

	a, err := New(&cfg, nil, Options{KB: kb.NewStaticStore(kb.Fallback())})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.statsQueue)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total_requests":0`)
}
