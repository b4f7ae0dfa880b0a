package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/synobot/core/conversation"
	"github.com/m3rciful/synobot/core/dispatch"
	"github.com/m3rciful/synobot/core/stats"
)

type echoEngine struct{}

func (echoEngine) Process(_ context.Context, text, userID, _ string) conversation.Result {
	return conversation.Result{Text: "reply:" + text + ":" + userID, Category: "dsm"}
}

type sent struct{ text, userID, channel string }

type fakeDelivery struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeDelivery) Send(_ context.Context, text, userID, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{text, userID, channel})
	return nil
}

type fakeStats struct {
	sum stats.Summary
	err error
}

func (f fakeStats) Statistics(context.Context, int) (stats.Summary, error) { return f.sum, f.err }

func newTestServer(opts Options) http.Handler {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if opts.Now == nil {
		opts.Now = func() time.Time { return started.Add(time.Hour + 2*time.Minute + 3*time.Second) }
		opts.Started = started
	}
	if opts.Engine == nil {
		opts.Engine = echoEngine{}
	}
	return New(opts).Routes()
}

func postForm(h http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWebhookDeliversReply(t *testing.T) {
	d := &fakeDelivery{}
	h := newTestServer(Options{Delivery: d})

	rec := postForm(h, "/webhook", url.Values{"text": {"1"}, "user_id": {"5"}, "username": {"alice"}, "channel_name": {"ops"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "dsm", body["category"])
	assert.Equal(t, "Ответ отправлен", body["message"])
	assert.Equal(t, []sent{{"reply:1:5", "5", "ops"}}, d.msgs)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestWebhookRejectsEmptyText(t *testing.T) {
	d := &fakeDelivery{}
	h := newTestServer(Options{Delivery: d})

	rec := postForm(h, "/webhook", url.Values{"text": {"  "}, "user_id": {"5"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "В сообщении нет текста", decode(t, rec)["error"])

	rec = postForm(h, "/webhook", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Данные не получены", decode(t, rec)["error"])
	assert.Empty(t, d.msgs)
}

func TestWebhookDeliveryFailure(t *testing.T) {
	h := newTestServer(Options{Delivery: &fakeDelivery{err: errors.New("nas down")}})
	rec := postForm(h, "/webhook", url.Values{"text": {"1"}, "user_id": {"5"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Не удалось отправить ответ", decode(t, rec)["error"])
}

func TestWebhookAsyncDelivery(t *testing.T) {
	d := &fakeDelivery{}
	q := dispatch.New(dispatch.Options{Workers: 1})
	h := newTestServer(Options{Delivery: d, Queue: q})

	rec := postForm(h, "/webhook", url.Values{"text": {"menu"}, "user_id": {"9"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ответ поставлен в очередь", decode(t, rec)["message"])
	q.Close()
	assert.Equal(t, []sent{{"reply:menu:9", "9", ""}}, d.msgs)

	rec = postForm(h, "/webhook", url.Values{"text": {"menu"}, "user_id": {"9"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookNotMountedWithoutDelivery(t *testing.T) {
	h := newTestServer(Options{})
	rec := postForm(h, "/webhook", url.Values{"text": {"1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndUptime(t *testing.T) {
	h := newTestServer(Options{BotName: "ИнструкторБот", Port: 5000, Version: "v1"})
	for _, path := range []string{"/health", "/api/health"} {
		rec := get(h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		body := decode(t, rec)
		assert.Equal(t, "active", body["status"])
		assert.Equal(t, "ИнструкторБот", body["bot_name"])
		assert.EqualValues(t, 5000, body["port"])
		assert.Equal(t, "1ч 2м 3с", body["uptime"])
	}
	assert.Equal(t, "1ч 2м 3с", decode(t, get(h, "/api/uptime"))["uptime"])
}

func TestStatsEndpoints(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	h := newTestServer(Options{Stats: fakeStats{sum: stats.Summary{
		TotalRequests: 4,
		UniqueUsers:   2,
		Categories:    []stats.CategoryCount{{Category: "dsm", Count: 3}},
		Recent: []stats.RecentRequest{
			{Username: "alice", Question: "99", Timestamp: ts},
			{Username: "bob", Question: "1", Category: "dsm", Timestamp: ts},
		},
	}}})

	body := decode(t, get(h, "/api/stats"))
	assert.EqualValues(t, 4, body["total_requests"])
	assert.EqualValues(t, 2, body["unique_users"])
	assert.Equal(t, "1ч 2м 3с", body["uptime"])

	rec := get(h, "/api/recent-requests")
	assert.JSONEq(t, `{"recent_requests":[
		{"username":"alice","question":"99","category":"N/A","timestamp":"2024-05-01 12:30:00"},
		{"username":"bob","question":"1","category":"dsm","timestamp":"2024-05-01 12:30:00"}]}`, rec.Body.String())

	rec = get(h, "/api/category-stats")
	assert.JSONEq(t, `{"category_stats":[{"category":"dsm","count":3}]}`, rec.Body.String())
}

func TestStatsFailure(t *testing.T) {
	h := newTestServer(Options{Stats: fakeStats{err: errors.New("db gone")}})
	assert.Equal(t, http.StatusInternalServerError, get(h, "/api/stats").Code)
}

func TestSendTest(t *testing.T) {
	d := &fakeDelivery{}
	h := newTestServer(Options{Delivery: d})
	rec := postForm(h, "/api/send-test", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.msgs, 1)
	assert.Equal(t, "🎉 **Тестовое сообщение:**\n\nТестовое сообщение", d.msgs[0].text)
	assert.Empty(t, d.msgs[0].userID)
}

type panicEngine struct{}

func (panicEngine) Process(context.Context, string, string, string) conversation.Result {
	panic("boom")
}

func TestRecovererReturnsJSON(t *testing.T) {
	h := newTestServer(Options{Engine: panicEngine{}, Delivery: &fakeDelivery{}})
	rec := postForm(h, "/webhook", url.Values{"text": {"1"}, "user_id": {"5"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0с", FormatUptime(0))
	assert.Equal(t, "3с", FormatUptime(3*time.Second+400*time.Millisecond))
	assert.Equal(t, "2м 3с", FormatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1ч 0м 0с", FormatUptime(time.Hour))
	assert.Equal(t, "26ч 1м 0с", FormatUptime(26*time.Hour+time.Minute))
	assert.Equal(t, "0с", FormatUptime(-time.Second))
}
