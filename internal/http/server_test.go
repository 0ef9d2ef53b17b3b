package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/ledger/memory"
	"bilancio/internal/pricefeed"
	"bilancio/internal/services"
)

type stubRefresher struct {
	q   pricefeed.Quote
	err error
}

func (s stubRefresher) Refresh(context.Context) (pricefeed.Quote, error) { return s.q, s.err }

type testEnv struct {
	srv  *Server
	slot *pricefeed.MemorySlot
	svc  *services.LedgerService
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	slot := pricefeed.NewMemorySlot()
	svc := services.NewLedgerService(services.Deps{
		Store:        memory.New(),
		Quotes:       slot,
		Suggester:    memory.NewCatalog([]string{"Cibo", "Casa"}),
		InitialUnits: 100_000,
		Now:          func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) },
	})
	opts.Caches = svc.Caches()
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, slot: slot, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{Checks: map[string]ReadinessCheck{
		"history": func(context.Context) error { return nil },
	}})

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, rr)["status"])
}

func TestReadyReportsFailingCheck(t *testing.T) {
	env := newTestEnv(t, Options{Checks: map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	rr := env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodPost, "/api/transactions", "application/json",
		[]byte(`{"date":"2025-06-10","description":"Spesa","category":"Cibo","amount":"12,50","type":"expense"}`))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rec := decode[map[string]any](t, rr)
	assert.Equal(t, 12.5, rec["amount"])
	assert.Equal(t, "primary", rec["settlementMethod"])
	assert.NotEmpty(t, rec["id"])
	assert.Equal(t, 1, env.svc.Len())
}

func TestCreateTransactionForm(t *testing.T) {
	env := newTestEnv(t, Options{})
	form := "date=2025-06-11&description=Pane&category=Cibo&amount=2.40&type=expense"
	rr := env.do(t, http.MethodPost, "/api/transactions", "application/x-www-form-urlencoded", []byte(form))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad type", `{"date":"2025-06-10","description":"x","category":"c","amount":1,"type":"gift"}`, "type"},
		{"bad amount", `{"date":"2025-06-10","description":"x","category":"c","amount":"-1","type":"expense"}`, "amount"},
		{"bad date", `{"date":"2025-02-30","description":"x","category":"c","amount":1,"type":"expense"}`, "date"},
		{"empty category", `{"date":"2025-06-10","description":"x","category":" ","amount":1,"type":"expense"}`, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/transactions", "application/json", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, tt.field, decode[apiError](t, rr).Field)
		})
	}
	assert.Equal(t, 0, env.svc.Len())
}

func TestCreateAlternateNeedsRate(t *testing.T) {
	env := newTestEnv(t, Options{})
	body := []byte(`{"date":"2025-06-10","description":"Caffe","category":"Cibo","amount":3,"type":"expense","settlementMethod":"alternate"}`)

	rr := env.do(t, http.MethodPost, "/api/transactions", "application/json", body)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "rate unavailable", decode[apiError](t, rr).Error)

	require.NoError(t, env.slot.Store(context.Background(), pricefeed.Quote{Rate: 60000, FetchedAt: time.Now()}))
	rr = env.do(t, http.MethodPost, "/api/transactions", "application/json", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, float64(5000), decode[map[string]any](t, rr)["alternateAmount"])
}

func TestCreateAlternateZeroRate(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodPost, "/api/transactions", "application/json",
		[]byte(`{"date":"2025-06-10","description":"Caffe","category":"Cibo","amount":3,"type":"expense","settlementMethod":"alternate","exchangeRateAtEntry":0}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

const backup = `[
  {"id":"a","date":"2025-06-01","description":"Stipendio","category":"Lavoro","amount":2000,"type":"salary"},
  {"id":"b","date":"2025-06-02","description":"Pane","category":"Cibo","amount":2.5,"type":"expense"},
  {"id":"c","date":"2025-05-20","description":"Caffe","category":"Cibo","amount":1,"type":"expense",
   "settlementMethod":"alternate","alternateAmount":2000,"exchangeRateAtEntry":50000}
]`

func TestImportAndViews(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodPost, "/api/import", "application/json", []byte(backup))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, float64(3), decode[map[string]any](t, rr)["imported"])

	rr = env.do(t, http.MethodGet, "/api/summary", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sum := decode[map[string]any](t, rr)
	assert.Equal(t, "2025-06", sum["month"])
	assert.Equal(t, float64(2), sum["count"])
	assert.Equal(t, 1997.5, sum["net"])
	assert.Equal(t, float64(98_000), sum["alternateBalance"])

	rr = env.do(t, http.MethodGet, "/api/transactions?month=2025-05", "", nil)
	list := decode[[]map[string]any](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0]["id"])

	rr = env.do(t, http.MethodGet, "/api/transactions?settlement=alternate", "", nil)
	assert.Len(t, decode[[]map[string]any](t, rr), 1)

	rr = env.do(t, http.MethodGet, "/api/series/monthly", "", nil)
	series := decode[[]map[string]any](t, rr)
	require.Len(t, series, 2)
	assert.Equal(t, "2025-05", series[0]["month"])
	assert.Equal(t, "05/25", series[0]["label"])

	rr = env.do(t, http.MethodGet, "/api/categories?month=2025-06", "", nil)
	cats := decode[[]map[string]any](t, rr)
	require.Len(t, cats, 2)
	assert.Equal(t, "Lavoro", cats[0]["category"])

	rr = env.do(t, http.MethodGet, "/api/series/categories?month=2025-06", "", nil)
	pie := decode[[]map[string]any](t, rr)
	require.Len(t, pie, 1)
	assert.Equal(t, "Cibo", pie[0]["category"])

	rr = env.do(t, http.MethodGet, "/api/descriptions", "", nil)
	assert.Equal(t, []string{"Stipendio", "Pane", "Caffe"}, decode[[]string](t, rr))

	rr = env.do(t, http.MethodGet, "/api/balance/alternate", "", nil)
	bal := decode[map[string]any](t, rr)
	assert.Equal(t, float64(98_000), bal["balance"])
	assert.NotContains(t, bal, "fiatValue")
}

func TestImportFailureKeepsStore(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/import", "application/json", []byte(backup)).Code)

	bad := `[{"id":"x","date":"2025-06-01","description":"","category":"Cibo","amount":1,"type":"expense"},
	         {"id":"y","date":"2025-06-01","description":"ok","category":"Cibo","amount":1,"type":"gift"}]`
	rr := env.do(t, http.MethodPost, "/api/import", "application/json", []byte(bad))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[apiError](t, rr)
	assert.Equal(t, "invalid file", body.Error)
	assert.Len(t, body.Details, 2)
	assert.Equal(t, 3, env.svc.Len())

	rr = env.do(t, http.MethodPost, "/api/import", "application/json", []byte(`{"not":"an array"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 3, env.svc.Len())
}

func TestImportMultipart(t *testing.T) {
	env := newTestEnv(t, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "backup.json")
	require.NoError(t, err)
	_, _ = fw.Write([]byte(backup))
	require.NoError(t, mw.Close())

	rr := env.do(t, http.MethodPost, "/api/import", mw.FormDataContentType(), buf.Bytes())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 3, env.svc.Len())
}

func TestExports(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/import", "application/json", []byte(backup)).Code)

	rr := env.do(t, http.MethodGet, "/api/export/json", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".json")
	assert.Contains(t, rr.Body.String(), `"settlementMethod": "primary"`)

	// The export re-imports to the same set.
	exported := rr.Body.Bytes()
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/import", "application/json", exported).Code)
	again := env.do(t, http.MethodGet, "/api/export/json", "", nil)
	assert.Equal(t, string(exported), again.Body.String())

	rr = env.do(t, http.MethodGet, "/api/export/csv", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	assert.Len(t, lines, 4)
}

func TestInvalidQueryParams(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, target := range []string{
		"/api/summary?month=2025-6",
		"/api/categories?month=june",
		"/api/transactions?month=2025/06",
		"/api/transactions?settlement=cash",
		"/api/series/stacked?month=x",
	} {
		rr := env.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestRateEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/rate", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "30", rr.Header().Get("Retry-After"))

	require.NoError(t, env.slot.Store(context.Background(), pricefeed.Quote{Rate: 61000, Source: "test"}))
	rr = env.do(t, http.MethodGet, "/api/rate", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(61000), decode[map[string]any](t, rr)["rate"])

	rr = env.do(t, http.MethodGet, "/api/rate/history", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/rate/refresh", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/balance/alternate", "", nil)
	bal := decode[map[string]any](t, rr)
	assert.InDelta(t, 61.0, bal["fiatValue"], 1e-9)
}

func TestRateRefresh(t *testing.T) {
	env := newTestEnv(t, Options{Refresher: stubRefresher{q: pricefeed.Quote{Rate: 1234}}})
	rr := env.do(t, http.MethodPost, "/api/rate/refresh", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1234), decode[map[string]any](t, rr)["rate"])

	env = newTestEnv(t, Options{Refresher: stubRefresher{err: pricefeed.ErrFeedUnavailable}})
	rr = env.do(t, http.MethodPost, "/api/rate/refresh", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSuggestedCategories(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodGet, "/api/categories/suggested", "", nil)
	assert.Equal(t, []string{"Cibo", "Casa"}, decode[[]string](t, rr))
}

func TestRateLimitAppliesToPOST(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 1})
	body := []byte(`{"date":"2025-06-10","description":"x","category":"c","amount":1,"type":"expense"}`)

	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", "application/json", body).Code)
	rr := env.do(t, http.MethodPost, "/api/transactions", "application/json", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/summary", "", nil).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodDelete, "/api/transactions", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodGet, "/api/summary", "", nil)
	env.do(t, http.MethodGet, "/api/summary", "", nil)

	rr := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total 3")
	assert.Contains(t, rr.Body.String(), "cache_hits_total 1")
}
