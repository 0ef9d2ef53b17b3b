package http

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/codec"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]interface{}{
		"ledger": map[string]interface{}{
			"status":       "ok",
			"transactions": s.ledger.Len(),
		},
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetect.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	cacheStats := s.cacheManager.Stats()

	w.WriteHeader(http.StatusOK)

	// Write metrics in Prometheus-like format
	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("ledger_transactions", "Transactions currently stored", "gauge", s.ledger.Len())
	metric("cache_hits_total", "Total view cache hits", "counter", cacheStats.Hits)
	metric("cache_misses_total", "Total view cache misses", "counter", cacheStats.Misses)
	metric("cache_evictions_total", "Total view cache evictions", "counter", cacheStats.Evictions)
	metric("cache_entries", "Current view cache entries", "gauge", cacheStats.Entries)
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldErrorType, errorType(http.StatusTooManyRequests))
	writeJSON(w, http.StatusTooManyRequests, apiError{Error: "rate limit exceeded"})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	draft, err := NewRequestBodyParser(r).ParseDraft()
	if err != nil {
		s.writeError(w, r, log.OpAppend, err)
		return
	}
	if draft.Date == "" {
		draft.Date = core.Date(time.Now().Format(core.DateLayout))
	}

	tx, err := s.ledger.Record(r.Context(), draft)
	if err != nil {
		s.writeError(w, r, log.OpAppend, err)
		return
	}
	w.Header().Set("Location", "/api/transactions?month="+tx.Date.MonthKey())
	writeJSON(w, http.StatusCreated, codec.NewRecord(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	month, err := optionalMonthParam(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	method, err := settlementParam(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	txs := s.ledger.Transactions(r.Context(), month, method)
	out := make([]codec.Record, 0, len(txs))
	for _, tx := range txs {
		out = append(out, codec.NewRecord(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Summary(r.Context(), month))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Categories(r.Context(), month))
}

func (s *Server) handleSuggestedCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.SuggestedCategories(r.Context()))
}

func (s *Server) handleMonthlySeries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.MonthlySeries(r.Context()))
}

func (s *Server) handleCategorySeries(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.CategoryPie(r.Context(), month))
}

func (s *Server) handleStackedSeries(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.CategoryStacked(r.Context(), month))
}

func (s *Server) handleDescriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Descriptions(r.Context()))
}

func (s *Server) handleAlternateBalance(w http.ResponseWriter, r *http.Request) {
	balance, initial := s.ledger.AlternateBalance(r.Context())
	body := map[string]interface{}{
		"balance": balance,
		"initial": initial,
	}
	if q, err := s.ledger.LatestRate(r.Context()); err == nil {
		if fiat, err := core.ToFiat(balance, q.Rate); err == nil {
			body["fiatValue"] = fiat
			body["rate"] = q.Rate
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	q, err := s.ledger.LatestRate(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpRate, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleRateRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.writeError(w, r, log.OpPoll, badRequest("price feed disabled"))
		return
	}
	q, err := s.refresher.Refresh(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpPoll, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleRateHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, log.OpRate, badRequest("invalid limit %q", v))
			return
		}
		limit = n
	}
	quotes, err := s.ledger.RateHistory(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, log.OpRate, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	body, err := s.ledger.ExportJSON(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	writeAttachment(w, "application/json; charset=utf-8", exportName("json"), body)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	body, err := s.ledger.ExportCSV(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", exportName("csv"), body)
}

func exportName(ext string) string {
	return fmt.Sprintf("bilancio-%s.%s", time.Now().Format(core.DateLayout), ext)
}

// handleImport accepts the backup either as the raw body or as a multipart
// "file" field.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	payload, err := readImportPayload(r)
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}

	n, err := s.ledger.Import(r.Context(), payload)
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"imported": n})
}

func readImportPayload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, badRequest("read body: %v", err)
		}
		return b, nil
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest("missing file field")
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, badRequest("read file: %v", err)
	}
	return b, nil
}
