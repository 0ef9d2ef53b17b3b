package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/pricefeed"
	"bilancio/internal/services"
)

var errBadRequest = errors.New("bad request")

// apiError is the JSON error envelope.
type apiError struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Details []string `json:"details,omitempty"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps a service error onto an HTTP status and envelope.
func statusFor(err error) (int, apiError) {
	var (
		verr *core.ValidationError
		perr *core.ParseError
		cerr *core.ConversionError
	)
	switch {
	// ParseError first: it wraps per-record validation errors.
	case errors.As(err, &perr):
		body := apiError{Error: "invalid file"}
		for _, c := range perr.Causes() {
			body.Details = append(body.Details, c.Error())
		}
		return http.StatusBadRequest, body
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		if errors.Is(err, core.ErrDuplicateID) {
			status = http.StatusConflict
		}
		return status, apiError{Error: verr.Err.Error(), Field: verr.Field}
	case errors.As(err, &cerr):
		return http.StatusBadRequest, apiError{Error: cerr.Error()}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, apiError{Error: strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")}
	case errors.Is(err, pricefeed.ErrFeedUnavailable):
		return http.StatusServiceUnavailable, apiError{Error: pricefeed.ErrFeedUnavailable.Error()}
	case errors.Is(err, services.ErrHistoryDisabled):
		return http.StatusNotFound, apiError{Error: services.ErrHistoryDisabled.Error()}
	default:
		return http.StatusInternalServerError, apiError{Error: "internal error"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body := statusFor(err)
	ctx := r.Context()
	logger := log.FromContext(ctx)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "")
		fields[log.FieldErrorType] = errorType(status)
		log.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, log.ComponentHTTP, op, fields)
	} else {
		logger.WarnContext(ctx, "Request rejected",
			log.FieldOperation, op,
			log.FieldStatusCode, status,
			log.FieldErrorType, errorType(status),
			log.FieldError, err.Error())
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, body)
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return log.ErrorTypeValidation
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusConflict:
		return log.ErrorTypeConflict
	case http.StatusTooManyRequests:
		return log.ErrorTypeRateLimit
	case http.StatusServiceUnavailable:
		return log.ErrorTypeUnavailable
	default:
		return log.ErrorTypeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// monthParam returns the month query parameter, defaulting to the current month.
func (s *Server) monthParam(r *http.Request) (string, error) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		return s.ledger.CurrentMonth(), nil
	}
	if !core.ValidMonthKey(month) {
		return "", badRequest("invalid month %q: expected YYYY-MM", month)
	}
	return month, nil
}

// optionalMonthParam is monthParam without the default.
func optionalMonthParam(r *http.Request) (string, error) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month != "" && !core.ValidMonthKey(month) {
		return "", badRequest("invalid month %q: expected YYYY-MM", month)
	}
	return month, nil
}

func settlementParam(r *http.Request) (core.SettlementMethod, error) {
	v := strings.TrimSpace(r.URL.Query().Get("settlement"))
	if v == "" {
		return "", nil
	}
	m, err := core.ParseSettlementMethod(v)
	if err != nil {
		return "", badRequest("invalid settlement %q", v)
	}
	return m, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
