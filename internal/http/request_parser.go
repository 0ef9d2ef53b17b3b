// Package http serves the ledger over a JSON API.
//
// This file implements request body parsing. Transaction drafts may be posted
// either as JSON or as form-encoded data with the same field names.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(r.Body)
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseDraft reads a transaction draft. Amounts accept a decimal comma.
// Missing optional fields stay nil so the service can derive them.
func (p *RequestBodyParser) ParseDraft() (services.Draft, error) {
	if err := p.Parse(); err != nil {
		return services.Draft{}, badRequest("malformed body")
	}

	typ, err := core.ParseType(p.Get("type"))
	if err != nil {
		return services.Draft{}, &core.ValidationError{Field: "type", Err: err}
	}
	method, err := core.ParseSettlementMethod(p.Get("settlementMethod"))
	if err != nil {
		return services.Draft{}, &core.ValidationError{Field: "settlementMethod", Err: err}
	}

	d := services.Draft{
		Date:        core.Date(p.Get("date")),
		Description: p.Get("description"),
		Category:    p.Get("category"),
		Type:        typ,
		Method:      method,
	}

	if v := p.Get("amount"); v != "" {
		amount, err := core.ParseAmount(v)
		if err != nil {
			return services.Draft{}, &core.ValidationError{Field: "amount", Err: err}
		}
		d.Amount = &amount
	}
	if v := p.Get("alternateAmount"); v != "" {
		units, err := strconv.ParseInt(v, 10, 64)
		if err != nil || units <= 0 {
			return services.Draft{}, &core.ValidationError{Field: "alternateAmount", Err: core.ErrInconsistentAlternate}
		}
		d.AlternateUnits = &units
	}
	if v := p.Get("exchangeRateAtEntry"); v != "" {
		rate, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
		if err != nil {
			return services.Draft{}, &core.ValidationError{Field: "exchangeRateAtEntry", Err: core.ErrNonPositiveRate}
		}
		d.Rate = &rate
	}
	return d, nil
}
