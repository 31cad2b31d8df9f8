// This file holds the request decoding helpers shared by the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

// maxBodyBytes bounds JSON request bodies; imports get maxImportBytes.
const (
	maxBodyBytes   = 64 << 10
	maxImportBytes = 16 << 20
)

// decodeJSON reads a single JSON value from r's body into v, rejecting
// unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body too large")
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty")
		default:
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: unexpected data after the object")
	}
	return nil
}

// ParseMonthParam reads ?month=YYYY-MM, defaulting to def when absent.
func ParseMonthParam(query url.Values, def core.Month) (core.Month, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return def, nil
	}
	m, err := core.ParseMonth(v)
	if err != nil {
		return core.Month{}, fmt.Errorf("month must be YYYY-MM")
	}
	return m, nil
}

// ParseIntParam reads an integer query parameter within [lo, hi].
func ParseIntParam(query url.Values, name string, def, lo, hi int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return n, nil
}

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
