package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// List window bounds for record listings
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ListWindow holds the limit/skip query parameters of a listing request
type ListWindow struct {
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
}

// ParseListWindow extracts limit and skip from the query string. Violations
// surface as errors so callers can respond with the 422 contract; silent
// clamping would hide client bugs.
func ParseListWindow(r *http.Request) (ListWindow, error) {
	window := ListWindow{Limit: DefaultListLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return window, fmt.Errorf("limit must be an integer")
		}
		if parsed < 1 {
			return window, fmt.Errorf("limit must be at least 1")
		}
		if parsed > MaxListLimit {
			return window, fmt.Errorf("limit must be at most %d", MaxListLimit)
		}
		window.Limit = parsed
	}

	if raw := r.URL.Query().Get("skip"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return window, fmt.Errorf("skip must be an integer")
		}
		if parsed < 0 {
			return window, fmt.Errorf("skip must be at least 0")
		}
		window.Skip = parsed
	}

	return window, nil
}
