package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chartsayer/positionbot/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an internal error and its detail stays out of the
// response body.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "position already exists")
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid lifecycle transition")
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrExposureLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, "exposure limit exceeded")
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// userScope extracts the mandatory platform and user_id query parameters.
func userScope(r *http.Request) (domain.Platform, string, error) {
	platform, err := domain.ParsePlatform(r.URL.Query().Get("platform"))
	if err != nil {
		return "", "", fmt.Errorf("platform query parameter required (discord or telegram)")
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return "", "", fmt.Errorf("user_id query parameter required")
	}
	return platform, userID, nil
}

// parseQueryFilter reads the recognized filter options from the query
// string: symbol, status, since, until (RFC 3339).
func parseQueryFilter(r *http.Request) (domain.QueryFilter, error) {
	q := r.URL.Query()
	filter := domain.QueryFilter{
		Symbol: q.Get("symbol"),
	}

	if v := q.Get("status"); v != "" {
		switch domain.PositionStatus(v) {
		case domain.StatusActive, domain.StatusStopped, domain.StatusClosed:
			filter.Status = domain.PositionStatus(v)
		default:
			return domain.QueryFilter{}, fmt.Errorf("unknown status %q", v)
		}
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.QueryFilter{}, fmt.Errorf("invalid since timestamp %q", v)
		}
		filter.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.QueryFilter{}, fmt.Errorf("invalid until timestamp %q", v)
		}
		filter.Until = &t
	}

	return filter, nil
}
