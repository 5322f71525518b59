package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartsayer/positionbot/internal/domain"
	"github.com/chartsayer/positionbot/internal/service"
	"github.com/chartsayer/positionbot/internal/store/memory"
)

// newTestMux wires the position handler onto the same routes the server
// registers, backed by the real service over the in-memory store.
func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewPositionService(memory.NewPositionStore(), nil, service.RiskConfig{}, logger)
	h := NewPositionHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/positions", h.CreatePosition)
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", h.GetPosition)
	mux.HandleFunc("PATCH /api/positions/{id}", h.UpdatePosition)
	mux.HandleFunc("DELETE /api/positions/{id}", h.DeletePosition)
	mux.HandleFunc("POST /api/positions/{id}/stop", h.StopPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", h.ClosePosition)
	mux.HandleFunc("POST /api/positions/{id}/partial_close", h.PartialClosePosition)
	mux.HandleFunc("GET /api/summary", h.GetSummary)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func createBody() map[string]any {
	return map[string]any{
		"platform":    "discord",
		"user_id":     "42",
		"symbol":      "BTCUSDT",
		"side":        "long",
		"entry_price": "100",
		"stop_loss":   "95",
		"size":        "10",
	}
}

func createOne(t *testing.T, mux *http.ServeMux) domain.Position {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/api/positions", createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var pos domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	require.NotEmpty(t, pos.ID)
	return pos
}

func TestCreateAndGetPosition(t *testing.T) {
	mux := newTestMux(t)
	pos := createOne(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/api/positions/"+pos.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.True(t, got.RemainingSize.Equal(got.Size))
}

func TestCreatePosition_BadRequests(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := createBody()
	body["size"] = "-1"
	rec = doJSON(t, mux, http.MethodPost, "/api/positions", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetPosition_NotFound(t *testing.T) {
	mux := newTestMux(t)
	rec := doJSON(t, mux, http.MethodGet, "/api/positions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	mux := newTestMux(t)
	pos := createOne(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/partial_close", map[string]any{
		"exit_price": "110",
		"exit_size":  "4",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var partial domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &partial))
	assert.Equal(t, domain.StatusActive, partial.Status)
	assert.Equal(t, "6", partial.RemainingSize.String())

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopped))
	assert.Equal(t, domain.StatusStopped, stopped.Status)

	// Stopping again is an invalid transition.
	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/close", map[string]any{
		"exit_price": "120",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var closed domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.Equal(t, domain.StatusClosed, closed.Status)
}

func TestUpdatePositionEndpoint(t *testing.T) {
	mux := newTestMux(t)
	pos := createOne(t, mux)

	rec := doJSON(t, mux, http.MethodPatch, "/api/positions/"+pos.ID, map[string]any{
		"stop_loss": "97",
		"notes":     "tightened stop",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.NotNil(t, updated.StopLoss)
	assert.Equal(t, "97", updated.StopLoss.String())
	assert.Equal(t, "tightened stop", updated.Notes)
	assert.Equal(t, pos.Version+1, updated.Version)
}

func TestDeletePositionEndpoint(t *testing.T) {
	mux := newTestMux(t)
	pos := createOne(t, mux)

	rec := doJSON(t, mux, http.MethodDelete, "/api/positions/"+pos.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions/"+pos.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPositionsEndpoint(t *testing.T) {
	mux := newTestMux(t)
	pos := createOne(t, mux)
	createOne(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/close", map[string]any{
		"exit_price": "110",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions?platform=discord&user_id=42&status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Positions []domain.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, domain.StatusActive, resp.Positions[0].Status)

	// A user with nothing gets an empty array, not null.
	rec = doJSON(t, mux, http.MethodGet, "/api/positions?platform=discord&user_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"positions":[]}`, rec.Body.String())
}

func TestListPositions_QueryValidation(t *testing.T) {
	mux := newTestMux(t)

	cases := []string{
		"/api/positions",
		"/api/positions?platform=discord",
		"/api/positions?platform=matrix&user_id=42",
		"/api/positions?platform=discord&user_id=42&status=paused",
		"/api/positions?platform=discord&user_id=42&since=yesterday",
	}
	for _, path := range cases {
		rec := doJSON(t, mux, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetSummaryEndpoint(t *testing.T) {
	mux := newTestMux(t)
	pos := createOne(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions/"+pos.ID+"/close", map[string]any{
		"exit_price": "110",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/summary?platform=discord&user_id=42", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary domain.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Count)
	assert.True(t, summary.HasData)
	assert.Equal(t, "1", summary.WinRate.String())
	assert.Equal(t, "100", summary.TotalRealizedPnL.String())
}

func TestVersionConflictMapsToConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, fmt.Errorf("wrapped: %w", domain.ErrVersionConflict))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	writeDomainError(rec, fmt.Errorf("wrapped: %w", domain.ErrStoreUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
