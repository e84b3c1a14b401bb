package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeScoringServer(t *testing.T, scores []float64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var resp scoreResponse
		// Return results in reverse order to verify index re-alignment
		for i := len(req.Documents) - 1; i >= 0; i-- {
			resp.Results = append(resp.Results, struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{Index: i, Score: scores[i]})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCrossEncoder_ScoresAlignWithInput(t *testing.T) {
	srv := fakeScoringServer(t, []float64{0.1, 0.9, 0.5})
	cfg := DefaultHTTPCrossEncoderConfig()
	cfg.Endpoint = srv.URL

	enc, err := NewHTTPCrossEncoder(context.Background(), cfg)
	require.NoError(t, err)
	defer enc.Close()

	scores, err := enc.Score(context.Background(), "query", []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.1, 0.9, 0.5}, scores)
}

func TestHTTPCrossEncoder_EmptyDocuments(t *testing.T) {
	srv := fakeScoringServer(t, nil)
	cfg := DefaultHTTPCrossEncoderConfig()
	cfg.Endpoint = srv.URL

	enc, err := NewHTTPCrossEncoder(context.Background(), cfg)
	require.NoError(t, err)
	defer enc.Close()

	scores, err := enc.Score(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestHTTPCrossEncoder_HealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultHTTPCrossEncoderConfig()
	cfg.Endpoint = srv.URL

	_, err := NewHTTPCrossEncoder(context.Background(), cfg)
	assert.Error(t, err)
}

func TestHTTPCrossEncoder_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultHTTPCrossEncoderConfig()
	cfg.Endpoint = srv.URL
	cfg.SkipHealthCheck = true

	enc, err := NewHTTPCrossEncoder(context.Background(), cfg)
	require.NoError(t, err)
	defer enc.Close()

	_, err = enc.Score(context.Background(), "query", []string{"a"})
	assert.Error(t, err)
}

func TestHTTPCrossEncoder_ClosedErrors(t *testing.T) {
	cfg := DefaultHTTPCrossEncoderConfig()
	cfg.SkipHealthCheck = true

	enc, err := NewHTTPCrossEncoder(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	_, err = enc.Score(context.Background(), "query", []string{"a"})
	assert.Error(t, err)
	assert.False(t, enc.Available(context.Background()))
}
