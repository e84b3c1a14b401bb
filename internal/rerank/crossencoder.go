package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Cross-encoder client defaults
const (
	DefaultEncoderEndpoint = "http://localhost:9659"
	DefaultEncoderModel    = "reranker-small"
	DefaultEncoderTimeout  = 30 * time.Second
)

// HTTPCrossEncoderConfig holds configuration for the HTTP cross-encoder
// client.
type HTTPCrossEncoderConfig struct {
	// Endpoint is the scoring server URL (default: http://localhost:9659)
	Endpoint string

	// Model is the reranker model alias (default: reranker-small)
	Model string

	// Timeout is the request timeout (default: 30s)
	Timeout time.Duration

	// SkipHealthCheck skips health check during creation (for testing)
	SkipHealthCheck bool

	// Instruction is a custom scoring instruction (optional)
	Instruction string
}

// DefaultHTTPCrossEncoderConfig returns default configuration
func DefaultHTTPCrossEncoderConfig() HTTPCrossEncoderConfig {
	return HTTPCrossEncoderConfig{
		Endpoint: DefaultEncoderEndpoint,
		Model:    DefaultEncoderModel,
		Timeout:  DefaultEncoderTimeout,
	}
}

// HTTPCrossEncoder scores query-document pairs via a reranking server's
// /rerank endpoint.
type HTTPCrossEncoder struct {
	client   *http.Client
	config   HTTPCrossEncoderConfig
	endpoint string

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ CrossEncoder = (*HTTPCrossEncoder)(nil)

// NewHTTPCrossEncoder creates a cross-encoder client.
func NewHTTPCrossEncoder(ctx context.Context, cfg HTTPCrossEncoderConfig) (*HTTPCrossEncoder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEncoderEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEncoderModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultEncoderTimeout
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	e := &HTTPCrossEncoder{
		client:   client,
		config:   cfg,
		endpoint: cfg.Endpoint,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := e.healthCheck(checkCtx); err != nil {
			return nil, fmt.Errorf("cross-encoder health check failed: %w", err)
		}
	}

	slog.Debug("cross_encoder_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return e, nil
}

// healthCheck verifies the scoring server is up
func (e *HTTPCrossEncoder) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to scoring server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("scoring server unhealthy (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// scoreRequest is the JSON request to the /rerank endpoint
type scoreRequest struct {
	Query       string   `json:"query"`
	Documents   []string `json:"documents"`
	Model       string   `json:"model,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
}

// scoreResponse is the JSON response from the /rerank endpoint
type scoreResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
	Model            string  `json:"model"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Score returns one relevance score per document, index-aligned with the
// input regardless of the order the server returns them in.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("cross-encoder is closed")
	}
	e.mu.RUnlock()

	if len(documents) == 0 {
		return []float64{}, nil
	}

	reqBody := scoreRequest{
		Query:     query,
		Documents: documents,
		Model:     e.config.Model,
	}
	if e.config.Instruction != "" {
		reqBody.Instruction = e.config.Instruction
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, e.endpoint+"/rerank", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scoring failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("score response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
	}

	slog.Debug("cross_encoder_scored",
		slog.Int("doc_count", len(documents)),
		slog.Duration("elapsed", time.Since(start)),
		slog.Float64("server_time_ms", result.ProcessingTimeMs))

	return scores, nil
}

// Available checks if the scoring server is reachable
func (e *HTTPCrossEncoder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return e.healthCheck(checkCtx) == nil
}

// Close releases resources
func (e *HTTPCrossEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if transport, ok := e.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}

	return nil
}
