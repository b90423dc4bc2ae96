package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contextforge/internal/logging"
)

// DefaultRemoteModel is the default embedding model requested from a
// remote server when none is configured.
const DefaultRemoteModel = "nomic-embed-text"

// maxRemoteInputChars truncates text before sending it to the remote
// server, keeping requests within the model's context window.
const maxRemoteInputChars = 24000

// =============================================================================
// REMOTE EMBEDDING ENGINE
// =============================================================================

// RemoteEngine generates embeddings via an Ollama-compatible HTTP server's
// /api/embed endpoint, auto-pulling the model through /api/pull on a
// "model not found" response and retrying once.
type RemoteEngine struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewRemoteEngine creates a remote embedding engine targeting endpoint for model.
func NewRemoteEngine(endpoint, model string) (*RemoteEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewRemoteEngine")
	defer timer.Stop()

	if endpoint == "" {
		endpoint = "http://localhost:11434"
		logging.EmbeddingDebug("Remote endpoint defaulted to: %s", endpoint)
	}
	if model == "" {
		model = DefaultRemoteModel
		logging.EmbeddingDebug("Remote model defaulted to: %s", model)
	}

	logging.Embedding("Creating remote engine: endpoint=%s, model=%s, timeout=30s", endpoint, model)

	return &RemoteEngine{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Embed generates an embedding for a single text, pulling the model and
// retrying once if the server reports it isn't available yet.
func (e *RemoteEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Remote.Embed")
	defer timer.Stop()

	embedding, notFound, err := e.embedOnce(ctx, text)
	if err == nil {
		return embedding, nil
	}
	if !notFound {
		return nil, err
	}

	logging.Get(logging.CategoryEmbedding).Warn("Remote.Embed: model %q not found, attempting to pull", e.model)
	if pullErr := e.pullModel(ctx); pullErr != nil {
		logging.Get(logging.CategoryEmbedding).Error("Remote.Embed: failed to pull model %q: %v", e.model, pullErr)
		return nil, err
	}

	logging.Embedding("Remote.Embed: pulled model %q, retrying embed", e.model)
	embedding, _, err = e.embedOnce(ctx, text)
	return embedding, err
}

// embedOnce issues a single /api/embed request. notFound reports whether
// the failure looks like a missing-model 404, so the caller can pull and retry.
func (e *RemoteEngine) embedOnce(ctx context.Context, text string) (embedding []float32, notFound bool, err error) {
	if len(text) > maxRemoteInputChars {
		logging.EmbeddingDebug("Remote.Embed: truncating text from %d to %d chars", len(text), maxRemoteInputChars)
		text = text[:maxRemoteInputChars]
	}

	reqBody, err := json.Marshal(remoteEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("remote embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		notFound := resp.StatusCode == http.StatusNotFound && strings.Contains(string(body), "not found")
		return nil, notFound, fmt.Errorf("remote embedding API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, false, fmt.Errorf("remote embedding response contained no embeddings")
	}

	logging.Embedding("Remote.Embed: completed, dimensions=%d", len(result.Embeddings[0]))
	return result.Embeddings[0], false, nil
}

// pullModel asks the remote server to download the configured model.
func (e *RemoteEngine) pullModel(ctx context.Context) error {
	body, err := json.Marshal(remotePullRequest{Name: e.model, Stream: false})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create pull request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull failed (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// EmbedBatch generates embeddings for multiple texts. The remote server has
// no native batch endpoint in this wire format, so texts are embedded sequentially.
func (e *RemoteEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Remote.EmbedBatch")
	defer timer.Stop()

	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions reports the dimensionality of the configured model's output.
// nomic-embed-text produces 768-dimensional vectors; other models may vary,
// but there is no introspection endpoint, so this engine assumes the default.
func (e *RemoteEngine) Dimensions() int { return 768 }

// Name returns the engine name.
func (e *RemoteEngine) Name() string { return fmt.Sprintf("remote:%s", e.model) }

// HealthCheck verifies the remote server is reachable.
func (e *RemoteEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote embedding server unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// =============================================================================
// REMOTE API TYPES
// =============================================================================

type remoteEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type remoteEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type remotePullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}
