// Package embedding provides vector embedding generation for semantic
// search over stored conversation memory. Two backends are supported: a
// remote Ollama-compatible HTTP server, and a local in-process generator
// that needs no external service.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"contextforge/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings this engine produces.
	Dimensions() int

	// Name returns the engine name, for logging and diagnostics.
	Name() string
}

// HealthChecker is an optional interface for engines that can verify
// service availability before a batch operation is attempted.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config selects and configures an embedding engine.
type Config struct {
	// Provider: "remote" (HTTP server) or "bundled" (local, no server).
	Provider string `json:"provider"`

	// Remote configuration.
	RemoteEndpoint string `json:"remote_endpoint"` // Default: "http://localhost:11434"
	RemoteModel    string `json:"remote_model"`    // Default: "nomic-embed-text"

	// Bundled configuration.
	BundledModel string `json:"bundled_model"` // Default: "all-minilm-l6-v2"

	// BundledCacheDir, when non-empty, persists computed bundled
	// embeddings to disk so they survive process restarts instead of
	// being recomputed on every first use.
	BundledCacheDir string `json:"bundled_cache_dir"`
}

// DefaultConfig returns sensible defaults: a remote engine pointed at a
// local Ollama-compatible server.
func DefaultConfig() Config {
	return Config{
		Provider:       "remote",
		RemoteEndpoint: "http://localhost:11434",
		RemoteModel:    DefaultRemoteModel,
		BundledModel:   "all-minilm-l6-v2",
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)
	logging.EmbeddingDebug("Engine config: provider=%s, remote_endpoint=%s, remote_model=%s, bundled_model=%s",
		cfg.Provider, cfg.RemoteEndpoint, cfg.RemoteModel, cfg.BundledModel)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "remote", "":
		logging.Embedding("Initializing remote embedding engine: endpoint=%s, model=%s", cfg.RemoteEndpoint, cfg.RemoteModel)
		engine, err = NewRemoteEngine(cfg.RemoteEndpoint, cfg.RemoteModel)
	case "bundled":
		model, ok := ParseBundledModel(cfg.BundledModel)
		if !ok {
			model = DefaultBundledModel
		}
		if cfg.BundledCacheDir != "" {
			logging.Embedding("Initializing bundled embedding engine: model=%s, cache_dir=%s", model.Name(), cfg.BundledCacheDir)
			engine, err = NewBundledEngineWithCache(model, cfg.BundledCacheDir)
		} else {
			logging.Embedding("Initializing bundled embedding engine: model=%s", model.Name())
			engine = NewBundledEngine(model)
		}
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'remote' or 'bundled')", cfg.Provider)
		logging.Get(logging.CategoryEmbedding).Error("Unsupported embedding provider: %s", cfg.Provider)
		return nil, err
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created successfully: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means
// orthogonal. Mismatched lengths and zero-magnitude vectors score exactly 0,
// so such pairs sink to the bottom of a ranking instead of disappearing.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		logging.Get(logging.CategoryEmbedding).Warn("CosineSimilarity: vector dimension mismatch: %d != %d", len(a), len(b))
		return 0
	}

	logging.EmbeddingDebug("Computing cosine similarity for vectors of dimension %d", len(a))

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		logging.Get(logging.CategoryEmbedding).Warn("CosineSimilarity: zero magnitude vector detected")
		return 0
	}

	result := dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude))
	logging.EmbeddingDebug("CosineSimilarity result: %.6f", result)
	return result
}

// FindTopK returns the top K most similar vectors to the query, by cosine similarity.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	logging.EmbeddingDebug("FindTopK: searching for top %d results in corpus of %d vectors (query dim=%d)",
		k, len(corpus), len(query))

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		results = append(results, SimilarityResult{
			Index:      i,
			Similarity: CosineSimilarity(query, vec),
		})
	}

	sortStart := time.Now()
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	logging.EmbeddingDebug("FindTopK: sorting completed in %v", time.Since(sortStart))

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// SimilarityResult is one match from FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}
