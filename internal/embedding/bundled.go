package embedding

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"contextforge/internal/logging"
)

// maxBundledInputChars truncates text before it is fed into the local
// generator. The remote engine applies its own, larger limit.
const maxBundledInputChars = 8000

// BundledModel names one of the locally-generated embedding profiles. Each
// carries a fixed output dimension, mirroring the distinct ONNX models the
// original bundled generator could load.
type BundledModel int

const (
	// ModelMiniLM is the default: fast, 384 dimensions.
	ModelMiniLM BundledModel = iota
	// ModelNomic trades speed for a larger, 768-dimension projection.
	ModelNomic
	// ModelBGESmall is a 384-dimension alternative profile.
	ModelBGESmall
)

// DefaultBundledModel is used when no bundled model is configured.
const DefaultBundledModel = ModelMiniLM

// Dimension returns the embedding width for this model.
func (m BundledModel) Dimension() int {
	switch m {
	case ModelNomic:
		return 768
	default:
		return 384
	}
}

// Name returns the model's human-readable identifier.
func (m BundledModel) Name() string {
	switch m {
	case ModelNomic:
		return "nomic-embed-text-v1.5"
	case ModelBGESmall:
		return "bge-small-en-v1.5"
	default:
		return "all-minilm-l6-v2"
	}
}

// ParseBundledModel resolves a model name (and its common aliases) to a BundledModel.
func ParseBundledModel(s string) (BundledModel, bool) {
	switch strings.ToLower(s) {
	case "all-minilm-l6-v2", "minilm", "default", "":
		return ModelMiniLM, true
	case "nomic-embed-text-v1.5", "nomic", "nomic-embed-text":
		return ModelNomic, true
	case "bge-small-en-v1.5", "bge", "bge-small":
		return ModelBGESmall, true
	default:
		return ModelMiniLM, false
	}
}

// =============================================================================
// BUNDLED EMBEDDING ENGINE
// =============================================================================

// BundledEngine generates embeddings locally, without an external server.
// The corpus this module was built from contains no Go ONNX or tokenizer
// runtime, so rather than loading a real sentence-transformer model it
// projects text into its configured dimension with a deterministic
// feature-hashing scheme: character bigrams are hashed (FNV-32a) into
// buckets, summed, and L2-normalized. This reproduces the bundled engine's
// contract (lazy first-use "load", stable dimension per model, no network
// call) without fabricating a model that doesn't exist in the retrieved
// codebase. Concurrent first-use calls for the same text are collapsed via
// singleflight so cold starts don't redo the hashing work twice.
type BundledEngine struct {
	model BundledModel
	group singleflight.Group

	mu       sync.Mutex
	loaded   bool
	cacheDir string
	cache    map[string][]float32
}

// NewBundledEngine creates a bundled (local, no-server) embedding engine for model.
func NewBundledEngine(model BundledModel) *BundledEngine {
	return &BundledEngine{model: model}
}

// NewBundledEngineWithCache creates a bundled embedding engine that persists
// every computed embedding to an append-only JSON-lines file under
// cacheDir, so a later process reusing the same model and cacheDir skips
// recomputation for text it has already embedded.
func NewBundledEngineWithCache(model BundledModel, cacheDir string) (*BundledEngine, error) {
	e := &BundledEngine{model: model, cacheDir: cacheDir}
	if err := e.loadCache(); err != nil {
		return nil, fmt.Errorf("load bundled embedding cache: %w", err)
	}
	return e, nil
}

func (e *BundledEngine) cachePath() string {
	return filepath.Join(e.cacheDir, e.model.Name()+".cache.jsonl")
}

type cachedEmbedding struct {
	Key   string    `json:"key"`
	Embed []float32 `json:"embed"`
}

func (e *BundledEngine) loadCache() error {
	if e.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.cacheDir, 0755); err != nil {
		return fmt.Errorf("create cache directory %s: %w", e.cacheDir, err)
	}

	f, err := os.Open(e.cachePath())
	if err != nil {
		if os.IsNotExist(err) {
			e.cache = make(map[string][]float32)
			return nil
		}
		return err
	}
	defer f.Close()

	cache := make(map[string][]float32)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry cachedEmbedding
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logging.Get(logging.CategoryEmbedding).Warn("skipping malformed bundled cache line: %v", err)
			continue
		}
		cache[entry.Key] = entry.Embed
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	e.cache = cache
	logging.Embedding("loaded %d cached bundled embeddings from %s", len(cache), e.cachePath())
	return nil
}

// appendCache persists one computed embedding to disk. Called after the
// in-memory cache entry is already committed and e.mu released, so a slow
// disk write never blocks concurrent Embed callers.
func (e *BundledEngine) appendCache(key string, vec []float32) {
	f, err := os.OpenFile(e.cachePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logging.EmbeddingDebug("bundled cache append: open failed: %v", err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(cachedEmbedding{Key: key, Embed: vec})
	if err != nil {
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		logging.EmbeddingDebug("bundled cache append: write failed: %v", err)
	}
}

// ensureLoaded performs the lazy model-load step on first use; the
// hashing scheme needs no warmup, so this only logs once.
func (e *BundledEngine) ensureLoaded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return
	}
	e.loaded = true
	logging.Embedding("Bundled engine %q ready (dimensions=%d)", e.model.Name(), e.model.Dimension())
}

// Embed generates a deterministic embedding for a single text.
func (e *BundledEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	e.ensureLoaded()

	if len(text) > maxBundledInputChars {
		text = text[:maxBundledInputChars]
	}

	key := e.model.Name() + ":" + text

	if e.cacheDir != "" {
		e.mu.Lock()
		if cached, ok := e.cache[key]; ok {
			e.mu.Unlock()
			return cached, nil
		}
		e.mu.Unlock()
	}

	result, err, _ := e.group.Do(key, func() (interface{}, error) {
		return hashEmbed(text, e.model.Dimension()), nil
	})
	if err != nil {
		return nil, err
	}
	vec := result.([]float32)

	if e.cacheDir != "" {
		e.mu.Lock()
		if e.cache == nil {
			e.cache = make(map[string][]float32)
		}
		e.cache[key] = vec
		e.mu.Unlock()
		e.appendCache(key, vec)
	}

	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *BundledEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the configured model's output width.
func (e *BundledEngine) Dimensions() int { return e.model.Dimension() }

// Name returns the engine name.
func (e *BundledEngine) Name() string { return "bundled:" + e.model.Name() }

// hashEmbed projects text into a dim-dimensional, L2-normalized vector by
// hashing consecutive character bigrams into buckets.
func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	runes := []rune(strings.ToLower(text))

	if len(runes) == 0 {
		return vec
	}

	for i := 0; i < len(runes); i++ {
		var gram string
		if i+1 < len(runes) {
			gram = string(runes[i : i+2])
		} else {
			gram = string(runes[i:i+1]) + "_"
		}

		h := fnv.New32a()
		_, _ = h.Write([]byte(gram))
		bucket := int(h.Sum32()) % dim
		if bucket < 0 {
			bucket += dim
		}

		sign := float32(1.0)
		if (h.Sum32()>>31)&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
