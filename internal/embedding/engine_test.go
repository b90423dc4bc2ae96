package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	sim := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.InDelta(t, 1.0, sim, 0.0001)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim := CosineSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0})
	require.InDelta(t, 0.0, sim, 0.0001)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	sim := CosineSimilarity([]float32{1, 2, 3}, []float32{-1, -2, -3})
	require.InDelta(t, -1.0, sim, 0.0001)
}

func TestCosineSimilarityDifferentLengths(t *testing.T) {
	sim := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	require.Equal(t, 0.0, sim)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.Equal(t, 0.0, sim)
}

func TestFindTopK(t *testing.T) {
	query := []float32{1, 0, 0}
	corpus := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	results, err := FindTopK(query, corpus, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 0, results[0].Index)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "remote", cfg.Provider)
	require.Equal(t, "http://localhost:11434", cfg.RemoteEndpoint)
	require.Equal(t, DefaultRemoteModel, cfg.RemoteModel)
}

func TestNewEngineBundled(t *testing.T) {
	engine, err := NewEngine(Config{Provider: "bundled", BundledModel: "nomic"})
	require.NoError(t, err)
	require.Equal(t, 768, engine.Dimensions())
}

func TestNewEngineUnsupportedProvider(t *testing.T) {
	_, err := NewEngine(Config{Provider: "unknown"})
	require.Error(t, err)
}
