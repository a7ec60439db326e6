package ragclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chromem "github.com/philippgille/chromem-go"
)

// mockEmbeddingFunc returns a deterministic embedding based on character
// codes, so cosine similarity behaves predictably without a real
// embedding provider.
func mockEmbeddingFunc(text string) []float32 {
	const dims = 32
	out := make([]float32, dims)
	for i, ch := range text {
		out[i%dims] += float32(ch) / 1000.0
	}
	var norm float32
	for _, v := range out {
		norm += v * v
	}
	if norm > 0 {
		norm = sqrt32(norm)
		for i := range out {
			out[i] /= norm
		}
	}
	return out
}

func sqrt32(x float32) float32 {
	z := x / 2
	for i := 0; i < 10; i++ {
		z = z - (z*z-x)/(2*z)
	}
	return z
}

func newTestService(t *testing.T) *ChromemService {
	t.Helper()
	embedFn := chromem.EmbeddingFunc(func(_ context.Context, text string) ([]float32, error) {
		return mockEmbeddingFunc(text), nil
	})
	return NewChromemService(embedFn, WithTopK(2))
}

func TestQuerySourceReturnsEmptyContextForUnseenSource(t *testing.T) {
	s := newTestService(t)
	res, err := s.QuerySource(context.Background(), "docs", "anything")
	require.NoError(t, err)
	assert.Empty(t, res.Context)
	assert.Empty(t, res.PreformedCompletion)
}

func TestQuerySourceConcatenatesTopChunks(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, "docs", "1", "the capital of France is Paris", nil))
	require.NoError(t, s.IndexDocument(ctx, "docs", "2", "the capital of Germany is Berlin", nil))
	require.NoError(t, s.IndexDocument(ctx, "docs", "3", "bananas are yellow", nil))

	res, err := s.QuerySource(ctx, "docs", "capital of France is Paris")
	require.NoError(t, err)
	assert.Contains(t, res.Context, "Paris")
	assert.Empty(t, res.PreformedCompletion)
}

func TestQuerySourceIsolatesSources(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.IndexDocument(ctx, "docs-a", "1", "alpha content", nil))
	require.NoError(t, s.IndexDocument(ctx, "docs-b", "1", "beta content", nil))

	resA, err := s.QuerySource(ctx, "docs-a", "alpha content")
	require.NoError(t, err)
	assert.Contains(t, resA.Context, "alpha")

	resB, err := s.QuerySource(ctx, "docs-b", "beta content")
	require.NoError(t, err)
	assert.Contains(t, resB.Context, "beta")
}

func TestQuerySourceCapsTopKToCollectionSize(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.IndexDocument(ctx, "docs", "1", "only one document", nil))

	res, err := s.QuerySource(ctx, "docs", "only one document")
	require.NoError(t, err)
	assert.Contains(t, res.Context, "only one document")
}
