package embedder_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quietloop/pilot/internal/embedder"
	"github.com/quietloop/pilot/pkg/types"
)

func TestEmbedIsDeterministic(t *testing.T) {
	text := "the login handler crashes when the session token is expired"
	a := embedder.Embed(text)
	b := embedder.Embed(text)
	assert.Equal(t, a, b)
}

func TestEmbedHasFixedDimension(t *testing.T) {
	v := embedder.Embed("short text")
	assert.Len(t, v, types.EmbeddingDim)
}

func TestEmbedEmptyTextIsZeroVector(t *testing.T) {
	v := embedder.Embed("")
	for _, f := range v {
		assert.Zero(t, f)
	}
}

func TestEmbedIsL2Normalized(t *testing.T) {
	v := embedder.Embed("a fairly ordinary sentence about database migrations")
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	assert.InDelta(t, 1.0, norm, 1e-4)
}

func TestCosineSimilaritySelfIsOne(t *testing.T) {
	v := embedder.Embed("the quick brown fox jumps over the lazy dog")
	sim := embedder.CosineSimilarity(v, v)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestCosineSimilarityIsSymmetric(t *testing.T) {
	a := embedder.Embed("one text about caching layers")
	b := embedder.Embed("a different text about message queues")
	assert.Equal(t, embedder.CosineSimilarity(a, b), embedder.CosineSimilarity(b, a))
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	assert.Zero(t, embedder.CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestVecBlobRoundTrip(t *testing.T) {
	v := embedder.Embed("round trip serialization test")
	blob := embedder.VecToBlob(v)
	got := embedder.BlobToVec(blob)
	assert.Equal(t, v, got)
}

func TestRRFScoreRewardsBetterRanks(t *testing.T) {
	best := embedder.RRFScore(1, 1)
	worst := embedder.RRFScore(50, 50)
	assert.Greater(t, best, worst)
}

func TestRRFScoreTreatsMissingRankAs1000(t *testing.T) {
	withHit := embedder.RRFScore(1, 0)
	bothMissing := embedder.RRFScore(0, 0)
	assert.Greater(t, withHit, bothMissing)
}

func TestEmbedSimilarTextIsMoreSimilarThanUnrelatedText(t *testing.T) {
	base := embedder.Embed("the authentication service validates JWT tokens on every request")
	similar := embedder.Embed("the authentication service validates JWT tokens for incoming requests")
	unrelated := embedder.Embed("the bakery down the street sells croissants and sourdough bread")

	simScore := embedder.CosineSimilarity(base, similar)
	unrelatedScore := embedder.CosineSimilarity(base, unrelated)
	assert.Greater(t, simScore, unrelatedScore)
}
