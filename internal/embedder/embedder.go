// Package embedder computes deterministic, dependency-free embeddings for
// memory content. There is no trained model involved: terms are hashed into
// a fixed-width vector using feature hashing over a TF-IDF weighting. Two
// runs on the same text always produce the same vector, which keeps search
// results reproducible across restarts.
package embedder

import (
	"embed"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quietloop/pilot/pkg/types"
)

//go:embed lexicon.yaml
var lexiconFS embed.FS

type lexicon struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

var synonymTable map[string][]string

func init() {
	raw, err := lexiconFS.ReadFile("lexicon.yaml")
	if err != nil {
		panic("embedder: missing embedded lexicon.yaml: " + err.Error())
	}
	var lex lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		panic("embedder: invalid lexicon.yaml: " + err.Error())
	}
	synonymTable = lex.Synonyms
}

const dim = types.EmbeddingDim

// Embed turns text into a dimension-384, L2-normalized vector.
func Embed(text string) []float32 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return make([]float32, dim)
	}
	expanded := make([]string, 0, len(tokens)*2)
	for _, t := range tokens {
		expanded = append(expanded, t)
		expanded = append(expanded, synonymTable[t]...)
	}

	counts := make(map[string]int, len(expanded))
	for _, t := range expanded {
		counts[t]++
	}
	total := float64(len(expanded))

	vec := make([]float64, dim)
	for term, count := range counts {
		tf := float64(count) / total
		idf := 1.0 + 1.0/math.Sqrt(float64(len(term)))
		weight := tf * idf
		hashTermInto(vec, term, weight)
	}

	bigrams := toBigrams(tokens)
	bigramCounts := make(map[string]int, len(bigrams))
	for _, bg := range bigrams {
		bigramCounts[bg]++
	}
	for bg, count := range bigramCounts {
		tf := float64(count) / float64(len(bigrams))
		hashBigramInto(vec, bg, tf*0.3)
	}

	return normalize(vec)
}

// hashTermInto scatters a single term's weight across three hashed positions
// with decreasing influence (1.0, 0.7, 0.5) and an independently-derived sign.
func hashTermInto(vec []float64, term string, weight float64) {
	positionWeights := [3]float64{1.0, 0.7, 0.5}
	for i, w := range positionWeights {
		h := hashTerm(term, uint64(i))
		pos := int(h % uint64(dim))
		sign := 1.0
		if hashTerm(term, uint64(i)+3)&1 == 1 {
			sign = -1.0
		}
		vec[pos] += sign * weight * w
	}
}

func hashBigramInto(vec []float64, bigram string, weight float64) {
	for _, seed := range [2]uint64{6, 7} {
		h := hashTerm(bigram, seed)
		pos := int(h % uint64(dim))
		sign := 1.0
		if (h>>5)&1 == 1 {
			sign = -1.0
		}
		vec[pos] += sign * weight
	}
}

// hashTerm is an FNV-1a variant seeded so that the same term hashes
// differently per position/seed.
func hashTerm(term string, seed uint64) uint64 {
	h := uint64(14695981039346656037) + seed*6364136223846793005
	for i := 0; i < len(term); i++ {
		h ^= uint64(term[i])
		h *= 1099511628211
	}
	return h
}

func normalize(vec []float64) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(vec))
	if norm < 1e-8 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// tokenize lowercases text and splits on anything that isn't a letter,
// digit, underscore, or hyphen, dropping tokens shorter than 2 characters.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= 2 {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-':
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func toBigrams(tokens []string) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 0; i < len(tokens)-1; i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// CosineSimilarity is a plain dot product: both vectors are already
// L2-normalized by Embed, so the dot product equals cosine similarity.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// RRFScore combines a lexical (BM25) rank and a vector-similarity rank into
// a single reciprocal-rank-fusion score. A rank of 0 means "not present in
// that ranking" and is treated as rank 1000.
func RRFScore(lexicalRank, vectorRank int) float64 {
	const k = 60.0
	lr := lexicalRank
	if lr == 0 {
		lr = 1000
	}
	vr := vectorRank
	if vr == 0 {
		vr = 1000
	}
	return 1.0/(k+float64(lr)) + 1.0/(k+float64(vr))
}

// VecToBlob packs a float32 vector as little-endian bytes for BLOB storage.
func VecToBlob(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		out[i*4+0] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

// BlobToVec unpacks little-endian bytes back into a float32 vector.
func BlobToVec(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
