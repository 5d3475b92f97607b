package chromem

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder is a deterministic bag-of-words embedder: every lowercased
// token is hashed into one of Dimensions buckets with a signed weight, and the
// result is normalized to a unit vector. Texts sharing words end up close in
// cosine space, which is enough for local recall without a model.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates an embedder with the given dimensionality
// (384 when dims <= 0).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dimensions: dims}
}

// Embed implements Embedder. Text without tokens yields a zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, tok := range Tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	return normalize(vec), nil
}

// Dimensions implements Embedder.
func (e *HashEmbedder) Dimensions() int { return e.dimensions }

// Tokenize splits text into lowercased alphanumeric tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
