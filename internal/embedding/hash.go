package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const HashModelName = "feature-hash"

// HashProvider is a deterministic feature-hashing embedder. Each lowercase
// token is hashed into one of dim buckets with a hash-derived sign, and the
// result is L2-normalised, so identical texts map to identical vectors and
// texts sharing vocabulary point in similar directions. It needs no model
// and is used for tests and offline operation.
type HashProvider struct {
	dim int
}

// NewHashProvider returns a HashProvider producing vectors of length dim
// (384 when dim <= 0).
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = 384
	}
	return &HashProvider{dim: dim}
}

func (h *HashProvider) Dimension() int { return h.dim }
func (h *HashProvider) Model() string  { return HashModelName }

func (h *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		// Bigrams carry a little word-order signal.
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *HashProvider) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
}
