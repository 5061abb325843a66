// Package embed turns chunk text into unit-length vectors.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Provider produces one vector per input text, in input order. All vectors
// share Dimension() and are L2-normalized so dot product equals cosine
// similarity.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// DefaultLocalDimension is the vector width Local uses unless configured.
const DefaultLocalDimension = 256

// Local is a deterministic hashing embedder. It projects token counts into a
// fixed-width vector, which is enough for tests and for offline setups where
// no embedding API is reachable. Identical text always yields an identical
// vector.
type Local struct {
	dim int
}

var _ Provider = (*Local)(nil)

// NewLocal creates a hashing embedder. A non-positive dimension falls back
// to DefaultLocalDimension.
func NewLocal(dimension int) *Local {
	if dimension <= 0 {
		dimension = DefaultLocalDimension
	}
	return &Local{dim: dimension}
}

func (l *Local) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = l.embedOne(text)
	}
	return vecs, nil
}

func (l *Local) Dimension() int { return l.dim }

func (l *Local) embedOne(text string) []float32 {
	vec := make([]float32, l.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%l.dim]++
	}
	normalize(vec)
	return vec
}

// normalize scales v to unit length in place. The zero vector stays zero.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
