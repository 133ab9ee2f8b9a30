package testutils

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// Dimensions sets the width of derived embeddings. Defaults to 8.
	Dimensions int

	// FailOn causes Embed to return an error when the input text matches
	FailOn string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dimensions: 8,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Distinct texts get distinct, repeatable vectors without a real model
	return DeriveEmbedding(text, m.Dimensions), nil
}

func (m *MockEmbedder) Close() error {
	return nil
}

// DeriveEmbedding hashes text into a normalized vector of the given width.
func DeriveEmbedding(text string, dims int) []float32 {
	if dims <= 0 {
		dims = 8
	}

	sum := sha256.Sum256([]byte(text))
	emb := make([]float32, dims)
	var norm float64
	for i := range emb {
		bits := binary.LittleEndian.Uint32(sum[(i*4)%(len(sum)-4):])
		v := float64(bits)/float64(math.MaxUint32)*2 - 1
		emb[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		emb[0] = 1
		return emb
	}
	for i := range emb {
		emb[i] = float32(float64(emb[i]) / norm)
	}
	return emb
}
