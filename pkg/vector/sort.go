package vector

import (
	"math"
	"sort"
)

// SortResults orders results by similarity descending, breaking ties by more
// recent event date and then by lower ID. Every driver funnels its raw
// results through this so ranking is identical regardless of backend.
func SortResults(results []QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if !results[i].EventDate.Equal(results[j].EventDate) {
			return results[i].EventDate.After(results[j].EventDate)
		}
		return results[i].ID < results[j].ID
	})
}

// Cosine computes cosine similarity between two vectors of equal length.
// Returns 0 for zero-magnitude vectors.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
