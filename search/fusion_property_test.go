package search

import (
	"testing"

	"pgregory.net/rapid"
)

func genRanked(t *rapid.T, label string) []Result {
	ids := rapid.SliceOfNDistinct(rapid.StringMatching(`chunk-[0-9]{1,3}`), 0, 20,
		func(s string) string { return s }).Draw(t, label)
	out := make([]Result, len(ids))
	for i, id := range ids {
		out[i] = Result{ChunkID: id, Score: 1.0 / float64(i+1)}
	}
	return out
}

func TestFuseRankedProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genRanked(t, "vector")
		b := genRanked(t, "fulltext")
		topK := rapid.IntRange(1, 30).Draw(t, "topK")

		fused := FuseRanked(a, b, topK, DefaultRRFK)

		// Determinism: same inputs, same output.
		again := FuseRanked(a, b, topK, DefaultRRFK)
		if len(fused) != len(again) {
			t.Fatalf("non-deterministic length: %d vs %d", len(fused), len(again))
		}
		for i := range fused {
			if fused[i].ChunkID != again[i].ChunkID || fused[i].Score != again[i].Score {
				t.Fatalf("non-deterministic at %d: %+v vs %+v", i, fused[i], again[i])
			}
		}

		// Subset invariant: every output came from an input list, no duplicates.
		inputs := map[string]bool{}
		for _, r := range a {
			inputs[r.ChunkID] = true
		}
		for _, r := range b {
			inputs[r.ChunkID] = true
		}
		seen := map[string]bool{}
		for _, r := range fused {
			if !inputs[r.ChunkID] {
				t.Fatalf("fused output %q not present in either input", r.ChunkID)
			}
			if seen[r.ChunkID] {
				t.Fatalf("duplicate %q in fused output", r.ChunkID)
			}
			seen[r.ChunkID] = true
		}

		// Length bound: min(topK, distinct inputs).
		if len(fused) > topK {
			t.Fatalf("fused length %d exceeds topK %d", len(fused), topK)
		}
		if len(fused) > len(inputs) {
			t.Fatalf("fused length %d exceeds distinct input count %d", len(fused), len(inputs))
		}

		// Monotone scores.
		for i := 1; i < len(fused); i++ {
			if fused[i-1].Score < fused[i].Score {
				t.Fatalf("scores not descending at %d: %f < %f", i, fused[i-1].Score, fused[i].Score)
			}
		}

		// Normalized scores stay within (0, 1].
		for _, r := range fused {
			if r.Score <= 0 || r.Score > 1.0+1e-12 {
				t.Fatalf("normalized score out of range: %f", r.Score)
			}
		}
	})
}
