package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(ids ...string) []Result {
	out := make([]Result, len(ids))
	for i, id := range ids {
		out[i] = Result{ChunkID: id, Score: 1.0 - float64(i)*0.1}
	}
	return out
}

func TestFuseRanked_BothListsAdditive(t *testing.T) {
	// A=[x,y,z], B=[y,x,w]: x and y appear in both lists and must outrank
	// the single-list items z and w.
	a := results("x", "y", "z")
	b := results("y", "x", "w")

	fused := FuseRanked(a, b, 10, 60)
	require.Len(t, fused, 4)

	assert.Equal(t, "x", fused[0].ChunkID) // first-seen tie-break: x before y
	assert.Equal(t, "y", fused[1].ChunkID)
	assert.Equal(t, "z", fused[2].ChunkID)
	assert.Equal(t, "w", fused[3].ChunkID)

	// x: rank 0 in A, rank 1 in B => 1/60 + 1/61, normalized by 2/60.
	norm := 2.0 / 60.0
	wantX := (1.0/60.0 + 1.0/61.0) / norm
	wantY := (1.0/61.0 + 1.0/60.0) / norm
	assert.InDelta(t, wantX, fused[0].Score, 1e-12)
	assert.InDelta(t, wantY, fused[1].Score, 1e-12)
	assert.Equal(t, fused[0].Score, fused[1].Score)

	// z: rank 2 in A only.
	wantZ := (1.0 / 62.0) / norm
	assert.InDelta(t, wantZ, fused[2].Score, 1e-12)
	assert.Greater(t, fused[0].Score, fused[2].Score)
}

func TestFuseRanked_TopKTruncation(t *testing.T) {
	a := results("a", "b", "c", "d")
	b := results("c", "d", "e")

	fused := FuseRanked(a, b, 2, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "c", fused[0].ChunkID)
	assert.Equal(t, "d", fused[1].ChunkID)
}

func TestFuseRanked_TopKLargerThanDistinct(t *testing.T) {
	fused := FuseRanked(results("a"), results("b"), 100, 60)
	assert.Len(t, fused, 2)
}

func TestFuseRanked_EmptyInputs(t *testing.T) {
	assert.Empty(t, FuseRanked(nil, nil, 5, 60))

	// One empty list: order is identical to the non-empty list.
	a := results("a", "b", "c")
	fused := FuseRanked(a, nil, 5, 60)
	require.Len(t, fused, 3)
	for i, r := range fused {
		assert.Equal(t, a[i].ChunkID, r.ChunkID)
	}
}

func TestFuseRanked_ScoresStrictlyDescendingModuloTies(t *testing.T) {
	a := results("a", "b", "c", "d", "e")
	b := results("c", "a", "f")
	fused := FuseRanked(a, b, 10, 60)
	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].Score, fused[i].Score)
	}
}

func TestFuseRanked_NormalizedFirstInBothIsOne(t *testing.T) {
	fused := FuseRanked(results("x"), results("x"), 1, 60)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-12)
}

func TestFuseRanked_DefaultKOnInvalid(t *testing.T) {
	withDefault := FuseRanked(results("a", "b"), nil, 2, 0)
	explicit := FuseRanked(results("a", "b"), nil, 2, DefaultRRFK)
	require.Len(t, withDefault, 2)
	for i := range withDefault {
		assert.True(t, math.Abs(withDefault[i].Score-explicit[i].Score) < 1e-12)
	}
}
