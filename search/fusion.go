package search

import "sort"

// DefaultRRFK is the reciprocal rank fusion constant from the RRF literature
// (Cormack et al.).
const DefaultRRFK = 60

// FuseRanked combines two rank-ordered result lists with Reciprocal Rank
// Fusion. Each item accumulates 1/(rank+k) per list it appears in (0-based
// rank), so an item present in both lists always outscores an otherwise
// identical single-list item. The fused score is normalized by 2/k, the
// maximum attainable for an item ranked first in both lists, so hybrid scores
// stay comparable to single-mode similarity scores.
//
// Ties are broken by first appearance: vector list order first, then fulltext
// order. Output is truncated to topK; fused Score overwrites the item's
// original Score.
func FuseRanked(vectorResults, fulltextResults []Result, topK, k int) []Result {
	if k <= 0 {
		k = DefaultRRFK
	}
	if topK <= 0 {
		return nil
	}

	type fused struct {
		result Result
		score  float64
		seen   int // first-seen ordinal, for deterministic tie-break
	}
	byID := make(map[string]*fused, len(vectorResults)+len(fulltextResults))
	order := make([]*fused, 0, len(vectorResults)+len(fulltextResults))

	accumulate := func(results []Result) {
		for rank, r := range results {
			contribution := 1.0 / float64(rank+k)
			if f, ok := byID[r.ChunkID]; ok {
				f.score += contribution
				continue
			}
			f := &fused{result: r, score: contribution, seen: len(order)}
			byID[r.ChunkID] = f
			order = append(order, f)
		}
	}
	accumulate(vectorResults)
	accumulate(fulltextResults)

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].seen < order[j].seen
	})

	if len(order) > topK {
		order = order[:topK]
	}

	maxScore := 2.0 / float64(k)
	out := make([]Result, len(order))
	for i, f := range order {
		r := f.result
		r.Score = f.score / maxScore
		out[i] = r
	}
	return out
}
