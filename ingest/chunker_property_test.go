package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildText makes one paragraph per length, with globally unique words so
// word-sequence comparisons are unambiguous.
func buildText(paragraphLengths []int) (string, []string) {
	var paragraphs []string
	var all []string
	word := 0
	for _, n := range paragraphLengths {
		fields := make([]string, n)
		for i := range fields {
			fields[i] = fmt.Sprintf("w%d", word)
			word++
		}
		paragraphs = append(paragraphs, strings.Join(fields, " "))
		all = append(all, fields...)
	}
	return strings.Join(paragraphs, "\n\n"), all
}

func TestChunkTextProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("no overlap preserves the exact word sequence", prop.ForAll(
		func(paragraphLengths []int, budget int) bool {
			text, want := buildText(paragraphLengths)
			chunker := NewChunker(ChunkerConfig{
				ChunkTokens:    budget,
				OverlapTokens:  0,
				MinChunkTokens: 1,
			}, wordTokenizer{})

			chunks, err := chunker.ChunkText(text)
			if err != nil {
				return false
			}
			var got []string
			for _, chunk := range chunks {
				got = append(got, strings.Fields(chunk.Text)...)
			}
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.IntRange(1, 25)),
		gen.IntRange(5, 40),
	))

	properties.Property("indexes are continuous and counts are consistent", prop.ForAll(
		func(paragraphLengths []int, budget, overlap int) bool {
			text, _ := buildText(paragraphLengths)
			chunker := NewChunker(ChunkerConfig{
				ChunkTokens:    budget,
				OverlapTokens:  overlap,
				MinChunkTokens: 1,
			}, wordTokenizer{})

			chunks, err := chunker.ChunkText(text)
			if err != nil {
				return false
			}
			for i, chunk := range chunks {
				if chunk.Index != i {
					return false
				}
				if chunk.WordCount != len(strings.Fields(chunk.Text)) {
					return false
				}
				if chunk.TokenCount < 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(3, gen.IntRange(1, 30)),
		gen.IntRange(5, 40),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
