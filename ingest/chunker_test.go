package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordTokenizer counts whitespace-separated words, which keeps the tests
// independent of tiktoken's encoding data.
type wordTokenizer struct {
	err error
}

func (t wordTokenizer) CountTokens(text string) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	return len(strings.Fields(text)), nil
}

func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestChunkTextRespectsTokenBudget(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		ChunkTokens:    20,
		OverlapTokens:  0,
		MinChunkTokens: 1,
	}, wordTokenizer{})

	// Eight paragraphs of 6 words each; three fit per 20-token chunk.
	var paras []string
	for i := 0; i < 8; i++ {
		paras = append(paras, words(6, fmt.Sprintf("p%d_", i)))
	}
	chunks, err := chunker.ChunkText(strings.Join(paras, "\n\n"))
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 20)
	}
	assert.Equal(t, 18, chunks[0].TokenCount)
	assert.Equal(t, 18, chunks[1].TokenCount)
	assert.Equal(t, 12, chunks[2].TokenCount)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, ch.WordCount, ch.TokenCount)
	}
}

func TestChunkTextOverlapSeedsNextChunk(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		ChunkTokens:    12,
		OverlapTokens:  5,
		MinChunkTokens: 1,
	}, wordTokenizer{})

	paraA := words(5, "a")
	paraB := words(5, "b")
	paraC := words(5, "c")
	chunks, err := chunker.ChunkText(paraA + "\n\n" + paraB + "\n\n" + paraC)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, paraA+" "+paraB, chunks[0].Text)
	// paraB rides along as overlap into the second chunk.
	assert.Equal(t, paraB+" "+paraC, chunks[1].Text)
}

func TestChunkTextSplitsOversizedParagraphOnSentences(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		ChunkTokens:    8,
		OverlapTokens:  0,
		MinChunkTokens: 1,
	}, wordTokenizer{})

	// One paragraph of three sentences, 15 words total.
	para := "alpha beta gamma delta epsilon. zeta eta theta iota kappa. lambda mu nu xi omicron."
	chunks, err := chunker.ChunkText(para)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "alpha beta gamma delta epsilon.", chunks[0].Text)
	assert.Equal(t, "zeta eta theta iota kappa.", chunks[1].Text)
	assert.Equal(t, "lambda mu nu xi omicron.", chunks[2].Text)
}

func TestChunkTextDropsFragmentsBelowMinimum(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		ChunkTokens:    10,
		OverlapTokens:  0,
		MinChunkTokens: 4,
	}, wordTokenizer{})

	chunks, err := chunker.ChunkText(words(10, "a") + "\n\nfin.")
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, words(10, "a"), chunks[0].Text)
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig(), wordTokenizer{})

	chunks, err := chunker.ChunkText("   \n\n  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkSectionsContinuousIndexes(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		ChunkTokens:    10,
		OverlapTokens:  0,
		MinChunkTokens: 1,
	}, wordTokenizer{})

	sections := []Section{
		{Name: "Introduction", Text: words(8, "i") + "\n\n" + words(8, "j")},
		{Name: "Methods", Text: words(8, "m")},
	}
	chunks, err := chunker.ChunkSections(sections)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
	assert.Equal(t, "Introduction", chunks[0].SectionName)
	assert.Equal(t, "Introduction", chunks[1].SectionName)
	assert.Equal(t, "Methods", chunks[2].SectionName)
	// Short section texts never merge across the boundary.
	assert.NotContains(t, chunks[1].Text, "m0")
}

func TestChunkTextTokenizerError(t *testing.T) {
	tokenErr := errors.New("encoding unavailable")
	chunker := NewChunker(DefaultChunkerConfig(), wordTokenizer{err: tokenErr})

	_, err := chunker.ChunkText("some text")
	assert.ErrorIs(t, err, tokenErr)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "basic",
			in:   "First sentence. Second one! Third?",
			want: []string{"First sentence.", "Second one!", "Third?"},
		},
		{
			name: "decimal point not a boundary",
			in:   "Accuracy reached 99.5 percent. Impressive.",
			want: []string{"Accuracy reached 99.5 percent.", "Impressive."},
		},
		{
			name: "trailing fragment without punctuation",
			in:   "Done. And more",
			want: []string{"Done.", "And more"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.in))
		})
	}
}
