// Package ingest fetches papers, chunks their text, and indexes the chunks
// for retrieval.
package ingest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens the way the embedding model will.
type Tokenizer interface {
	CountTokens(text string) (int, error)
}

// TiktokenTokenizer wraps tiktoken with lazy initialization; the first use
// may download encoding data.
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenTokenizer creates a tokenizer for the given tiktoken encoding
// (for example "cl100k_base").
func NewTiktokenTokenizer(encoding string) *TiktokenTokenizer {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{encoding: encoding}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens returns the token count of text.
func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// ChunkerConfig bounds chunk sizes in tokens.
type ChunkerConfig struct {
	// ChunkTokens is the target chunk size.
	ChunkTokens int `yaml:"chunk_tokens" json:"chunk_tokens"`
	// OverlapTokens carries trailing sentences of one chunk into the next.
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
	// MinChunkTokens drops fragments too small to retrieve on their own.
	MinChunkTokens int `yaml:"min_chunk_tokens" json:"min_chunk_tokens"`
}

// DefaultChunkerConfig returns chunk sizes suited to embedding retrieval.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkTokens:    512,
		OverlapTokens:  64,
		MinChunkTokens: 24,
	}
}

// Chunk is one piece of a section, ordered by Index within the paper.
type Chunk struct {
	Text        string
	Index       int
	SectionName string
	WordCount   int
	TokenCount  int
}

// Section is a named span of paper text.
type Section struct {
	Name string
	Text string
}

// Chunker splits paper text into token-bounded chunks on paragraph and
// sentence boundaries.
type Chunker struct {
	config    ChunkerConfig
	tokenizer Tokenizer
}

// NewChunker creates a chunker.
func NewChunker(config ChunkerConfig, tokenizer Tokenizer) *Chunker {
	if config.ChunkTokens <= 0 {
		config.ChunkTokens = 512
	}
	if config.OverlapTokens < 0 {
		config.OverlapTokens = 0
	}
	if config.MinChunkTokens <= 0 {
		config.MinChunkTokens = 1
	}
	return &Chunker{config: config, tokenizer: tokenizer}
}

// ChunkSections chunks each section in order, never merging text across
// section boundaries. Chunk indexes are continuous across the whole paper.
func (c *Chunker) ChunkSections(sections []Section) ([]Chunk, error) {
	var out []Chunk
	index := 0
	for _, section := range sections {
		chunks, err := c.chunkText(section.Text, section.Name)
		if err != nil {
			return nil, err
		}
		for i := range chunks {
			chunks[i].Index = index
			index++
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// ChunkText chunks a single unstructured body of text.
func (c *Chunker) ChunkText(text string) ([]Chunk, error) {
	chunks, err := c.chunkText(text, "")
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks, nil
}

func (c *Chunker) chunkText(text, sectionName string) ([]Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	// Split into units at paragraph boundaries; paragraphs that alone exceed
	// the budget get split again at sentence boundaries.
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		count, err := c.tokenizer.CountTokens(para)
		if err != nil {
			return nil, err
		}
		if count <= c.config.ChunkTokens {
			units = append(units, para)
			continue
		}
		units = append(units, splitSentences(para)...)
	}

	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		content := strings.TrimSpace(strings.Join(current, " "))
		count, err := c.tokenizer.CountTokens(content)
		if err != nil {
			return err
		}
		if count >= c.config.MinChunkTokens {
			chunks = append(chunks, Chunk{
				Text:        content,
				SectionName: sectionName,
				WordCount:   len(strings.Fields(content)),
				TokenCount:  count,
			})
		}
		// Seed the next chunk with trailing units up to the overlap budget.
		overlap, overlapTokens := c.overlapTail(current)
		current = overlap
		currentTokens = overlapTokens
		return nil
	}

	for _, unit := range units {
		unitTokens, err := c.tokenizer.CountTokens(unit)
		if err != nil {
			return nil, err
		}

		if currentTokens+unitTokens > c.config.ChunkTokens && len(current) > 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		current = append(current, unit)
		currentTokens += unitTokens
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// overlapTail returns the trailing units that fit in the overlap budget.
func (c *Chunker) overlapTail(units []string) ([]string, int) {
	if c.config.OverlapTokens <= 0 {
		return nil, 0
	}
	var tail []string
	total := 0
	for i := len(units) - 1; i >= 0; i-- {
		count, err := c.tokenizer.CountTokens(units[i])
		if err != nil || total+count > c.config.OverlapTokens {
			break
		}
		tail = append([]string{units[i]}, tail...)
		total += count
	}
	return tail, total
}

// splitSentences splits on sentence-final punctuation followed by a space.
// Abbreviation handling is deliberately rough; a mid-sentence split only
// costs a slightly awkward chunk boundary.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') &&
			(i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n') {
			s := strings.TrimSpace(b.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
