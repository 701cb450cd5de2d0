package chunker

import (
	"maps"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quka-ai/kbcore/pkg/normalizer"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

// Source carries the metadata shared by every chunk of one document.
type Source struct {
	ID           string
	Name         string
	URL          string
	LastModified string
	Extra        map[string]any
}

// Chunk is a finalized unit ready for embedding. Content keeps the original
// text for display, lexical search and reranking. Text is the normalized form
// that is sent to the embedding provider.
type Chunk struct {
	Content string
	Text    string
	Meta    types.ChunkMeta

	overlap int
}

type Chunker struct {
	policy Policy
}

func New(p Policy) *Chunker {
	return &Chunker{policy: p.normalized()}
}

func (c *Chunker) Policy() Policy {
	return c.policy
}

// ChunkText splits plain text on sentence boundaries.
func (c *Chunker) ChunkText(src Source, text string) []Chunk {
	acc := newAccumulator(c.policy, " ")
	for _, s := range SplitSentences(text) {
		for _, part := range splitWords(s, c.policy.MaxWords) {
			acc.add(newUnit(part), nil)
		}
	}
	return buildChunks(src, acc.finish(nil))
}

func buildChunks(src Source, pieces []piece) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		meta := types.ChunkMeta{
			OriginalSourceID: src.ID,
			SourceName:       src.Name,
			URL:              src.URL,
			Hierarchy:        p.hierarchy.Entries(),
			ChunkIndex:       i,
			CharLength:       utf8.RuneCountInString(p.text),
			ContentType:      types.CONTENT_TYPE_FLAT,
			LastModified:     src.LastModified,
			Language:         utils.WhatLang(p.text),
		}
		if len(p.hierarchy) > 0 {
			meta.ContentType = types.CONTENT_TYPE_STRUCTURED
		}
		if len(src.Extra) > 0 {
			meta.Extra = maps.Clone(src.Extra)
		}
		chunks = append(chunks, Chunk{
			Content: p.text,
			Text:    normalizer.Normalize(p.text),
			Meta:    meta,
			overlap: p.overlap,
		})
	}
	return chunks
}

// SplitSentences cuts text after terminal punctuation when the next rune is
// whitespace. Blank lines also end a sentence. Whitespace inside a sentence
// is collapsed.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := strings.Join(strings.Fields(text[start:end]), " "); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		j := i + size
		next, nsize := utf8.DecodeRuneInString(text[j:])
		switch {
		case nsize == 0:
		case isTerminal(r) && unicode.IsSpace(next):
			emit(j)
		case r == '\n' && next == '\n':
			emit(j)
		}
		i = j
	}
	emit(len(text))
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
