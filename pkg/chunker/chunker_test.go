package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/pkg/normalizer"
	"github.com/quka-ai/kbcore/pkg/types"
)

// permissive keeps every chunk so that boundary decisions can be observed.
func permissive(target, max, overlap int) Policy {
	return Policy{
		TargetWords:         target,
		MaxWords:            max,
		MinChars:            1,
		MinSignificantWords: 0,
		OverlapUnits:        overlap,
	}
}

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Hello there.  How are you?I am fine!\nVersion 1.5 is out.\n\nNew paragraph without stop")
	assert.Equal(t, []string{
		"Hello there.",
		"How are you?I am fine!",
		"Version 1.5 is out.",
		"New paragraph without stop",
	}, got)
	assert.Empty(t, SplitSentences("   "))
}

func TestChunkTextTargetRule(t *testing.T) {
	c := New(permissive(6, 8, 1))
	chunks := c.ChunkText(Source{ID: "s1"}, "One two three. Four five six. Seven eight nine ten. Eleven twelve.")

	assert.Equal(t, []string{
		"One two three. Four five six.",
		"Four five six. Seven eight nine ten.",
		"Seven eight nine ten. Eleven twelve.",
	}, contents(chunks))
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Meta.ChunkIndex)
	}
}

func TestChunkTextMaxRuleTrimsOverlap(t *testing.T) {
	c := New(permissive(6, 8, 1))
	chunks := c.ChunkText(Source{ID: "s1"}, "One two three. Aa bb cc dd ee ff.")

	assert.Equal(t, []string{"One two three.", "Aa bb cc dd ee ff."}, contents(chunks))
	assert.Equal(t, 0, chunks[1].overlap)
}

func TestChunkTextMaxRuleKeepsOverlapWhenItFits(t *testing.T) {
	c := New(permissive(10, 8, 1))
	// target is clamped to max
	assert.Equal(t, 8, c.Policy().TargetWords)

	chunks := c.ChunkText(Source{ID: "s1"}, "One two. Three four five. Six seven eight nine.")
	assert.Equal(t, []string{
		"One two. Three four five.",
		"Three four five. Six seven eight nine.",
	}, contents(chunks))
	assert.Equal(t, 1, chunks[1].overlap)
}

func TestChunkTextDropsPureOverlapRemainder(t *testing.T) {
	c := New(permissive(4, 10, 1))
	chunks := c.ChunkText(Source{ID: "s1"}, "Alpha beta gamma delta.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Alpha beta gamma delta.", chunks[0].Content)
}

var vocabulary = []string{
	"river", "stone", "garden", "window", "silver", "morning", "harbor", "lantern",
	"meadow", "thunder", "quiet", "yellow", "orchard", "candle", "forest", "bridge",
}

func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		n := 3 + (i*7)%11
		words := make([]string, n)
		for j := range words {
			words[j] = vocabulary[(i*3+j*5)%len(vocabulary)]
		}
		b.WriteString(strings.Join(words, " "))
		b.WriteString(". ")
	}
	// one sentence longer than any max used below
	b.WriteString(strings.Repeat("giant ", 40))
	b.WriteString("end.")
	return b.String()
}

func TestChunkTextNeverExceedsMax(t *testing.T) {
	for _, p := range []Policy{
		permissive(10, 15, 1),
		permissive(20, 25, 2),
		permissive(5, 6, 3),
		permissive(15, 30, 0),
	} {
		c := New(p)
		chunks := c.ChunkText(Source{ID: "s"}, longText(60))
		require.NotEmpty(t, chunks)
		for _, ch := range chunks {
			assert.LessOrEqual(t, wordCount(ch.Content), p.MaxWords, "policy %+v", p)
		}
	}
}

func TestAccumulatorReconstructsOrder(t *testing.T) {
	p := permissive(10, 15, 2).normalized()
	var input []unit
	for _, s := range SplitSentences(longText(40)) {
		for _, part := range splitWords(s, p.MaxWords) {
			input = append(input, newUnit(part))
		}
	}

	acc := newAccumulator(p, " ")
	for _, u := range input {
		acc.add(u, nil)
	}
	pieces := acc.finish(nil)

	var rebuilt []unit
	for _, pc := range pieces {
		rebuilt = append(rebuilt, pc.units[pc.overlap:]...)
	}
	assert.Equal(t, input, rebuilt)
}

func TestChunkTextIsDeterministic(t *testing.T) {
	c := New(DefaultPolicy())
	text := normalizer.Normalize(longText(120))
	first := c.ChunkText(Source{ID: "s"}, text)
	second := c.ChunkText(Source{ID: "s"}, text)
	require.NotEmpty(t, first)
	assert.Equal(t, contents(first), contents(second))
}

func TestValidationRequiresSignificantWords(t *testing.T) {
	c := New(Policy{TargetWords: 50, MaxWords: 100, MinChars: 10, MinSignificantWords: 5, OverlapUnits: 1})

	// long enough in characters but every word is short
	short := strings.Repeat("it is a way to go on. ", 5)
	assert.Empty(t, c.ChunkText(Source{ID: "s"}, short))

	ok := "Customers receive refunds within fourteen business days after returning items."
	chunks := c.ChunkText(Source{ID: "s"}, ok)
	require.Len(t, chunks, 1)
	assert.GreaterOrEqual(t, SignificantWords(chunks[0].Content), 5)
}

func TestSignificantWords(t *testing.T) {
	assert.Equal(t, 3, SignificantWords("Hello, world! it is 2024 and café-bar rocks"))
	assert.Equal(t, 0, SignificantWords("a an the to of"))
}

func TestChunkMetadata(t *testing.T) {
	c := New(permissive(50, 100, 1))
	src := Source{
		ID:           "src-9",
		Name:         "Guide",
		URL:          "https://example.com/guide",
		LastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
		Extra:        map[string]any{"team": "support"},
	}
	chunks := c.ChunkText(src, "The Support Team answers within   two hours. See the FAQ!!")
	require.Len(t, chunks, 1)

	ch := chunks[0]
	assert.Equal(t, "The Support Team answers within two hours. See the FAQ!!", ch.Content)
	assert.Equal(t, "the support team answers within two hours. see the frequently asked questions!", ch.Text)
	assert.Equal(t, "src-9", ch.Meta.OriginalSourceID)
	assert.Equal(t, "Guide", ch.Meta.SourceName)
	assert.Equal(t, src.URL, ch.Meta.URL)
	assert.Equal(t, src.LastModified, ch.Meta.LastModified)
	assert.Equal(t, utf8.RuneCountInString(ch.Content), ch.Meta.CharLength)
	assert.Equal(t, types.CONTENT_TYPE_FLAT, ch.Meta.ContentType)
	assert.Nil(t, ch.Meta.Hierarchy)
	assert.Equal(t, "support", ch.Meta.Extra["team"])

	src.Extra["team"] = "changed"
	assert.Equal(t, "support", ch.Meta.Extra["team"])
}
