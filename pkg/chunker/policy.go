// Package chunker splits source content into bounded, overlapping chunks.
//
// Two variants share one sizing Policy: ChunkText accumulates sentences and
// ChunkHTML accumulates structural elements while tracking the heading
// hierarchy in effect for every emitted chunk.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTargetWords         = 200
	DefaultMaxWords            = 300
	DefaultMinChars            = 50
	DefaultMinSignificantWords = 5
	DefaultOverlapUnits        = 1

	significantWordLen = 4
)

type Policy struct {
	TargetWords         int `toml:"target_words"`          // 软边界，达到后切分
	MaxWords            int `toml:"max_words"`             // 硬上限
	MinChars            int `toml:"min_chars"`             // 最短字符数
	MinSignificantWords int `toml:"min_significant_words"` // 最少有效词数
	OverlapUnits        int `toml:"overlap_units"`         // 相邻 chunk 重叠的句子/元素数
}

func DefaultPolicy() Policy {
	return Policy{
		TargetWords:         DefaultTargetWords,
		MaxWords:            DefaultMaxWords,
		MinChars:            DefaultMinChars,
		MinSignificantWords: DefaultMinSignificantWords,
		OverlapUnits:        DefaultOverlapUnits,
	}
}

// normalized fills zero values with defaults and keeps TargetWords <= MaxWords.
func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxWords <= 0 {
		p.MaxWords = d.MaxWords
	}
	if p.TargetWords <= 0 {
		p.TargetWords = d.TargetWords
	}
	if p.TargetWords > p.MaxWords {
		p.TargetWords = p.MaxWords
	}
	if p.MinChars < 0 {
		p.MinChars = 0
	}
	if p.MinSignificantWords < 0 {
		p.MinSignificantWords = 0
	}
	if p.OverlapUnits < 0 {
		p.OverlapUnits = 0
	}
	return p
}

// Valid reports whether text passes the quality filter.
func (p Policy) Valid(text string) bool {
	if utf8.RuneCountInString(text) < p.MinChars {
		return false
	}
	return SignificantWords(text) >= p.MinSignificantWords
}

// SignificantWords counts words of at least four letters once surrounding
// punctuation is trimmed.
func SignificantWords(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if utf8.RuneCountInString(w) < significantWordLen {
			continue
		}
		if isAlphabetic(w) {
			n++
		}
	}
	return n
}

func isAlphabetic(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
