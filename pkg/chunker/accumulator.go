package chunker

import (
	"strings"
)

// unit is one sentence (plain text) or one element (HTML).
type unit struct {
	text  string
	words int
	// heading 单独不构成内容，只随后续元素一起输出
	heading bool
}

func newUnit(text string) unit {
	return unit{text: text, words: wordCount(text)}
}

// piece is a finalized run of units. The first overlap units were carried
// over from the previous piece.
type piece struct {
	units     []unit
	overlap   int
	hierarchy HeadingStack
	text      string
}

// accumulator implements the greedy sizing rules shared by both variants.
type accumulator struct {
	policy Policy
	sep    string

	units  []unit
	words  int
	seeded int

	out []piece
}

func newAccumulator(p Policy, sep string) *accumulator {
	return &accumulator{policy: p, sep: sep}
}

func (a *accumulator) hasContent() bool {
	for _, u := range a.units[a.seeded:] {
		if !u.heading {
			return true
		}
	}
	return false
}

func (a *accumulator) add(u unit, stack HeadingStack) {
	switch {
	case a.words+u.words > a.policy.MaxWords:
		tail := a.units
		if a.hasContent() {
			a.finalize(stack)
			tail = a.overlapTail()
		}
		a.reseed(tail, u)
	case a.words+u.words >= a.policy.TargetWords:
		a.push(u)
		a.finalize(stack)
		a.reseed(a.overlapTail(), unit{})
	default:
		a.push(u)
	}
}

// boundary closes the pending chunk at a section break. The overlap seed
// still carries into the next section.
func (a *accumulator) boundary(stack HeadingStack) {
	if !a.hasContent() {
		return
	}
	a.finalize(stack)
	a.reseed(a.overlapTail(), unit{})
}

// finish closes the remainder unless it is only the overlap seed.
func (a *accumulator) finish(stack HeadingStack) []piece {
	if a.hasContent() {
		a.finalize(stack)
	}
	a.units, a.words, a.seeded = nil, 0, 0
	return a.out
}

func (a *accumulator) push(u unit) {
	a.units = append(a.units, u)
	a.words += u.words
}

func (a *accumulator) finalize(stack HeadingStack) {
	text := joinUnits(a.units, a.sep)
	if !a.policy.Valid(text) {
		return
	}
	a.out = append(a.out, piece{
		units:     append([]unit(nil), a.units...),
		overlap:   a.seeded,
		hierarchy: stack,
		text:      text,
	})
}

func (a *accumulator) overlapTail() []unit {
	n := a.policy.OverlapUnits
	if n <= 0 || len(a.units) == 0 {
		return nil
	}
	if n > len(a.units) {
		n = len(a.units)
	}
	return append([]unit(nil), a.units[len(a.units)-n:]...)
}

// reseed starts a new accumulator from tail followed by next, dropping tail
// units from the front until the hard maximum holds.
func (a *accumulator) reseed(tail []unit, next unit) {
	words := 0
	for _, u := range tail {
		words += u.words
	}
	for len(tail) > 0 && words+next.words > a.policy.MaxWords {
		words -= tail[0].words
		tail = tail[1:]
	}

	a.units = append([]unit(nil), tail...)
	a.words = words
	a.seeded = len(tail)
	if next.text != "" {
		a.push(next)
	}
}

func joinUnits(units []unit, sep string) string {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = u.text
	}
	return strings.Join(parts, sep)
}

// splitWords breaks text into windows of at most max words.
func splitWords(text string, max int) []string {
	words := strings.Fields(text)
	if len(words) <= max {
		return []string{strings.Join(words, " ")}
	}
	var out []string
	for start := 0; start < len(words); start += max {
		end := min(start+max, len(words))
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}
