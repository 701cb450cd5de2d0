package chunker

import (
	"github.com/quka-ai/kbcore/pkg/types"
)

// HeadingStack is the ancestor heading path. Values are never mutated in
// place: Push returns a new stack, so a snapshot taken earlier stays valid.
type HeadingStack []types.HeadingEntry

// Push pops every entry whose level is >= the new heading's level and then
// appends it.
func (s HeadingStack) Push(h types.HeadingEntry) HeadingStack {
	keep := len(s)
	for keep > 0 && s[keep-1].Level >= h.Level {
		keep--
	}
	out := make(HeadingStack, keep+1)
	copy(out, s[:keep])
	out[keep] = h
	return out
}

func (s HeadingStack) Entries() []types.HeadingEntry {
	if len(s) == 0 {
		return nil
	}
	out := make([]types.HeadingEntry, len(s))
	copy(out, s)
	return out
}
