package ime

import (
	"unicode/utf8"
)

// Diff is the minimal suffix edit that turns one composed string into the
// next.
type Diff struct {
	// PrefixBytes is the byte length of the shared prefix.
	PrefixBytes int
	// DeleteCount is the number of Unicode scalar values after the shared
	// prefix of the previous string. Hosts delete by character.
	DeleteCount int
	// Insert is the text of the next string after the shared prefix.
	Insert string
}

// ComputeDiff compares previous and next one rune at a time from the start
// and stops at the first disagreement.
func ComputeDiff(previous, next string) Diff {
	offset := 0
	for offset < len(previous) && offset < len(next) {
		pr, pw := utf8.DecodeRuneInString(previous[offset:])
		nr, nw := utf8.DecodeRuneInString(next[offset:])
		if pr != nr || pw != nw || previous[offset:offset+pw] != next[offset:offset+nw] {
			break
		}
		offset += pw
	}

	return Diff{
		PrefixBytes: offset,
		DeleteCount: utf8.RuneCountInString(previous[offset:]),
		Insert:      next[offset:],
	}
}

// IsNoop reports whether applying the diff would change nothing.
func (d Diff) IsNoop() bool {
	return d.DeleteCount == 0 && d.Insert == ""
}

// Apply deletes DeleteCount trailing runes from previous and appends Insert.
func (d Diff) Apply(previous string) string {
	end := len(previous)
	for i := 0; i < d.DeleteCount && end > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(previous[:end])
		end -= size
	}
	return previous[:end] + d.Insert
}
