package ime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDiff(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		next     string
		want     Diff
	}{
		{"empty previous", "", "viet", Diff{PrefixBytes: 0, DeleteCount: 0, Insert: "viet"}},
		{"identical", "việt", "việt", Diff{PrefixBytes: len("việt"), DeleteCount: 0, Insert: ""}},
		{"append", "ă", "ăn", Diff{PrefixBytes: len("ă"), DeleteCount: 0, Insert: "n"}},
		{"replace last", "a", "ă", Diff{PrefixBytes: 0, DeleteCount: 1, Insert: "ă"}},
		{"multibyte to ascii", "café", "cafe", Diff{PrefixBytes: 3, DeleteCount: 1, Insert: "e"}},
		{"tone moves", "viêt", "việt", Diff{PrefixBytes: 2, DeleteCount: 2, Insert: "ệt"}},
		{"shared first byte", "ă", "ā", Diff{PrefixBytes: 0, DeleteCount: 1, Insert: "ā"}},
		{"clear", "đ", "", Diff{PrefixBytes: 0, DeleteCount: 1, Insert: ""}},
		{"unrelated", "abc", "xyz", Diff{PrefixBytes: 0, DeleteCount: 3, Insert: "xyz"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeDiff(tt.previous, tt.next))
		})
	}
}

func TestDiffApplyRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"", ""},
		{"", "tiếng"},
		{"tiếng", ""},
		{"tiêng", "tiếng"},
		{"nguyên", "nguyễn"},
		{"café", "cafe"},
		{"cafe", "café"},
		{"日本", "日本語"},
		{"a\xffb", "a\xfeb"},
		{"\xe1\x80", "\xe1\x80\x80"},
	}

	for _, p := range pairs {
		d := ComputeDiff(p[0], p[1])
		assert.Equal(t, p[1], d.Apply(p[0]), "diff(%q, %q) = %+v", p[0], p[1], d)
	}
}

func TestDiffNoop(t *testing.T) {
	for _, s := range []string{"", "a", "ăn", "Tiếng Việt"} {
		d := ComputeDiff(s, s)
		assert.True(t, d.IsNoop(), "diff(%q, %q)", s, s)
		assert.Equal(t, 0, d.DeleteCount)
		assert.Empty(t, d.Insert)
	}

	assert.False(t, ComputeDiff("a", "").IsNoop())
	assert.False(t, ComputeDiff("", "a").IsNoop())
}

func TestDiffFromEmpty(t *testing.T) {
	for _, s := range []string{"a", "ươ", "xin chào"} {
		d := ComputeDiff("", s)
		assert.Equal(t, 0, d.DeleteCount)
		assert.Equal(t, s, d.Insert)
	}
}

func TestDiffCountsScalarsNotBytes(t *testing.T) {
	d := ComputeDiff("ưởng", "")
	assert.Equal(t, 4, d.DeleteCount)
	assert.Greater(t, len("ưởng"), d.DeleteCount)
}

func FuzzComputeDiff(f *testing.F) {
	seeds := [][2]string{
		{"", ""},
		{"", "tiếng"},
		{"tiêng", "tiếng"},
		{"café", "cafe"},
		{"日本", "日本語"},
		{"a\xffb", "a\xfeb"},
		{"\xe1\x80", "\xe1\x80\x80"},
		{"\xed\xa0\x80", "\xed"},
		{"\xf0\x9f\x98", "\xf0\x9f\x98\x80"},
		{"\x80\x80ă", "ă\xc0"},
	}
	for _, s := range seeds {
		f.Add(s[0], s[1])
	}

	f.Fuzz(func(t *testing.T, previous, next string) {
		d := ComputeDiff(previous, next)
		if got := d.Apply(previous); got != next {
			t.Fatalf("diff(%q, %q) = %+v applies to %q", previous, next, d, got)
		}
		if !strings.HasPrefix(next, previous[:d.PrefixBytes]) {
			t.Fatalf("diff(%q, %q): prefix %d is not shared", previous, next, d.PrefixBytes)
		}

		for _, s := range []string{previous, next} {
			if same := ComputeDiff(s, s); !same.IsNoop() {
				t.Fatalf("diff(%q, %q) = %+v, want no-op", s, s, same)
			}
		}

		fresh := ComputeDiff("", next)
		if fresh.DeleteCount != 0 || fresh.Insert != next {
			t.Fatalf("diff(\"\", %q) = %+v", next, fresh)
		}
	})
}
