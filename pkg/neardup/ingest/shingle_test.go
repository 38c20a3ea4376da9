package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func keys(s TokenSet) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func TestShingleWords(t *testing.T) {
	got := NewShingler(1).Shingle("the cat sat on the mat")
	assert.Equal(t, map[string]bool{"the": true, "cat": true, "sat": true, "on": true, "mat": true}, keys(got))
}

func TestShingleKeepsCaseAndPunctuation(t *testing.T) {
	got := NewShingler(1).Shingle("The the THE cat, cat.")
	assert.Len(t, got, 5)
	assert.True(t, got.Contains("The"))
	assert.True(t, got.Contains("cat,"))
	assert.True(t, got.Contains("cat."))
	assert.False(t, got.Contains("cat"))
}

func TestShingleUnicodeWhitespace(t *testing.T) {
	got := NewShingler(1).Shingle("æ\tø\nå x y")
	assert.Equal(t, map[string]bool{"æ": true, "ø": true, "å": true, "x": true, "y": true}, keys(got))
}

func TestShingleEmpty(t *testing.T) {
	assert.Empty(t, NewShingler(1).Shingle(""))
	assert.Empty(t, NewShingler(3).Shingle("   \n"))
}

func TestShingleNGrams(t *testing.T) {
	s := NewShingler(2)
	assert.Equal(t, 2, s.Size())
	got := s.Shingle("a b c a b")
	assert.Equal(t, map[string]bool{"a b": true, "b c": true, "c a": true}, keys(got))

	short := NewShingler(4).Shingle("only  two")
	assert.Equal(t, map[string]bool{"only two": true}, keys(short))
}

func TestShingleSizeFloor(t *testing.T) {
	assert.Equal(t, 1, NewShingler(0).Size())
	assert.Equal(t, 1, NewShingler(-3).Size())
}
