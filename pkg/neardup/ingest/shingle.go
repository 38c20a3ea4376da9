package ingest

import "strings"

// TokenSet is a set of distinct tokens. Order carries no meaning.
type TokenSet map[string]struct{}

// Contains reports whether tok is in the set.
func (s TokenSet) Contains(tok string) bool {
	_, ok := s[tok]
	return ok
}

// Shingler turns canonical text into a TokenSet.
type Shingler struct {
	size int
}

// NewShingler returns a shingler producing word n-grams of the given size.
// Sizes below 1 mean single words.
func NewShingler(size int) *Shingler {
	if size < 1 {
		size = 1
	}
	return &Shingler{size: size}
}

// Size returns the shingle width in words.
func (s *Shingler) Size() int { return s.size }

// Shingle splits on Unicode whitespace without case folding or stemming and
// collapses repeats. With size k > 1, consecutive k-word windows joined by a
// single space are the tokens; text shorter than k words is one token.
func (s *Shingler) Shingle(text string) TokenSet {
	words := strings.Fields(text)
	if len(words) == 0 {
		return TokenSet{}
	}
	if s.size == 1 {
		set := make(TokenSet, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	}
	if len(words) <= s.size {
		return TokenSet{strings.Join(words, " "): {}}
	}
	set := make(TokenSet, len(words)-s.size+1)
	for i := 0; i+s.size <= len(words); i++ {
		set[strings.Join(words[i:i+s.size], " ")] = struct{}{}
	}
	return set
}
