// Package script models a prepared script as a normalized, indexed word sequence
package script

import (
	"strings"
	"unicode"
)

// Word is a single script word with its normalized matching form.
type Word struct {
	Raw        string
	Normalized string
	Ordinal    int
}

// Script is an immutable ordered word sequence built once per script text.
type Script struct {
	words []Word
}

// New builds a script model from raw text. The word sequence is never
// mutated afterwards; changing the script means building a new model.
func New(text string) *Script {
	fields := strings.Fields(text)
	words := make([]Word, 0, len(fields))
	for i, f := range fields {
		words = append(words, Word{
			Raw:        f,
			Normalized: Normalize(f),
			Ordinal:    i,
		})
	}
	return &Script{words: words}
}

// Len returns the number of words in the script.
func (s *Script) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

// Word returns the word at index i.
func (s *Script) Word(i int) Word {
	return s.words[i]
}

// Words returns a copy of the full word sequence.
func (s *Script) Words() []Word {
	out := make([]Word, len(s.words))
	copy(out, s.words)
	return out
}

// Normalize lowercases s and strips punctuation, keeping letters, digits
// and whitespace. The same normalization is applied to script words and
// to transcript words so they compare cleanly.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokenize normalizes s and splits it into words.
func Tokenize(s string) []string {
	return strings.Fields(Normalize(s))
}
