package index

import "strings"

// Tokenizer splits a string value into index terms.
type Tokenizer interface {
	Tokenize(s string) []string
}

// WhitespaceTokenizer lower-cases and splits on whitespace and
// punctuation: the default tokenizer when no embedding model is
// loaded to provide WordPiece subwording.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}

var defaultTokenizer Tokenizer = WhitespaceTokenizer{}

// RegisterTokenizer swaps the package-wide default tokenizer, the
// hook an embedding model uses to install WordPiece subwording when
// one is loaded.
func RegisterTokenizer(t Tokenizer) {
	defaultTokenizer = t
}

func DefaultTokenizer() Tokenizer { return defaultTokenizer }
