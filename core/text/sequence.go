package text

import "strings"

// Sequence is an ordered token list where Sequence[i].Index == i.
type Sequence []Token

// At returns the token at index i.
func (s Sequence) At(i int) (Token, bool) {
	if i < 0 || i >= len(s) {
		return Token{}, false
	}
	return s[i], true
}

// Selectable reports whether index i exists and names a selectable token.
func (s Sequence) Selectable(i int) bool {
	tok, ok := s.At(i)
	return ok && tok.Selectable()
}

// Words returns only the selectable tokens.
func (s Sequence) Words() []Token {
	var words []Token
	for _, tok := range s {
		if tok.Selectable() {
			words = append(words, tok)
		}
	}
	return words
}

// Text joins every token back together.
func (s Sequence) Text() string {
	var sb strings.Builder
	for _, tok := range s {
		sb.WriteString(tok.Text)
	}
	return sb.String()
}
