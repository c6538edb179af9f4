// Package text splits scripture passages into indexed tokens.
//
// Tokens cover words (with one trailing punctuation mark), whitespace runs and
// lone punctuation. Every emitted segment receives a stable index, including
// whitespace, so that clients can address any rendered span by position.
package text

import (
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2/lexer"
)

// Token is one segment of a tokenized passage.
type Token struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// Selectable reports whether the token can be highlighted. Whitespace and
// punctuation-only tokens never can.
func (t Token) Selectable() bool {
	return strings.IndexFunc(t.Text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// passageLexer mirrors a global match of `[\w']+[.,;:!?]?|\s+|[.,;:!?]`.
// Rules are tried in order; characters matched by Other are discarded.
// Space covers Unicode separators and BOM as well as ASCII whitespace, so a
// no-break space still yields its own token between two words.
var passageLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Word", Pattern: `[\w'’]+[.,;:!?]?`},
	{Name: "Space", Pattern: `[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`},
	{Name: "Punct", Pattern: `[.,;:!?]`},
	{Name: "Other", Pattern: `.`},
})

var otherType = passageLexer.Symbols()["Other"]

// Tokenize normalizes line breaks and splits text into tokens indexed from 0.
// Identical input always yields an identical sequence.
func Tokenize(text string) Sequence {
	text = Normalize(text)
	if text == "" {
		return Sequence{}
	}

	lex, err := passageLexer.LexString("", text)
	if err != nil {
		return Sequence{}
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		// Other matches any single character, so this is unreachable for
		// valid UTF-8. Keep what was lexed before the failure.
		if len(raw) == 0 {
			return Sequence{}
		}
	}

	tokens := make(Sequence, 0, len(raw))
	for _, tok := range raw {
		if tok.EOF() || tok.Type == otherType {
			continue
		}
		tokens = append(tokens, Token{Text: tok.Value, Index: len(tokens)})
	}
	return tokens
}

// Normalize turns single line breaks into spaces while keeping paragraph
// breaks (two or more consecutive line breaks) intact. CRLF is folded to LF.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.Contains(text, "\n") {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\n' {
			sb.WriteByte(c)
			continue
		}
		prevBreak := i > 0 && text[i-1] == '\n'
		nextBreak := i+1 < len(text) && text[i+1] == '\n'
		// Leading and trailing breaks have no word on one side and stay put.
		if prevBreak || nextBreak || i == 0 || i == len(text)-1 {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteByte(' ')
	}
	return sb.String()
}
