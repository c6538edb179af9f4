// Package reference parses Psalm references such as "Psalm 23", "Ps 23:1-6"
// and the API.Bible chapter form "PSA.23".
package reference

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
)

// MaxPsalm is the number of chapters in the Psalter.
const MaxPsalm = 150

// Ref identifies a Psalm and an optional verse span.
type Ref struct {
	Chapter    int `json:"chapter"`
	VerseStart int `json:"verse_start,omitempty"`
	VerseEnd   int `json:"verse_end,omitempty"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type refGrammar struct {
	Book    string     `@Ident "."?`
	Chapter int        `@Int`
	Verses  *verseSpan `( ":" @@ )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type verseSpan struct {
	Start int  `@Int`
	End   *int `( "-" @Int )?`
}

var refLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z]+`},
	{Name: "Punct", Pattern: `[.:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var refParser = participle.MustBuild[refGrammar](
	participle.Lexer(refLexer),
	participle.Elide("Whitespace"),
)

// bookAliases lists accepted spellings of the book name, lower-cased.
var bookAliases = map[string]bool{
	"psalm":   true,
	"psalms":  true,
	"ps":      true,
	"psa":     true,
	"pss":     true,
	"psalter": true,
}

// Parse parses a Psalm reference. Supported forms:
//   - "Psalm 23", "Psalms 23", "Ps 23"
//   - "Psalm 23:1", "Psalm 23:1-6"
//   - "PSA.23"
func Parse(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, errors.NewValidation("reference", "empty reference")
	}

	parsed, err := refParser.ParseString("", s)
	if err != nil {
		return Ref{}, &errors.ValidationError{
			Field:   "reference",
			Message: fmt.Sprintf("invalid reference %q", s),
			Err:     err,
		}
	}

	if !bookAliases[strings.ToLower(parsed.Book)] {
		return Ref{}, errors.NewValidation("reference", fmt.Sprintf("unsupported book %q", parsed.Book))
	}

	ref := Ref{Chapter: parsed.Chapter}
	if parsed.Verses != nil {
		ref.VerseStart = parsed.Verses.Start
		if parsed.Verses.End != nil {
			ref.VerseEnd = *parsed.Verses.End
		}
	}
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// Validate checks the chapter and verse bounds.
func (r Ref) Validate() error {
	if err := ValidateChapter(r.Chapter); err != nil {
		return err
	}
	if r.VerseEnd > 0 && r.VerseEnd < r.VerseStart {
		return errors.NewValidation("reference", "verse range ends before it starts")
	}
	return nil
}

// ValidateChapter checks that n names a Psalm.
func ValidateChapter(n int) error {
	if n < 1 || n > MaxPsalm {
		return errors.NewValidation("psalm", fmt.Sprintf("must be between 1 and %d, got %d", MaxPsalm, n))
	}
	return nil
}

// String renders the reference as "Psalm 23", "Psalm 23:4" or "Psalm 23:1-6".
func (r Ref) String() string {
	var sb strings.Builder
	sb.WriteString("Psalm ")
	sb.WriteString(strconv.Itoa(r.Chapter))
	if r.VerseStart > 0 {
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(r.VerseStart))
		if r.VerseEnd > r.VerseStart {
			sb.WriteString("-")
			sb.WriteString(strconv.Itoa(r.VerseEnd))
		}
	}
	return sb.String()
}

// ChapterID returns the API.Bible chapter identifier, e.g. "PSA.23".
func (r Ref) ChapterID() string {
	return "PSA." + strconv.Itoa(r.Chapter)
}

// WholeChapter returns the reference for the full chapter, spanning verses
// 1 through verseCount when it is known.
func WholeChapter(chapter, verseCount int) Ref {
	ref := Ref{Chapter: chapter}
	if verseCount > 0 {
		ref.VerseStart = 1
		ref.VerseEnd = verseCount
	}
	return ref
}

// Display trims a reference to book and chapter for headings: everything
// before the first ':'.
func Display(reference string) string {
	before, _, _ := strings.Cut(reference, ":")
	return strings.TrimSpace(before)
}
