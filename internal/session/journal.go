package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
	"github.com/FocuswithJustin/SacredPsalms/internal/scripture"
)

// MaxJournalLength bounds each journal entry in characters.
const MaxJournalLength = 10000

// Journal holds the reader's written response to the passage.
type Journal struct {
	Reflection string `json:"reflection,omitempty"`
	Prayer     string `json:"prayer,omitempty"`
}

// JournalUpdate carries the entries a client may change. Nil fields are left
// as they are; an empty string clears the entry.
type JournalUpdate struct {
	Reflection *string `json:"reflection"`
	Prayer     *string `json:"prayer"`
}

func (u JournalUpdate) validate() error {
	entries := []struct {
		field string
		value *string
	}{{"reflection", u.Reflection}, {"prayer", u.Prayer}}
	for _, e := range entries {
		if e.value == nil {
			continue
		}
		if !utf8.ValidString(*e.value) {
			return errors.NewValidation(e.field, "must be valid UTF-8")
		}
		if n := utf8.RuneCountInString(*e.value); n > MaxJournalLength {
			return errors.NewValidation(e.field, fmt.Sprintf("%d characters exceeds the limit of %d", n, MaxJournalLength))
		}
	}
	return nil
}

// apply reports whether the journal changed.
func (j *Journal) apply(u JournalUpdate) bool {
	before := *j
	if u.Reflection != nil {
		j.Reflection = strings.TrimSpace(*u.Reflection)
	}
	if u.Prayer != nil {
		j.Prayer = strings.TrimSpace(*u.Prayer)
	}
	return *j != before
}

// Recap is the closing summary of a meditation: the passage, the phrases the
// reader highlighted in reading order, and their journal.
type Recap struct {
	Reference   string                `json:"reference"`
	Translation scripture.Translation `json:"translation"`
	Phrases     []string              `json:"phrases"`
	Journal     Journal               `json:"journal"`
	Breaths     int                   `json:"breaths"`
}

func newRecap(s *Session) Recap {
	phrases := s.Phrases()
	r := Recap{
		Reference:   s.Scripture.Reference,
		Translation: s.Scripture.Translation,
		Phrases:     make([]string, len(phrases)),
		Journal:     s.Journal,
		Breaths:     s.BreathCount,
	}
	for i, p := range phrases {
		r.Phrases[i] = p.Text
	}
	return r
}
