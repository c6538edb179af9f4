// Package scripture fetches Psalm text from the ESV and API.Bible services
// and guarantees callers a usable passage even when both are unavailable.
package scripture

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
	"github.com/FocuswithJustin/SacredPsalms/core/reference"
)

// Translation identifies a Bible translation.
type Translation string

const (
	ESV Translation = "ESV"
	KJV Translation = "KJV"
)

// DefaultTranslation is used when a session has no preference.
const DefaultTranslation = ESV

// Translations lists the supported translations.
var Translations = []Translation{ESV, KJV}

// ParseTranslation accepts a translation code in any case. The empty string
// yields DefaultTranslation.
func ParseTranslation(s string) (Translation, error) {
	switch t := Translation(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return DefaultTranslation, nil
	case ESV, KJV:
		return t, nil
	}
	return "", errors.NewValidation("translation", fmt.Sprintf("unsupported translation %q", s))
}

// Scripture is one fetched passage.
type Scripture struct {
	Reference   string      `json:"reference"`
	Text        string      `json:"text"`
	Translation Translation `json:"translation"`

	// Psalm is the chapter that was requested, even when a substitute
	// passage was returned. Zero for the empty scripture.
	Psalm int `json:"psalm,omitempty"`

	// Fallback is set when Text is not the requested psalm.
	Fallback bool `json:"fallback,omitempty"`
}

// DisplayReference returns the reference trimmed for headings.
func (s Scripture) DisplayReference() string {
	return reference.Display(s.Reference)
}

// IsZero reports whether no scripture has been loaded.
func (s Scripture) IsZero() bool {
	return s.Text == "" && s.Reference == ""
}

// Provider supplies Psalm passages.
type Provider interface {
	FetchByNumber(ctx context.Context, n int, t Translation) (Scripture, error)
	FetchRandom(ctx context.Context, t Translation) (Scripture, error)
}

// RandomPsalm returns a uniformly chosen psalm number.
func RandomPsalm() int {
	return rand.IntN(reference.MaxPsalm) + 1
}

// PickUnread chooses a psalm not present in read, falling back to any psalm
// once every chapter has been read.
func PickUnread(read []int) int {
	seen := make(map[int]bool, len(read))
	for _, n := range read {
		seen[n] = true
	}
	unread := make([]int, 0, reference.MaxPsalm)
	for n := 1; n <= reference.MaxPsalm; n++ {
		if !seen[n] {
			unread = append(unread, n)
		}
	}
	if len(unread) == 0 {
		return RandomPsalm()
	}
	return unread[rand.IntN(len(unread))]
}
