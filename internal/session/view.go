package session

import (
	"time"

	"github.com/FocuswithJustin/SacredPsalms/core/gesture"
	"github.com/FocuswithJustin/SacredPsalms/core/highlight"
	"github.com/FocuswithJustin/SacredPsalms/core/text"
	"github.com/FocuswithJustin/SacredPsalms/internal/scripture"
)

// PhraseRevealInterval spaces out the reflection animation: the phrase at
// position i appears i intervals after the first.
const PhraseRevealInterval = 1200 * time.Millisecond

// RevealPhrase is a reflection phrase with its animation delay.
type RevealPhrase struct {
	highlight.Phrase
	DelaySeconds float64 `json:"delay_seconds"`
}

// RevealPhrases attaches reveal delays to phrases in order.
func RevealPhrases(phrases []highlight.Phrase) []RevealPhrase {
	out := make([]RevealPhrase, len(phrases))
	for i, p := range phrases {
		out[i] = RevealPhrase{
			Phrase:       p,
			DelaySeconds: (time.Duration(i) * PhraseRevealInterval).Seconds(),
		}
	}
	return out
}

// View is an immutable snapshot of a session for clients.
type View struct {
	ID               string                       `json:"id"`
	Scripture        scripture.Scripture          `json:"scripture"`
	DisplayReference string                       `json:"display_reference"`
	Step             Step                         `json:"step"`
	BreathCount      int                          `json:"breath_count"`
	BreathsRequired  int                          `json:"breaths_required"`
	BreathCompleted  bool                         `json:"breath_completed"`
	Translation      scripture.Translation        `json:"translation"`
	Loading          bool                         `json:"loading"`
	Tokens           text.Sequence                `json:"tokens"`
	Highlights       []highlight.HighlightedToken `json:"highlights"`
	Phrases          []RevealPhrase               `json:"phrases"`
	Selection        gesture.Selection            `json:"selection"`
	NextGroupID      int                          `json:"next_group_id"`
	Journal          Journal                      `json:"journal"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

// GestureResult is returned for every gesture event.
type GestureResult struct {
	Commit    *gesture.Commit   `json:"commit,omitempty"`
	Changed   bool              `json:"changed"`
	Selection gesture.Selection `json:"selection"`
	View      View              `json:"session"`
}

func newView(s *Session, sel gesture.Selection, loading bool) View {
	tokens := s.Tokens()
	if tokens == nil {
		tokens = text.Sequence{}
	}
	if sel.Selected == nil {
		sel.Selected = []int{}
	}
	return View{
		ID:               s.ID,
		Scripture:        s.Scripture,
		DisplayReference: s.Scripture.DisplayReference(),
		Step:             s.Step,
		BreathCount:      s.BreathCount,
		BreathsRequired:  BreathsRequired,
		BreathCompleted:  s.BreathCompleted,
		Translation:      s.Translation,
		Loading:          loading,
		Tokens:           tokens,
		Highlights:       s.Highlights(),
		Phrases:          RevealPhrases(s.Phrases()),
		Selection:        sel,
		NextGroupID:      s.NextGroupID(),
		Journal:          s.Journal,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
