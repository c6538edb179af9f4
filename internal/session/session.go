// Package session holds the meditation session model and the manager that
// serializes every mutation of a session.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
	"github.com/FocuswithJustin/SacredPsalms/core/gesture"
	"github.com/FocuswithJustin/SacredPsalms/core/highlight"
	"github.com/FocuswithJustin/SacredPsalms/core/text"
	"github.com/FocuswithJustin/SacredPsalms/internal/scripture"
)

// Step is a stage of the guided meditation.
type Step string

const (
	StepChapterSelect Step = "chapter_select"
	StepBreathing     Step = "breathing"
	StepReading       Step = "reading"
	StepReflection    Step = "reflection"
)

var stepOrder = []Step{StepChapterSelect, StepBreathing, StepReading, StepReflection}

func (s Step) position() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool { return s.position() >= 0 }

// Next returns the following step, staying on the last one.
func (s Step) Next() Step {
	i := s.position()
	if i < 0 {
		return StepChapterSelect
	}
	if i+1 < len(stepOrder) {
		return stepOrder[i+1]
	}
	return s
}

// Prev returns the preceding step, staying on the first one.
func (s Step) Prev() Step {
	if i := s.position(); i > 0 {
		return stepOrder[i-1]
	}
	return StepChapterSelect
}

// BreathsRequired is the number of breaths that completes the exercise.
const BreathsRequired = 3

// Session is one user's pass through the meditation. It is not safe for
// concurrent use; Manager serializes access.
type Session struct {
	ID              string
	Scripture       scripture.Scripture
	Step            Step
	BreathCount     int
	BreathCompleted bool
	Translation     scripture.Translation
	Journal         Journal
	CreatedAt       time.Time
	UpdatedAt       time.Time

	tokens     text.Sequence
	highlights *highlight.Store
	groups     highlight.Counter
}

// New creates a session showing the built-in passage until a psalm is loaded.
func New(id string, t scripture.Translation, now time.Time) *Session {
	s := &Session{
		ID:          id,
		Step:        StepChapterSelect,
		Translation: t,
		CreatedAt:   now,
		UpdatedAt:   now,
		highlights:  highlight.NewStore(),
	}
	s.setScripture(scripture.Builtin(t))
	return s
}

func (s *Session) setScripture(sc scripture.Scripture) {
	s.Scripture = sc
	s.tokens = text.Tokenize(sc.Text)
}

// Tokens returns the token sequence of the current scripture.
func (s *Session) Tokens() text.Sequence { return s.tokens }

// Highlights returns the highlights ordered by index.
func (s *Session) Highlights() []highlight.HighlightedToken { return s.highlights.All() }

// Phrases returns the reflection phrases.
func (s *Session) Phrases() []highlight.Phrase { return s.highlights.Phrases() }

// NextGroupID returns the id the next drag will receive.
func (s *Session) NextGroupID() int {
	if s.groups.Next < 1 {
		return 1
	}
	return s.groups.Next
}

// LoadScripture replaces the passage, clears highlights and the breathing
// exercise, and moves to the breathing step. The group counter keeps counting.
func (s *Session) LoadScripture(sc scripture.Scripture) {
	s.setScripture(sc)
	s.highlights.Clear()
	s.BreathCount = 0
	s.BreathCompleted = false
	s.Journal = Journal{}
	s.Step = StepBreathing
}

// Apply commits a gesture and reports whether highlights changed.
func (s *Session) Apply(c gesture.Commit) bool {
	var changed bool
	switch c.Kind {
	case gesture.Tap:
		if len(c.Indices) == 1 {
			changed = s.Toggle(c.Indices[0])
		}
	case gesture.Drag:
		changed = s.drag(c.Indices)
	}
	return changed
}

// Toggle applies tap semantics to index: a highlighted token is removed; an
// unhighlighted one joins the group of a grouped neighbor at index-1 or
// index+1, else is added ungrouped. Non-selectable indices are ignored.
func (s *Session) Toggle(index int) bool {
	tok, ok := s.tokens.At(index)
	if !ok || !tok.Selectable() {
		return false
	}
	if s.highlights.Has(index) {
		s.highlights.Remove(index)
	} else {
		group := 0
		for _, n := range []int{index - 1, index + 1} {
			if h, ok := s.highlights.Get(n); ok && h.Grouped() {
				group = h.GroupID
				break
			}
		}
		s.highlights.Add(tok.Text, index, group)
	}
	s.highlights.MergeAdjacentGroups(&s.groups)
	return true
}

// drag highlights every unhighlighted selectable index under a fresh group.
// Indices already highlighted keep their current group.
func (s *Session) drag(indices []int) bool {
	var fresh []text.Token
	for _, i := range indices {
		tok, ok := s.tokens.At(i)
		if ok && tok.Selectable() && !s.highlights.Has(i) {
			fresh = append(fresh, tok)
		}
	}
	if len(fresh) == 0 {
		return false
	}
	group := s.groups.NextGroupID()
	for _, tok := range fresh {
		s.highlights.Add(tok.Text, tok.Index, group)
	}
	s.highlights.MergeAdjacentGroups(&s.groups)
	return true
}

// RemoveHighlight removes the highlight at index.
func (s *Session) RemoveHighlight(index int) error {
	if !s.highlights.Remove(index) {
		return errors.NewNotFound("highlight", fmt.Sprint(index))
	}
	return nil
}

// Reset returns to chapter selection keeping the current passage. Highlights,
// journal and breathing progress are cleared; group ids are never reused.
func (s *Session) Reset() {
	s.highlights.Clear()
	s.BreathCount = 0
	s.BreathCompleted = false
	s.Journal = Journal{}
	s.Step = StepChapterSelect
}

// Advance moves one step forward or back.
func (s *Session) Advance(direction string) error {
	switch direction {
	case "next":
		s.Step = s.Step.Next()
	case "prev", "back":
		s.Step = s.Step.Prev()
	default:
		return errors.NewValidation("direction", fmt.Sprintf("must be next or prev, got %q", direction))
	}
	return nil
}

// Breathe records one breath; the exercise completes on the third.
func (s *Session) Breathe() {
	s.BreathCount++
	if s.BreathCount >= BreathsRequired {
		s.BreathCompleted = true
	}
}

// CompleteBreathing marks the exercise complete without further breaths.
func (s *Session) CompleteBreathing() {
	s.BreathCompleted = true
}

// state is the persisted form of a Session.
type state struct {
	ID              string                       `json:"id"`
	Scripture       scripture.Scripture          `json:"scripture"`
	Step            Step                         `json:"step"`
	Highlights      []highlight.HighlightedToken `json:"highlights"`
	NextGroupID     int                          `json:"next_group_id"`
	BreathCount     int                          `json:"breath_count"`
	BreathCompleted bool                         `json:"breath_completed"`
	Translation     scripture.Translation        `json:"translation"`
	Journal         Journal                      `json:"journal"`
	CreatedAt       time.Time                    `json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(state{
		ID:              s.ID,
		Scripture:       s.Scripture,
		Step:            s.Step,
		Highlights:      s.highlights.All(),
		NextGroupID:     s.NextGroupID(),
		BreathCount:     s.BreathCount,
		BreathCompleted: s.BreathCompleted,
		Translation:     s.Translation,
		Journal:         s.Journal,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Tokens are rebuilt from the
// scripture text and highlights that no longer name a selectable token are
// dropped. The group counter is advanced past every stored group id.
func (s *Session) UnmarshalJSON(data []byte) error {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}

	*s = Session{
		ID:              st.ID,
		Step:            st.Step,
		BreathCount:     st.BreathCount,
		BreathCompleted: st.BreathCompleted,
		Translation:     st.Translation,
		Journal:         st.Journal,
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
		highlights:      highlight.NewStore(),
		groups:          highlight.Counter{Next: st.NextGroupID},
	}
	if !s.Step.Valid() {
		s.Step = StepChapterSelect
	}
	if s.Translation == "" {
		s.Translation = scripture.DefaultTranslation
	}
	if st.Scripture.IsZero() {
		st.Scripture = scripture.Builtin(s.Translation)
	}
	s.setScripture(st.Scripture)

	for _, h := range st.Highlights {
		if !s.tokens.Selectable(h.Index) {
			continue
		}
		s.highlights.Add(h.Word, h.Index, h.GroupID)
		s.groups.Observe(h.GroupID)
	}
	return nil
}
