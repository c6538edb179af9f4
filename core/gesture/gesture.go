// Package gesture interprets raw pointer and touch events reported by a
// rendering surface into committed selections over a token sequence.
package gesture

import (
	"fmt"
	"strings"
)

// State is the phase of the single tracked interaction.
type State int

const (
	Idle State = iota
	Selecting
	Committed
	Cancelled
)

var stateNames = [...]string{"idle", "selecting", "committed", "cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown selection state %q", b)
}

// Kind classifies a commit.
type Kind int

const (
	Tap Kind = iota
	Drag
)

func (k Kind) String() string {
	if k == Drag {
		return "drag"
	}
	return "tap"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "tap" or "drag".
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "tap":
		*k = Tap
	case "drag":
		*k = Drag
	default:
		return fmt.Errorf("unknown commit kind %q", b)
	}
	return nil
}

// Point is a raw surface coordinate. Units are whatever the surface reports;
// thresholds in Config are expressed in the same units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Commit is the finalized outcome of an interaction.
type Commit struct {
	Kind    Kind  `json:"kind"`
	Indices []int `json:"indices"`
}

// Selection is the externally visible selection state.
type Selection struct {
	State    State `json:"state"`
	Anchor   int   `json:"anchor"`
	Selected []int `json:"selected"`
}

// Active reports whether a selection is in progress.
func (s Selection) Active() bool { return s.State == Selecting }

// EventType names a gesture event as sent by clients.
type EventType string

const (
	EventStart  EventType = "start"
	EventMove   EventType = "move"
	EventEnd    EventType = "end"
	EventCancel EventType = "cancel"
	EventClick  EventType = "click"
)

// ParseEventType validates a client supplied event type.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.ToLower(strings.TrimSpace(s))); t {
	case EventStart, EventMove, EventEnd, EventCancel, EventClick:
		return t, nil
	}
	return "", fmt.Errorf("unknown gesture event type %q", s)
}

// Event is one raw event reported by the surface. Index is the token under
// the pointer, or -1 when the pointer is not over a token.
type Event struct {
	Type      EventType `json:"type"`
	Index     int       `json:"index"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	PointerID int       `json:"pointer_id"`
}

// Point returns the event coordinates.
func (e Event) Point() Point { return Point{X: e.X, Y: e.Y} }
