package gesture

import "math"

// Surface describes the token sequence the interpreter selects over.
// text.Sequence satisfies it.
type Surface interface {
	Selectable(index int) bool
}

type emptySurface struct{}

func (emptySurface) Selectable(int) bool { return false }

// Interpreter tracks one interaction at a time. It is not safe for
// concurrent use; callers serialize events per session.
type Interpreter struct {
	cfg     Config
	surface Surface

	state    State
	pointer  int
	anchor   int
	last     int
	start    Point
	current  Point
	selected []int
}

// New returns an idle interpreter. Zero thresholds in cfg take their
// defaults.
func New(cfg Config) *Interpreter {
	in := &Interpreter{cfg: cfg.withDefaults(), surface: emptySurface{}}
	in.Reset()
	return in
}

// Config returns the effective configuration.
func (in *Interpreter) Config() Config { return in.cfg }

// Bind attaches a new token sequence and discards any interaction in
// progress. A nil surface selects nothing.
func (in *Interpreter) Bind(s Surface) {
	if s == nil {
		s = emptySurface{}
	}
	in.surface = s
	in.Reset()
}

// SetPlatform replaces the platform capability query.
func (in *Interpreter) SetPlatform(p Platform) {
	if p == nil {
		p = Capabilities{}
	}
	in.cfg.Platform = p
}

// State returns the current phase.
func (in *Interpreter) State() State { return in.state }

// Selection returns a copy of the visible selection.
func (in *Interpreter) Selection() Selection {
	return Selection{
		State:    in.state,
		Anchor:   in.anchor,
		Selected: append([]int{}, in.selected...),
	}
}

// Start begins a selection on index. It is ignored while another selection
// is in progress and when index is not a selectable token.
func (in *Interpreter) Start(index int, p Point, pointerID int) bool {
	if in.state == Selecting || !in.surface.Selectable(index) {
		return false
	}
	in.state = Selecting
	in.pointer = pointerID
	in.anchor = index
	in.last = index
	in.start = p
	in.current = p
	in.selected = []int{index}
	return true
}

// Move extends the selection to index. An index of -1 keeps the current
// range. A vertically dominant move past the scroll threshold cancels the
// selection. Move reports whether the selection changed.
func (in *Interpreter) Move(index int, p Point, pointerID int) bool {
	if in.state != Selecting || pointerID != in.pointer {
		return false
	}
	in.current = p

	dx := math.Abs(p.X - in.start.X)
	dy := math.Abs(p.Y - in.start.Y)
	if dy > dx*in.cfg.VerticalDominance && dy > in.cfg.ScrollThreshold {
		in.cancel()
		return true
	}

	if index < 0 || index == in.last {
		return false
	}
	in.last = index
	in.selected = in.rangeFrom(in.anchor, index)
	return true
}

// End finishes the selection. It yields a commit only when a selection was
// in progress for pointerID and still holds at least one index.
func (in *Interpreter) End(pointerID int) (Commit, bool) {
	if in.state != Selecting || pointerID != in.pointer {
		return Commit{}, false
	}
	indices := in.selected
	kind := Drag
	if len(indices) <= 1 && in.displacement() < in.cfg.TapThreshold {
		kind = Tap
	}

	in.state = Committed
	in.anchor = -1
	in.selected = nil
	if len(indices) == 0 {
		return Commit{}, false
	}
	return Commit{Kind: kind, Indices: indices}, true
}

// Cancel abandons any selection without committing.
func (in *Interpreter) Cancel() {
	in.cancel()
}

// Click handles a discrete click on hover-capable devices, bypassing drag
// tracking. It is ignored on touch-only platforms, while a selection is in
// progress, and on non-selectable tokens.
func (in *Interpreter) Click(index int) (Commit, bool) {
	if in.state == Selecting || !in.cfg.Platform.SupportsHover() || !in.surface.Selectable(index) {
		return Commit{}, false
	}
	in.state = Committed
	return Commit{Kind: Tap, Indices: []int{index}}, true
}

// Reset returns the interpreter to Idle.
func (in *Interpreter) Reset() {
	in.state = Idle
	in.pointer = 0
	in.anchor = -1
	in.last = -1
	in.start = Point{}
	in.current = Point{}
	in.selected = nil
}

// Handle dispatches a raw event and returns the resulting commit, if any.
// Unknown event types are ignored.
func (in *Interpreter) Handle(ev Event) (Commit, bool) {
	switch ev.Type {
	case EventStart:
		in.Start(ev.Index, ev.Point(), ev.PointerID)
	case EventMove:
		in.Move(ev.Index, ev.Point(), ev.PointerID)
	case EventEnd:
		return in.End(ev.PointerID)
	case EventCancel:
		in.Cancel()
	case EventClick:
		return in.Click(ev.Index)
	}
	return Commit{}, false
}

func (in *Interpreter) cancel() {
	in.state = Cancelled
	in.anchor = -1
	in.last = -1
	in.selected = nil
}

func (in *Interpreter) displacement() float64 {
	return math.Hypot(in.current.X-in.start.X, in.current.Y-in.start.Y)
}

// rangeFrom returns the selectable indices between a and b inclusive.
// Non-selectable tokens are skipped but do not bound the range.
func (in *Interpreter) rangeFrom(a, b int) []int {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		if in.surface.Selectable(i) {
			out = append(out, i)
		}
	}
	return out
}
