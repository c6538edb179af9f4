package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
	"github.com/FocuswithJustin/SacredPsalms/core/gesture"
	"github.com/FocuswithJustin/SacredPsalms/core/reference"
	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
	"github.com/FocuswithJustin/SacredPsalms/internal/scripture"
	"github.com/FocuswithJustin/SacredPsalms/internal/storage"
)

// Store is the persistence the manager writes through to. *storage.Store
// implements it.
type Store interface {
	SaveSession(ctx context.Context, rec storage.Record) error
	LoadSession(ctx context.Context, id string) (storage.Record, error)
	DeleteSession(ctx context.Context, id string) error
	SetPreference(ctx context.Context, sessionID, key, value string) error
	Preferences(ctx context.Context, sessionID string) (map[string]string, error)
}

// Preferences are per-session settings kept outside the session document.
type Preferences struct {
	Translation  scripture.Translation `json:"translation"`
	ReadChapters []int                 `json:"read_chapters"`
	Hover        bool                  `json:"hover"`
}

// PreferencesUpdate carries the fields a client may change. Nil fields are
// left untouched.
type PreferencesUpdate struct {
	Translation *string `json:"translation,omitempty"`
	Hover       *bool   `json:"hover,omitempty"`
}

const prefHover = "hover"

// entry is one live session. mu serializes every operation on it. Once
// deleted is set the entry is never written to the store again.
type entry struct {
	mu      sync.Mutex
	sess    *Session
	interp  *gesture.Interpreter
	prefs   Preferences
	loading bool
	deleted bool
}

func (e *entry) view() View {
	return newView(e.sess, e.interp.Selection(), e.loading)
}

// Options configures a Manager.
type Options struct {
	Store    Store // nil keeps sessions in memory only
	Provider scripture.Provider
	Gesture  gesture.Config

	// OnChange is called after every mutation, outside the session lock.
	OnChange func(id string, v View)
}

// Manager owns live sessions, their gesture interpreters and persistence.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	deletes uint64 // bumped by every Delete; restores retry when it moves

	store    Store
	provider scripture.Provider
	gesture  gesture.Config
	onChange func(string, View)
	now      func() time.Time
}

// NewManager creates a manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		entries:  make(map[string]*entry),
		store:    opts.Store,
		provider: opts.Provider,
		gesture:  opts.Gesture,
		onChange: opts.OnChange,
		now:      time.Now,
	}
}

// SetOnChange replaces the change callback.
func (m *Manager) SetOnChange(fn func(id string, v View)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Create starts a new session. An empty translation uses the default.
func (m *Manager) Create(ctx context.Context, translation string) (View, error) {
	t, err := scripture.ParseTranslation(translation)
	if err != nil {
		return View{}, err
	}

	id := uuid.NewString()
	e := m.newEntry(New(id, t, m.now()), Preferences{Translation: t})

	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()

	ctx = logging.WithSessionID(ctx, id)
	logging.SessionEvent(ctx, "created", "translation", string(t))

	e.mu.Lock()
	m.persist(ctx, e)
	m.savePreferences(ctx, e)
	v := e.view()
	e.mu.Unlock()
	return v, nil
}

func (m *Manager) newEntry(s *Session, prefs Preferences) *entry {
	cfg := m.gesture
	cfg.Platform = gesture.Capabilities{Hover: prefs.Hover}
	in := gesture.New(cfg)
	in.Bind(s.Tokens())
	return &entry{sess: s, interp: in, prefs: prefs}
}

// lookup returns the live entry for id, restoring it from the store when
// needed. A restored session always starts at chapter selection. Store reads
// happen without m.mu; a restore that overlaps a Delete is read again.
func (m *Manager) lookup(ctx context.Context, id string) (*entry, error) {
	for {
		m.mu.Lock()
		e, ok := m.entries[id]
		deletes := m.deletes
		m.mu.Unlock()
		if ok {
			return e, nil
		}
		if m.store == nil {
			return nil, errors.NewNotFound("session", id)
		}

		restored, err := m.restore(ctx, id)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if e, ok := m.entries[id]; ok {
			m.mu.Unlock()
			return e, nil
		}
		if m.deletes != deletes {
			m.mu.Unlock()
			continue
		}
		m.entries[id] = restored
		m.mu.Unlock()

		logging.SessionEvent(logging.WithSessionID(ctx, id), "restored", "highlights", restored.sess.highlights.Len())
		return restored, nil
	}
}

// restore reads a session and its preferences from the store.
func (m *Manager) restore(ctx context.Context, id string) (*entry, error) {
	rec, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s := &Session{}
	if err := json.Unmarshal(rec.Data, s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	s.ID = id
	s.Step = StepChapterSelect

	prefs := Preferences{Translation: s.Translation}
	if raw, err := m.store.Preferences(ctx, id); err != nil {
		logging.StorageError(ctx, "load_preferences", id, err)
	} else {
		prefs = decodePreferences(ctx, id, raw, s.Translation)
	}
	return m.newEntry(s, prefs), nil
}

// mutate runs fn under the session lock, then persists and notifies when
// fn reports a change. Gestures are refused while scripture is loading.
func (m *Manager) mutate(ctx context.Context, id string, gate bool, fn func(e *entry) (bool, error)) (View, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return View{}, err
	}
	ctx = logging.WithSessionID(ctx, id)

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return View{}, errors.NewNotFound("session", id)
	}
	if gate && e.loading {
		e.mu.Unlock()
		return View{}, fmt.Errorf("session %s is loading scripture: %w", id, errors.ErrBusy)
	}
	changed, err := fn(e)
	if err != nil {
		e.mu.Unlock()
		return View{}, err
	}
	if changed {
		e.sess.UpdatedAt = m.now()
		m.persist(ctx, e)
	}
	v := e.view()
	e.mu.Unlock()

	if changed {
		m.notify(id, v)
	}
	return v, nil
}

// Summary describes a session in listings.
type Summary struct {
	ID               string    `json:"id"`
	DisplayReference string    `json:"display_reference"`
	Step             Step      `json:"step"`
	Highlights       int       `json:"highlights"`
	UpdatedAt        time.Time `json:"updated_at"`
	Live             bool      `json:"live"`
}

// List returns every known session, most recently updated first. Stored
// sessions that are not live are summarized from their persisted form.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	m.mu.Lock()
	live := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		live[id] = e
	}
	m.mu.Unlock()

	var out []Summary
	seen := make(map[string]bool, len(live))
	for id, e := range live {
		e.mu.Lock()
		out = append(out, summarize(e.sess, true))
		e.mu.Unlock()
		seen[id] = true
	}

	if lister, ok := m.store.(interface {
		ListSessions(context.Context) ([]storage.Record, error)
	}); ok {
		recs, err := lister.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if seen[rec.ID] {
				continue
			}
			s := &Session{}
			if err := json.Unmarshal(rec.Data, s); err != nil {
				logging.StorageError(ctx, "decode_session", rec.ID, err)
				continue
			}
			s.ID = rec.ID
			s.UpdatedAt = rec.UpdatedAt
			out = append(out, summarize(s, false))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func summarize(s *Session, live bool) Summary {
	return Summary{
		ID:               s.ID,
		DisplayReference: s.Scripture.DisplayReference(),
		Step:             s.Step,
		Highlights:       s.highlights.Len(),
		UpdatedAt:        s.UpdatedAt,
		Live:             live,
	}
}

// Get returns a snapshot of the session.
func (m *Manager) Get(ctx context.Context, id string) (View, error) {
	return m.mutate(ctx, id, false, func(*entry) (bool, error) { return false, nil })
}

// Delete removes a session from memory and the store. Operations still in
// flight on the session finish without writing it back.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, live := m.entries[id]
	delete(m.entries, id)
	m.deletes++
	m.mu.Unlock()

	if live {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}

	if m.store != nil {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			if !(live && errors.Is(err, errors.ErrNotFound)) {
				return err
			}
		}
	} else if !live {
		return errors.NewNotFound("session", id)
	}
	logging.SessionEvent(logging.WithSessionID(ctx, id), "deleted")
	return nil
}

// LoadPsalm fetches Psalm n in the session's translation.
func (m *Manager) LoadPsalm(ctx context.Context, id string, n int) (View, error) {
	if err := reference.ValidateChapter(n); err != nil {
		return View{}, err
	}
	return m.load(ctx, id, func(ctx context.Context, p Preferences) (scripture.Scripture, error) {
		return m.provider.FetchByNumber(ctx, n, p.Translation)
	})
}

// LoadReference parses a reference such as "Psalm 23" and loads its chapter.
func (m *Manager) LoadReference(ctx context.Context, id, ref string) (View, error) {
	r, err := reference.Parse(ref)
	if err != nil {
		return View{}, err
	}
	return m.LoadPsalm(ctx, id, r.Chapter)
}

// LoadRandom loads a psalm the session has not read yet, or any psalm once
// all have been read.
func (m *Manager) LoadRandom(ctx context.Context, id string) (View, error) {
	return m.load(ctx, id, func(ctx context.Context, p Preferences) (scripture.Scripture, error) {
		return m.provider.FetchByNumber(ctx, scripture.PickUnread(p.ReadChapters), p.Translation)
	})
}

// load marks the session loading, fetches without holding the session lock
// so reads stay responsive, then installs the passage.
func (m *Manager) load(ctx context.Context, id string, fetch func(context.Context, Preferences) (scripture.Scripture, error)) (View, error) {
	if m.provider == nil {
		return View{}, errors.NewUpstream("scripture", 0, fmt.Errorf("no provider configured"))
	}
	e, err := m.lookup(ctx, id)
	if err != nil {
		return View{}, err
	}
	ctx = logging.WithSessionID(ctx, id)

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return View{}, errors.NewNotFound("session", id)
	}
	if e.loading {
		e.mu.Unlock()
		return View{}, fmt.Errorf("session %s is already loading: %w", id, errors.ErrBusy)
	}
	e.loading = true
	e.interp.Cancel()
	prefs := e.prefs
	prefs.ReadChapters = append([]int{}, e.prefs.ReadChapters...)
	pending := e.view()
	e.mu.Unlock()
	m.notify(id, pending)

	sc, fetchErr := fetch(ctx, prefs)

	e.mu.Lock()
	e.loading = false
	if e.deleted {
		e.mu.Unlock()
		return View{}, errors.NewNotFound("session", id)
	}
	if fetchErr != nil {
		v := e.view()
		e.mu.Unlock()
		m.notify(id, v)
		return View{}, fetchErr
	}

	e.sess.LoadScripture(sc)
	e.sess.UpdatedAt = m.now()
	e.interp.Bind(e.sess.Tokens())
	if sc.Psalm > 0 && !sc.Fallback {
		e.prefs.ReadChapters = addChapter(e.prefs.ReadChapters, sc.Psalm)
	}
	m.persist(ctx, e)
	m.savePreferences(ctx, e)
	v := e.view()
	e.mu.Unlock()

	m.notify(id, v)
	return v, nil
}

// HandleGesture feeds one raw event to the session's interpreter and applies
// any resulting commit.
func (m *Manager) HandleGesture(ctx context.Context, id string, ev gesture.Event) (GestureResult, error) {
	var res GestureResult
	v, err := m.mutate(ctx, id, true, func(e *entry) (bool, error) {
		before := e.interp.Selection()
		commit, ok := e.interp.Handle(ev)
		if ok {
			res.Commit = &commit
			res.Changed = e.sess.Apply(commit)
			logging.GestureCommit(logging.WithSessionID(ctx, id), commit.Kind.String(),
				len(commit.Indices), e.sess.highlights.Len(), len(e.sess.Phrases()))
		}
		after := e.interp.Selection()
		return res.Changed || !sameSelection(before, after), nil
	})
	if err != nil {
		return GestureResult{}, err
	}
	res.Selection = v.Selection
	res.View = v
	return res, nil
}

func sameSelection(a, b gesture.Selection) bool {
	if a.State != b.State || a.Anchor != b.Anchor || len(a.Selected) != len(b.Selected) {
		return false
	}
	for i := range a.Selected {
		if a.Selected[i] != b.Selected[i] {
			return false
		}
	}
	return true
}

// ToggleHighlight applies tap semantics to index. Indices that do not name a
// selectable token leave the session unchanged.
func (m *Manager) ToggleHighlight(ctx context.Context, id string, index int) (View, error) {
	return m.mutate(ctx, id, true, func(e *entry) (bool, error) {
		return e.sess.Toggle(index), nil
	})
}

// RemoveHighlight deletes the highlight at index.
func (m *Manager) RemoveHighlight(ctx context.Context, id string, index int) (View, error) {
	return m.mutate(ctx, id, true, func(e *entry) (bool, error) {
		if err := e.sess.RemoveHighlight(index); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Reset clears highlights, breathing progress and any selection in progress.
func (m *Manager) Reset(ctx context.Context, id string) (View, error) {
	return m.mutate(ctx, id, false, func(e *entry) (bool, error) {
		e.sess.Reset()
		e.interp.Reset()
		logging.SessionEvent(logging.WithSessionID(ctx, id), "reset")
		return true, nil
	})
}

// Advance moves the session one step forward ("next") or back ("prev").
func (m *Manager) Advance(ctx context.Context, id, direction string) (View, error) {
	return m.mutate(ctx, id, false, func(e *entry) (bool, error) {
		if err := e.sess.Advance(direction); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Breath records a breathing action: "increment" or "complete".
func (m *Manager) Breath(ctx context.Context, id, action string) (View, error) {
	return m.mutate(ctx, id, false, func(e *entry) (bool, error) {
		switch action {
		case "increment", "":
			e.sess.Breathe()
		case "complete":
			e.sess.CompleteBreathing()
		default:
			return false, errors.NewValidation("action", fmt.Sprintf("must be increment or complete, got %q", action))
		}
		return true, nil
	})
}

// UpdateJournal records the reader's reflection and prayer.
func (m *Manager) UpdateJournal(ctx context.Context, id string, u JournalUpdate) (View, error) {
	if err := u.validate(); err != nil {
		return View{}, err
	}
	return m.mutate(ctx, id, false, func(e *entry) (bool, error) {
		return e.sess.Journal.apply(u), nil
	})
}

// Recap summarizes the session for the closing view.
func (m *Manager) Recap(ctx context.Context, id string) (Recap, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return Recap{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Recap{}, errors.NewNotFound("session", id)
	}
	return newRecap(e.sess), nil
}

// Preferences returns the session's preferences.
func (m *Manager) Preferences(ctx context.Context, id string) (Preferences, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return Preferences{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Preferences{}, errors.NewNotFound("session", id)
	}
	p := e.prefs
	p.ReadChapters = append([]int{}, p.ReadChapters...)
	return p, nil
}

// UpdatePreferences changes the translation used for future loads and the
// hover capability of the client.
func (m *Manager) UpdatePreferences(ctx context.Context, id string, u PreferencesUpdate) (Preferences, error) {
	var t scripture.Translation
	if u.Translation != nil {
		var err error
		if t, err = scripture.ParseTranslation(*u.Translation); err != nil {
			return Preferences{}, err
		}
	}

	var prefs Preferences
	_, err := m.mutate(ctx, id, false, func(e *entry) (bool, error) {
		if u.Translation != nil {
			e.prefs.Translation = t
			e.sess.Translation = t
		}
		if u.Hover != nil {
			e.prefs.Hover = *u.Hover
			e.interp.SetPlatform(gesture.Capabilities{Hover: *u.Hover})
		}
		m.savePreferences(logging.WithSessionID(ctx, id), e)
		prefs = e.prefs
		prefs.ReadChapters = append([]int{}, e.prefs.ReadChapters...)
		return true, nil
	})
	if err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// persist writes the session through to the store. Failures are logged and
// never reach the caller. Must be called with e.mu held.
func (m *Manager) persist(ctx context.Context, e *entry) {
	if m.store == nil || e.deleted {
		return
	}
	data, err := json.Marshal(e.sess)
	if err != nil {
		logging.StorageError(ctx, "encode_session", e.sess.ID, err)
		return
	}
	rec := storage.Record{
		ID:        e.sess.ID,
		Data:      data,
		CreatedAt: e.sess.CreatedAt,
		UpdatedAt: e.sess.UpdatedAt,
	}
	if err := m.store.SaveSession(ctx, rec); err != nil {
		logging.StorageError(ctx, "save_session", e.sess.ID, err)
	}
}

// savePreferences writes e.prefs through to the store. Must be called with
// e.mu held.
func (m *Manager) savePreferences(ctx context.Context, e *entry) {
	if m.store == nil || e.deleted {
		return
	}
	id, p := e.sess.ID, e.prefs
	read, _ := json.Marshal(p.ReadChapters)
	for key, value := range map[string]string{
		storage.PrefTranslation:  string(p.Translation),
		storage.PrefReadChapters: string(read),
		prefHover:                strconv.FormatBool(p.Hover),
	} {
		if err := m.store.SetPreference(ctx, id, key, value); err != nil {
			logging.StorageError(ctx, "save_preference", id+"/"+key, err)
		}
	}
}

func (m *Manager) notify(id string, v View) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(id, v)
	}
}

// decodePreferences parses stored preference rows. Unreadable values are
// logged and fall back to their defaults.
func decodePreferences(ctx context.Context, id string, raw map[string]string, fallback scripture.Translation) Preferences {
	p := Preferences{Translation: fallback}
	if t, err := scripture.ParseTranslation(raw[storage.PrefTranslation]); err == nil && raw[storage.PrefTranslation] != "" {
		p.Translation = t
	}
	if v := raw[storage.PrefReadChapters]; v != "" {
		if err := json.Unmarshal([]byte(v), &p.ReadChapters); err != nil {
			logging.StorageError(ctx, "decode_preferences", id+"/"+storage.PrefReadChapters, err)
			p.ReadChapters = nil
		}
	}
	p.Hover, _ = strconv.ParseBool(raw[prefHover])
	return p
}

// addChapter inserts n into the sorted set read.
func addChapter(read []int, n int) []int {
	i := sort.SearchInts(read, n)
	if i < len(read) && read[i] == n {
		return read
	}
	read = append(read, 0)
	copy(read[i+1:], read[i:])
	read[i] = n
	return read
}
