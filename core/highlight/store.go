// Package highlight keeps the set of highlighted tokens for a reading session
// and derives the ordered phrase list shown in the reflection view.
//
// A Store is not safe for concurrent use; its owner serializes access.
package highlight

import "sort"

// HighlightedToken is a token the reader marked as meaningful. GroupID zero
// means the token is ungrouped and forms a phrase on its own.
type HighlightedToken struct {
	Word    string `json:"word"`
	Index   int    `json:"index"`
	GroupID int    `json:"group_id,omitempty"`
}

// Grouped reports whether the token belongs to a multi-token group.
func (h HighlightedToken) Grouped() bool {
	return h.GroupID > 0
}

// Store holds at most one HighlightedToken per index.
type Store struct {
	tokens map[int]HighlightedToken
}

// NewStore returns a store seeded with tokens. Later duplicates of an index
// are dropped.
func NewStore(tokens ...HighlightedToken) *Store {
	s := &Store{tokens: make(map[int]HighlightedToken, len(tokens))}
	for _, tok := range tokens {
		s.Add(tok.Word, tok.Index, tok.GroupID)
	}
	return s
}

// Add inserts a highlight. It returns false, leaving the store unchanged, if
// the index is negative or already highlighted. A groupID of zero or less
// adds the token ungrouped.
func (s *Store) Add(word string, index, groupID int) bool {
	if index < 0 {
		return false
	}
	if _, exists := s.tokens[index]; exists {
		return false
	}
	if groupID < 0 {
		groupID = 0
	}
	s.tokens[index] = HighlightedToken{Word: word, Index: index, GroupID: groupID}
	return true
}

// Remove deletes the highlight at index, reporting whether one existed.
func (s *Store) Remove(index int) bool {
	if _, exists := s.tokens[index]; !exists {
		return false
	}
	delete(s.tokens, index)
	return true
}

// Clear removes every highlight.
func (s *Store) Clear() {
	s.tokens = make(map[int]HighlightedToken)
}

// Has reports whether index is highlighted.
func (s *Store) Has(index int) bool {
	_, ok := s.tokens[index]
	return ok
}

// Get returns the highlight at index.
func (s *Store) Get(index int) (HighlightedToken, bool) {
	tok, ok := s.tokens[index]
	return tok, ok
}

// Len returns the number of highlighted tokens.
func (s *Store) Len() int {
	return len(s.tokens)
}

// All returns a copy of the highlights ordered by index.
func (s *Store) All() []HighlightedToken {
	out := make([]HighlightedToken, 0, len(s.tokens))
	for _, tok := range s.tokens {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Indices returns the highlighted indices in ascending order.
func (s *Store) Indices() []int {
	out := make([]int, 0, len(s.tokens))
	for idx := range s.tokens {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Phrases assembles the current highlights into reading-order phrases.
func (s *Store) Phrases() []Phrase {
	return Assemble(s.All())
}

func (s *Store) setGroup(index, groupID int) {
	tok := s.tokens[index]
	tok.GroupID = groupID
	s.tokens[index] = tok
}
