package highlight

import (
	"sort"
	"strings"
)

// Phrase is one entry of the reflection view: a group of highlighted tokens
// in reading order and their words joined by single spaces.
type Phrase struct {
	Tokens []HighlightedToken `json:"tokens"`
	Text   string             `json:"text"`
}

// Start returns the index of the phrase's first token.
func (p Phrase) Start() int {
	if len(p.Tokens) == 0 {
		return 0
	}
	return p.Tokens[0].Index
}

// Assemble groups highlights into phrases. Tokens sharing a group id form one
// phrase; ungrouped tokens each form their own. Phrases are ordered by the
// index of their first token so the reflection follows the passage, not the
// order in which highlights were made. The input is not modified.
func Assemble(tokens []HighlightedToken) []Phrase {
	groups := make(map[int][]HighlightedToken)
	var phrases []Phrase

	for _, tok := range tokens {
		if !tok.Grouped() {
			phrases = append(phrases, newPhrase([]HighlightedToken{tok}))
			continue
		}
		groups[tok.GroupID] = append(groups[tok.GroupID], tok)
	}

	for _, members := range groups {
		sorted := append([]HighlightedToken(nil), members...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
		phrases = append(phrases, newPhrase(sorted))
	}

	sort.SliceStable(phrases, func(i, j int) bool { return phrases[i].Start() < phrases[j].Start() })
	return phrases
}

func newPhrase(tokens []HighlightedToken) Phrase {
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Word
	}
	return Phrase{Tokens: tokens, Text: strings.Join(words, " ")}
}
