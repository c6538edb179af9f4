package reference

import (
	"testing"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Ref
	}{
		{"Psalm 23", Ref{Chapter: 23}},
		{"Psalms 119", Ref{Chapter: 119}},
		{"ps 1", Ref{Chapter: 1}},
		{"Psalm 23:4", Ref{Chapter: 23, VerseStart: 4}},
		{"Psalm 23:1-6", Ref{Chapter: 23, VerseStart: 1, VerseEnd: 6}},
		{"  Psalm   46 : 10  ", Ref{Chapter: 46, VerseStart: 10}},
		{"PSA.150", Ref{Chapter: 150}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"",
		"Psalm",
		"Psalm 0",
		"Psalm 151",
		"Genesis 1",
		"Psalm 23:6-1",
		"23",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", input)
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Parse(%q) error %v is not ErrInvalidInput", input, err)
			}
		})
	}
}

func TestRefString(t *testing.T) {
	tests := []struct {
		ref  Ref
		want string
	}{
		{Ref{Chapter: 23}, "Psalm 23"},
		{Ref{Chapter: 23, VerseStart: 4}, "Psalm 23:4"},
		{Ref{Chapter: 23, VerseStart: 1, VerseEnd: 6}, "Psalm 23:1-6"},
		{WholeChapter(117, 2), "Psalm 117:1-2"},
		{WholeChapter(117, 0), "Psalm 117"},
	}

	for _, tt := range tests {
		if got := tt.ref.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestChapterID(t *testing.T) {
	if got := (Ref{Chapter: 23}).ChapterID(); got != "PSA.23" {
		t.Errorf("ChapterID() = %q, want PSA.23", got)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Psalm 23:1-6", "Psalm 23"},
		{"Psalm 23", "Psalm 23"},
		{"Psalm 40 (unavailable - showing Psalm 23)", "Psalm 40 (unavailable - showing Psalm 23)"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Display(tt.input); got != tt.want {
			t.Errorf("Display(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateChapter(t *testing.T) {
	for _, n := range []int{1, 75, 150} {
		if err := ValidateChapter(n); err != nil {
			t.Errorf("ValidateChapter(%d) = %v", n, err)
		}
	}
	for _, n := range []int{-1, 0, 151} {
		if err := ValidateChapter(n); err == nil {
			t.Errorf("ValidateChapter(%d) expected error", n)
		}
	}
}
