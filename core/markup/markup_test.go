package markup

import "testing"

func TestExtractTextPoeticLines(t *testing.T) {
	fragment := `<p class="q1"><span data-number="1" class="v">1</span>The <span class="nd">LORD</span> is my shepherd;</p>` +
		`<p class="q2">I shall not want.</p>` +
		`<p class="b"></p>` +
		`<p class="q1"><span data-number="2" class="v">2</span>He makes me lie down&nbsp;in green pastures.</p>`

	got, err := ExtractText(fragment)
	if err != nil {
		t.Fatalf("ExtractText error: %v", err)
	}
	want := "The LORD is my shepherd;\nI shall not want.\n\nHe makes me lie down in green pastures."
	if got != want {
		t.Errorf("ExtractText =\n%q\nwant\n%q", got, want)
	}
}

func TestExtractTextCollapsesRepeatedBreaks(t *testing.T) {
	fragment := `<p class="b"/><p>One</p><p class="b"/><p class="b"/><p>Two</p><p class="b"/>`

	got, err := ExtractText(fragment)
	if err != nil {
		t.Fatalf("ExtractText error: %v", err)
	}
	if want := "One\n\nTwo"; got != want {
		t.Errorf("ExtractText = %q, want %q", got, want)
	}
}

func TestExtractTextWithoutParagraphs(t *testing.T) {
	got, err := ExtractText("  Praise   the LORD!  ")
	if err != nil {
		t.Fatalf("ExtractText error: %v", err)
	}
	if got != "Praise the LORD!" {
		t.Errorf("ExtractText = %q", got)
	}
}

func TestExtractTextLineBreakElement(t *testing.T) {
	got, err := ExtractText(`<p>Be still,<br>and know</p>`)
	if err != nil {
		t.Fatalf("ExtractText error: %v", err)
	}
	if got != "Be still, and know" {
		t.Errorf("ExtractText = %q", got)
	}
}
