// Package markup converts chapter markup returned by scripture APIs into the
// plain text consumed by the tokenizer.
//
// API.Bible returns each poetic line of a Psalm as a <p> element and marks
// stanza breaks with empty <p class="b"> elements. Lines become single line
// breaks and stanza breaks become blank lines, which the tokenizer later
// folds into spaces and paragraph breaks respectively.
//
// Parsing goes through xmlquery, which uses encoding/xml underneath and never
// resolves external entities.
package markup

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

var (
	paragraphExpr = xpath.MustCompile("//p")
	// verseNumberClasses are span classes carrying verse numbers or notes.
	verseNumberClasses = map[string]bool{"v": true, "f": true, "x": true}
)

// htmlEntities maps HTML-only entities to characters encoding/xml accepts.
var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&mdash;", "—",
	"&ndash;", "–",
	"&lsquo;", "‘",
	"&rsquo;", "’",
	"&ldquo;", "“",
	"&rdquo;", "”",
	"<br>", "<br/>",
)

// Parse parses an HTML chapter fragment.
func Parse(fragment string) (*xmlquery.Node, error) {
	wrapped := "<passage>" + htmlEntities.Replace(fragment) + "</passage>"
	doc, err := xmlquery.Parse(strings.NewReader(wrapped))
	if err != nil {
		return nil, fmt.Errorf("parsing chapter markup: %w", err)
	}
	return doc, nil
}

// ExtractText returns the readable text of an HTML chapter fragment.
// Verse numbers and footnote markers are dropped.
func ExtractText(fragment string) (string, error) {
	doc, err := Parse(fragment)
	if err != nil {
		return "", err
	}

	paragraphs := xmlquery.QuerySelectorAll(doc, paragraphExpr)
	if len(paragraphs) == 0 {
		return collapse(readable(doc)), nil
	}

	var lines []string
	for _, p := range paragraphs {
		line := collapse(readable(p))
		if line == "" {
			// Stanza break. Avoid stacking several blank lines.
			if len(lines) > 0 && lines[len(lines)-1] != "" {
				lines = append(lines, "")
			}
			continue
		}
		lines = append(lines, line)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n"), nil
}

// readable concatenates text beneath n, skipping verse-number spans.
func readable(n *xmlquery.Node) string {
	var sb strings.Builder
	var walk func(*xmlquery.Node)
	walk = func(node *xmlquery.Node) {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.TextNode, xmlquery.CharDataNode:
				sb.WriteString(child.Data)
			case xmlquery.ElementNode:
				if verseNumberClasses[child.SelectAttr("class")] {
					continue
				}
				if child.Data == "br" {
					sb.WriteString(" ")
					continue
				}
				walk(child)
			}
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
