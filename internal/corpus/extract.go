package corpus

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Extracted holds the text pulled out of one HTML document: the full plain
// text plus the three important-text tiers that feed the importance score.
type Extracted struct {
	Text    string // all visible text
	Bold    string // text inside <b>/<strong> (tier 1)
	Heading string // text inside <h1>/<h2>/<h3> (tier 2)
	Title   string // text inside <title> (tier 3)
}

// Extract parses HTML content and collects the plain text and tagged tiers.
// The parser is tolerant of broken markup; only a hard parse failure is an
// error.
func Extract(content string) (Extracted, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return Extracted{}, fmt.Errorf("parsing html: %w", err)
	}
	var out Extracted
	var text, bold, heading, title strings.Builder
	collect(root, collectState{}, &text, &bold, &heading, &title)
	out.Text = text.String()
	out.Bold = bold.String()
	out.Heading = heading.String()
	out.Title = title.String()
	return out, nil
}

type collectState struct {
	inBold    bool
	inHeading bool
	inTitle   bool
	skip      bool
}

func collect(n *html.Node, state collectState, text, bold, heading, title *strings.Builder) {
	switch n.Type {
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript":
			state.skip = true
		case "b", "strong":
			state.inBold = true
		case "h1", "h2", "h3":
			state.inHeading = true
		case "title":
			state.inTitle = true
		}
	case html.TextNode:
		if state.skip {
			return
		}
		data := n.Data
		if strings.TrimSpace(data) == "" {
			return
		}
		text.WriteString(data)
		text.WriteByte(' ')
		if state.inBold {
			bold.WriteString(data)
			bold.WriteByte(' ')
		}
		if state.inHeading {
			heading.WriteString(data)
			heading.WriteByte(' ')
		}
		if state.inTitle {
			title.WriteString(data)
			title.WriteByte(' ')
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collect(child, state, text, bold, heading, title)
	}
}
