package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var punctuationReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
	"‘", "'", "’", "'", "‛", "'", "´", "'",
	"–", "-", "—", "-", "‒", "-", "−", "-", "‐", "-",
	"\u00a0", " ", "\u2009", " ", "\u200b", "", "\ufeff", "",
	"\r\n", "\n", "\r", "\n",
)

var (
	tabRun        = regexp.MustCompile(`[ \t]*\t[ \t]*`)
	spaceRun      = regexp.MustCompile(` {2,}`)
	spaceColon    = regexp.MustCompile(` +:`)
	colonNoSpace  = regexp.MustCompile(`:([^\s\d/\\])`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalize prepares text for pattern matching. Quotes and dashes are
// unified, horizontal whitespace collapses (runs containing a tab become one
// tab so table cells survive), colon spacing is unified and each line is
// trimmed. Every extractor must see text produced by this function.
func Normalize(text string) string {
	text = punctuationReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = tabRun.ReplaceAllString(line, "\t")
		line = spaceRun.ReplaceAllString(line, " ")
		line = spaceColon.ReplaceAllString(line, ":")
		line = colonNoSpace.ReplaceAllString(line, ": $1")
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// LooksLikeHTML reports whether text is markup rather than plain text
func LooksLikeHTML(text string) bool {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "<") {
		return false
	}
	lower := strings.ToLower(t[:min(len(t), 512)])
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype") ||
		strings.Contains(lower, "<div") || strings.Contains(lower, "<p") ||
		strings.Contains(lower, "<table") || strings.Contains(lower, "<ul")
}

// HTMLToText extracts visible text, skipping scripts and styles. Block
// elements end a line and table cells are separated by tabs, so line-based
// extractors still see the document's structure.
func HTMLToText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	newline := func() {
		s := buf.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			buf.WriteString("\n")
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head", "template":
				return
			case "br":
				buf.WriteString("\n")
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				s := buf.String()
				if len(s) > 0 && !strings.HasSuffix(s, "\n") && !strings.HasSuffix(s, "\t") && !strings.HasSuffix(s, " ") {
					buf.WriteString(" ")
				}
				buf.WriteString(text)
			}
		}

		block := n.Type == html.ElementNode && isBlock(n.Data)
		if block {
			newline()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			newline()
		}
		if n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th") && n.NextSibling != nil {
			buf.WriteString("\t")
		}
	}

	walk(doc)
	return buf.String(), nil
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "tr", "ul", "ol", "table", "thead", "tbody",
		"h1", "h2", "h3", "h4", "h5", "h6", "section", "article",
		"header", "footer", "blockquote", "pre", "dl", "dt", "dd", "hr":
		return true
	}
	return false
}
