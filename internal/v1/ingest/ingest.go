// Package ingest turns web pages into race passages: paragraph extraction,
// ASCII sanitization, and packing into typing-sized chunks.
package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

const (
	// minParagraphLen filters out navigation crumbs and caption fragments.
	minParagraphLen = 80
	// Passages are packed into this length band, splitting on sentence
	// boundaries.
	minPassageLen = 120
	maxPassageLen = 420
)

// ExtractPassages parses an HTML document and returns packed passages from
// its paragraph text.
func ExtractPassages(doc string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}

	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			text := normalizeSpace(collectText(n))
			if len(text) > minParagraphLen {
				paragraphs = append(paragraphs, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return Pack(paragraphs), nil
}

func collectText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(collectText(c))
	}
	return b.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var asciiReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
	"…", "...",
	"\u00a0", " ",
)

// Sanitize maps text onto the ASCII subset the race engine validates
// byte-wise: typographic punctuation is downgraded, everything else
// non-ASCII is dropped.
func Sanitize(s string) string {
	s = asciiReplacer.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return normalizeSpace(b.String())
}

// Pack sanitizes paragraphs, splits them on sentence boundaries, and re-packs
// the sentences into passages within the [minPassageLen, maxPassageLen] band.
// Fragments too short to stand alone are discarded.
func Pack(paragraphs []string) []string {
	var out []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() >= minPassageLen {
			out = append(out, ensureTerminal(cur.String()))
		}
		cur.Reset()
	}

	for _, para := range paragraphs {
		for _, sent := range splitSentences(Sanitize(para)) {
			if len(sent) > maxPassageLen {
				continue
			}
			if cur.Len() > 0 && cur.Len()+1+len(sent) > maxPassageLen {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(sent)
		}
		flush()
	}
	return out
}

// splitSentences breaks on terminal punctuation followed by a space. Good
// enough for prose; abbreviation-heavy text just yields shorter chunks.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s)-1; i++ {
		if isTerminal(s[i]) && s[i+1] == ' ' {
			if sent := strings.TrimSpace(s[start : i+1]); sent != "" {
				out = append(out, sent)
			}
			start = i + 1
		}
	}
	if sent := strings.TrimSpace(s[start:]); sent != "" {
		out = append(out, sent)
	}
	return out
}

func isTerminal(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func ensureTerminal(s string) string {
	if len(s) == 0 || isTerminal(s[len(s)-1]) {
		return s
	}
	return s + "."
}
