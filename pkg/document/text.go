package document

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// stripMarkup returns the visible text of s. LLM findings regularly come back
// with stray <b>, <br> or <p> tags; the document wants plain text.
// Strings without '<' are returned unchanged.
func stripMarkup(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), context)
	if err != nil {
		return s
	}

	var b strings.Builder
	for _, n := range nodes {
		collectText(n, &b)
	}
	return strings.TrimSpace(b.String())
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		case atom.Br:
			b.WriteString("\n")
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}

	if n.Type == html.ElementNode && isBlockElement(n.DataAtom) {
		b.WriteString("\n")
	}
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.H1, atom.H2, atom.H3,
		atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Tr, atom.Pre:
		return true
	}
	return false
}

// winAnsiReplacements maps common typographic runes outside Latin-1 onto
// characters the PDF core fonts can draw.
var winAnsiReplacements = map[rune]string{
	'‘': "'", '’': "'", '‚': "'", '′': "'",
	'“': "\"", '”': "\"", '„': "\"", '″': "\"",
	'–': "-", '—': "-", '−': "-", '‐': "-",
	'…': "...",
	'•': "*", '●': "*", '■': "*",
	'\u00a0': " ", '\u2009': " ", '\u200b': "",
	'→': "->", '←': "<-",
}

// toCoreFontText restricts s to what the standard 14 PDF fonts render:
// Latin-1 printable characters plus newline and tab.
func toCoreFontText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := winAnsiReplacements[r]; ok {
			b.WriteString(repl)
			continue
		}
		switch {
		case r == '\n':
			b.WriteRune(r)
		case r == '\t':
			b.WriteString("    ")
		case r == '\r':
		case unicode.IsControl(r):
		case r <= 0xFF:
			b.WriteRune(r)
		default:
			b.WriteRune('?')
		}
	}
	return b.String()
}

// plainText is stripMarkup followed by toCoreFontText.
func plainText(s string) string {
	return toCoreFontText(stripMarkup(s))
}

// wrapText breaks s into lines of at most width runes, preferring word
// boundaries. Existing newlines are kept; blank lines survive as "".
func wrapText(s string, width int) []string {
	if width < 1 {
		width = 1
	}

	var lines []string
	for _, paragraph := range strings.Split(s, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		var current []rune
		for _, word := range words {
			w := []rune(word)
			for len(w) > width {
				if len(current) > 0 {
					lines = append(lines, string(current))
					current = nil
				}
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}

			switch {
			case len(current) == 0:
				current = w
			case len(current)+1+len(w) <= width:
				current = append(current, ' ')
				current = append(current, w...)
			default:
				lines = append(lines, string(current))
				current = w
			}
		}
		if len(current) > 0 {
			lines = append(lines, string(current))
		}
	}
	return lines
}
