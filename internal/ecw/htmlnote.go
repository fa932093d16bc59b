package ecw

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element ids the progress-note viewer renders the note into, in priority order.
var noteContainerIDs = []string{"pnContent", "progressNoteContent", "progressNote"}

var errNoNoteContent = errors.New("no progress note content")

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true, atom.Td: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Section: true, atom.Pre: true,
}

var headingElements = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
}

type noteSection struct {
	heading string
	lines   []string
}

type noteExtractor struct {
	sections []noteSection
	line     strings.Builder
}

// decodeHTMLNote pulls the plain-text progress note out of the viewer page.
func decodeHTMLNote(s string) (any, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, err
	}

	container := findElementByID(doc, noteContainerIDs...)
	if container == nil {
		container = findElement(doc, atom.Body)
	}
	if container == nil {
		return nil, errNoNoteContent
	}

	x := &noteExtractor{}
	x.walk(container)
	x.flushLine()

	var (
		sections []any
		full     []string
	)
	for _, sec := range x.sections {
		if sec.heading == "" && len(sec.lines) == 0 {
			continue
		}
		if sec.heading != "" {
			full = append(full, sec.heading)
		}
		full = append(full, sec.lines...)
		sections = append(sections, map[string]any{
			"heading": sec.heading,
			"text":    strings.Join(sec.lines, "\n"),
		})
	}
	if len(full) == 0 {
		return nil, errNoNoteContent
	}

	title := ""
	if t := findElement(doc, atom.Title); t != nil {
		title = collapseSpace(textContent(t))
	}

	return map[string]any{
		"progress_notes": map[string]any{
			"title":    title,
			"text":     strings.Join(full, "\n"),
			"sections": sections,
		},
	}, nil
}

func (x *noteExtractor) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		x.line.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch {
		case n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Head:
			return
		case n.DataAtom == atom.Br:
			x.flushLine()
			return
		case headingElements[n.DataAtom]:
			x.flushLine()
			x.sections = append(x.sections, noteSection{heading: collapseSpace(textContent(n))})
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		x.flushLine()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		x.walk(c)
	}
	if block {
		x.flushLine()
	}
}

func (x *noteExtractor) flushLine() {
	line := collapseSpace(x.line.String())
	x.line.Reset()
	if line == "" {
		return
	}
	if len(x.sections) == 0 {
		x.sections = append(x.sections, noteSection{})
	}
	last := &x.sections[len(x.sections)-1]
	last.lines = append(last.lines, line)
}

func findElementByID(n *html.Node, ids ...string) *html.Node {
	for _, id := range ids {
		if found := findFirst(n, func(el *html.Node) bool { return attrValue(el, "id") == id }); found != nil {
			return found
		}
	}
	return nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	return findFirst(n, func(el *html.Node) bool { return el.DataAtom == a })
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
