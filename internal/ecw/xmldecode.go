package ecw

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

// Container children with these names are list items even when only one is present.
var xmlListItemNames = map[string]bool{
	"item":   true,
	"row":    true,
	"record": true,
	"entry":  true,
}

// decodeXML converts a portal XML document into nested maps. The root element
// is unwrapped. Attributes become "@name" keys and leaf elements become
// strings. Repeated siblings and plural containers become lists.
func decodeXML(s string) (any, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity

	var (
		root  *xmlNode
		stack []*xmlNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root != nil {
				return nil, errors.New("multiple root elements")
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	if len(stack) != 0 {
		return nil, errors.New("unclosed element " + stack[len(stack)-1].name)
	}

	if len(root.children) == 0 && len(root.attrs) == 0 {
		return map[string]any{root.name: strings.TrimSpace(root.text.String())}, nil
	}
	// The root is always a map keyed by child name, even when its children
	// would otherwise collapse into a list.
	return root.fields(), nil
}

func (n *xmlNode) value() any {
	if len(n.children) == 0 && len(n.attrs) == 0 {
		return strings.TrimSpace(n.text.String())
	}
	if len(n.attrs) == 0 && n.isListContainer() {
		list := make([]any, 0, len(n.children))
		for _, c := range n.children {
			list = append(list, c.value())
		}
		return list
	}
	return n.fields()
}

func (n *xmlNode) fields() map[string]any {
	m := make(map[string]any, len(n.children)+len(n.attrs))
	for _, a := range n.attrs {
		m["@"+a.Name.Local] = a.Value
	}
	if len(n.children) == 0 {
		if text := strings.TrimSpace(n.text.String()); text != "" {
			m["#text"] = text
		}
		return m
	}

	counts := map[string]int{}
	for _, c := range n.children {
		counts[c.name]++
	}
	for _, c := range n.children {
		if counts[c.name] > 1 {
			list, _ := m[c.name].([]any)
			m[c.name] = append(list, c.value())
			continue
		}
		m[c.name] = c.value()
	}
	return m
}

func (n *xmlNode) isListContainer() bool {
	if len(n.children) == 0 {
		return false
	}
	first := n.children[0].name
	for _, c := range n.children[1:] {
		if c.name != first {
			return false
		}
	}
	if len(n.children) > 1 {
		return true
	}
	return xmlListItemNames[strings.ToLower(first)] || isPluralOf(n.name, first)
}

func isPluralOf(container, item string) bool {
	c, i := strings.ToLower(container), strings.ToLower(item)
	if c == i+"s" || c == i+"es" {
		return true
	}
	return strings.HasSuffix(i, "y") && c == strings.TrimSuffix(i, "y")+"ies"
}
