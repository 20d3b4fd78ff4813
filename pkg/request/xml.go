package request

import (
	"strings"

	"github.com/beevik/etree"
)

// XMLNode is a read-only element tree exposed to expressions as `xml`.
type XMLNode struct {
	Name      string            `expr:"name" json:"name"`
	Namespace string            `expr:"namespace" json:"namespace,omitempty"`
	Text      string            `expr:"text" json:"text,omitempty"`
	Attrs     map[string]string `expr:"attrs" json:"attrs,omitempty"`
	Children  []*XMLNode        `expr:"children" json:"children,omitempty"`
}

func newXMLNode(e *etree.Element) *XMLNode {
	if e == nil {
		return nil
	}
	n := &XMLNode{
		Name:      e.Tag,
		Namespace: e.NamespaceURI(),
		Text:      strings.TrimSpace(e.Text()),
		Attrs:     make(map[string]string, len(e.Attr)),
	}
	for _, a := range e.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		n.Attrs[a.Key] = a.Value
	}
	for _, c := range e.ChildElements() {
		n.Children = append(n.Children, newXMLNode(c))
	}
	return n
}

// Child returns the first child element with the given local name, or nil.
func (n *XMLNode) Child(name string) *XMLNode {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}
