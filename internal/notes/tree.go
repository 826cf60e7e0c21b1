package notes

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyDocument is returned when a part contains no root element.
var ErrEmptyDocument = errors.New("notes: document has no root element")

// Node is one element of a parsed XML part.
// Name carries the prefix as written in the source ("a:t"), so callers can
// match on the familiar DrawingML names without resolving namespaces.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node
	// Text is the character data directly inside this element.
	Text string
}

// Parse reads an XML document into a labeled tree.
// Unknown elements are kept as-is; only well-formedness is required.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var (
		root  *Node
		stack []*Node
	)

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("notes: parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: qualified(t.Name)}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[qualified(a.Name)] = a.Value
				}
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("notes: parse xml: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1].Name != qualified(t.Name) {
				return nil, fmt.Errorf("notes: parse xml: unexpected end element %s", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("notes: parse xml: unclosed element %s", stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

// Fold visits the tree depth-first in document order, threading acc through fn.
func (n *Node) Fold(acc []string, fn func(acc []string, n *Node) []string) []string {
	if n == nil {
		return acc
	}
	acc = fn(acc, n)
	for _, c := range n.Children {
		acc = c.Fold(acc, fn)
	}
	return acc
}

// Text returns every non-blank run of character data in the tree, in
// document order, joined with newlines and trimmed.
func (n *Node) Text() string {
	parts := n.Fold(nil, func(acc []string, n *Node) []string {
		if strings.TrimSpace(n.Text) == "" {
			return acc
		}
		return append(acc, n.Text)
	})
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
