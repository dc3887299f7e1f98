// Package dom defines the DOM query surface consumed by the matcher engine and
// provides an HTML fixture that implements it.
package dom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoRoot is returned when a query runs against a fixture with nothing mounted.
var ErrNoRoot = errors.New("no fixture mounted")

// Querier is the narrow DOM contract the matcher engine depends on.
type Querier interface {
	// QueryAll resolves target (a selector string, a node or a list of nodes)
	// to the list of matching elements.
	QueryAll(target any) ([]*html.Node, error)
	// QueryOne resolves target to exactly one element.
	QueryOne(target any) (*html.Node, error)
	// IsVisible reports whether the element would be rendered.
	IsVisible(el *html.Node) bool
}

// RootGetter returns the current fixture root.
type RootGetter func() *html.Node

// Attr returns the value of the named attribute.
func Attr(el *html.Node, name string) (string, bool) {
	if el == nil {
		return "", false
	}
	for _, a := range el.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// Classes returns the class list of an element.
func Classes(el *html.Node) []string {
	v, ok := Attr(el, "class")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// HasClass reports whether the element carries the given class.
func HasClass(el *html.Node, class string) bool {
	for _, c := range Classes(el) {
		if c == class {
			return true
		}
	}
	return false
}

// Text returns the concatenated text content of a node.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(Text(c))
	}
	return b.String()
}

// Describe renders a short, selector-like label for an element.
func Describe(el *html.Node) string {
	if el == nil {
		return "<nil>"
	}
	if el.Type != html.ElementNode {
		return fmt.Sprintf("#%s", nodeTypeName(el.Type))
	}
	var b strings.Builder
	b.WriteString(el.Data)
	if id, ok := Attr(el, "id"); ok && id != "" {
		b.WriteString("#" + id)
	}
	for _, c := range Classes(el) {
		b.WriteString("." + c)
	}
	return b.String()
}

func nodeTypeName(t html.NodeType) string {
	switch t {
	case html.TextNode:
		return "text"
	case html.DocumentNode:
		return "document"
	case html.CommentNode:
		return "comment"
	default:
		return "node"
	}
}
