package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var _ Querier = (*Fixture)(nil)

// Fixture is a mutable HTML root that tests mount markup into.
type Fixture struct {
	mu   sync.RWMutex
	root *html.Node
}

// NewFixture creates an empty fixture.
func NewFixture() *Fixture {
	f := &Fixture{}
	f.Reset()
	return f
}

// Mount parses markup and appends it to the fixture root.
func (f *Fixture) Mount(markup string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return fmt.Errorf("parsing fixture markup: %w", err)
	}
	for _, n := range nodes {
		f.root.AppendChild(n)
	}
	return nil
}

// Reset removes everything mounted in the fixture.
func (f *Fixture) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.root = &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "class", Val: "fixture"}},
	}
}

// Root returns the fixture root element.
func (f *Fixture) Root() *html.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.root
}

// QueryAll implements Querier.
func (f *Fixture) QueryAll(target any) ([]*html.Node, error) {
	switch t := target.(type) {
	case string:
		sel, err := cascadia.Compile(t)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", t, err)
		}
		root := f.Root()
		if root == nil {
			return nil, ErrNoRoot
		}
		return sel.MatchAll(root), nil
	case *html.Node:
		if t == nil {
			return nil, nil
		}
		return []*html.Node{t}, nil
	case []*html.Node:
		return t, nil
	case nil:
		return nil, fmt.Errorf("cannot query a nil target")
	default:
		return nil, fmt.Errorf("unsupported query target %T", target)
	}
}

// QueryOne implements Querier.
func (f *Fixture) QueryOne(target any) (*html.Node, error) {
	nodes, err := f.QueryAll(target)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("expected exactly one element matching %v, found %d", target, len(nodes))
	}
	return nodes[0], nil
}

// IsVisible implements Querier. An element is hidden when it or one of its
// ancestors carries the hidden attribute or an inline style hiding it.
func (f *Fixture) IsVisible(el *html.Node) bool {
	if el == nil {
		return false
	}
	for n := el; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, ok := Attr(n, "hidden"); ok {
			return false
		}
		if style, ok := Attr(n, "style"); ok && hidesElement(style) {
			return false
		}
	}
	return true
}

func hidesElement(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(val))
		switch {
		case prop == "display" && val == "none":
			return true
		case prop == "visibility" && val == "hidden":
			return true
		}
	}
	return false
}
