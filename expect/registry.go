package expect

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/dom"
)

// Context is what a matcher function sees about the expectation it serves.
type Context struct {
	Name   string
	Actual any
	Not    bool
	T      *T
}

// Querier returns the DOM querier configured on the registry, or nil.
func (c *Context) Querier() dom.Querier {
	if c.T == nil {
		return nil
	}
	return c.T.reg.Querier()
}

// Spec is what a matcher returns for a single invocation.
//
// Message receives the final pass state and may use the {not} and {actual}
// markers, which are replaced with the negation phrase and the formatted
// (transformed) actual value.
type Spec struct {
	Transform func(actual any) (any, error)
	Predicate func(actual any) bool
	Message   func(pass bool) string
	Details   func(actual any) []Detail
}

// MatcherFunc builds the Spec for one invocation.
type MatcherFunc func(mc *Context, args ...any) Spec

// Matcher is a named, pluggable assertion.
type Matcher struct {
	Name string
	Args []ArgSpec
	// Validate runs after the shape checks and may reject argument values.
	Validate     func(args []any) []error
	NonNegatable bool
	Fn           MatcherFunc
}

// Registry owns the set of matchers available to expectations built from it.
type Registry struct {
	mu       sync.RWMutex
	matchers map[string]*Matcher
	nextID   atomic.Uint64
	querier  dom.Querier
	log      log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithQuerier sets the DOM querier used by DOM matchers.
func WithQuerier(q dom.Querier) Option {
	return func(r *Registry) { r.querier = q }
}

// WithLogger sets the logger handed to test handles.
func WithLogger(l log.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates a registry holding the built-in matchers.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{matchers: make(map[string]*Matcher)}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = log.New()
	}
	for _, m := range builtinMatchers() {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a matcher. Names are unique per registry.
func (r *Registry) Register(m Matcher) error {
	if m.Name == "" {
		return fmt.Errorf("matcher name is required")
	}
	if m.Fn == nil {
		return fmt.Errorf("matcher %q has no function", m.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.matchers[m.Name]; exists {
		return fmt.Errorf("matcher %q is already registered", m.Name)
	}
	mc := m
	r.matchers[m.Name] = &mc
	return nil
}

// Lookup returns the matcher registered under name.
func (r *Registry) Lookup(name string) (*Matcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matchers[name]
	return m, ok
}

// Names returns the sorted matcher names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.matchers))
	for name := range r.matchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Querier returns the configured DOM querier.
func (r *Registry) Querier() dom.Querier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.querier
}

// SetQuerier replaces the DOM querier.
func (r *Registry) SetQuerier(q dom.Querier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.querier = q
}

// NewT creates the handle for one run of a test, with a fresh in-flight result.
func (r *Registry) NewT(ctx context.Context, name string, lg log.Logger) *T {
	if lg == nil {
		lg = r.log
	}
	t := &T{
		name:     name,
		reg:      r,
		log:      lg.New("test", name),
		result:   newResult(),
		expected: -1,
	}
	t.ctx = NewContext(ctx, t)
	return t
}

func (r *Registry) assertionID() uint64 {
	return r.nextID.Add(1)
}
