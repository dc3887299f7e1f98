package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/callbacks"
)

// Suite groups child jobs and owns the hooks scoped to them.
type Suite struct {
	Job
	// Jobs holds the children in declaration order.
	Jobs []Node

	callbacks *callbacks.Registry
}

// NewSuite creates a suite below parent (nil for a root suite).
func NewSuite(parent *Suite, name string, tags []*Tag, lg log.Logger) *Suite {
	return &Suite{
		Job:       NewJob(parent, name, tags),
		callbacks: callbacks.New(lg),
	}
}

// Callbacks returns the suite-scoped hook registry.
func (s *Suite) Callbacks() *callbacks.Registry {
	return s.callbacks
}

// Add appends a child. Names are unique within a suite.
func (s *Suite) Add(n Node) error {
	name := n.Base().Name
	for _, existing := range s.Jobs {
		if existing.Base().Name == name {
			return fmt.Errorf("duplicate name %q in suite %q", name, s.FullName)
		}
	}
	s.Jobs = append(s.Jobs, n)
	return nil
}

// CanRun is false when the suite is skipped or any child cannot run.
func (s *Suite) CanRun() bool {
	if s.Config.Skip {
		return false
	}
	for _, child := range s.Jobs {
		if !child.CanRun() {
			return false
		}
	}
	return true
}

// Tests returns the tests below s, depth first.
func (s *Suite) Tests() []*Test {
	var tests []*Test
	for _, child := range s.Jobs {
		switch c := child.(type) {
		case *Test:
			tests = append(tests, c)
		case *Suite:
			tests = append(tests, c.Tests()...)
		}
	}
	return tests
}

// Reset clears the cursors of the suite and its descendants.
func (s *Suite) Reset() {
	s.Visited = 0
	for _, child := range s.Jobs {
		switch c := child.(type) {
		case *Suite:
			c.Reset()
		case *Test:
			c.Visited = 0
		}
	}
}
