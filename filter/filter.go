// Package filter decides which jobs of a tree take part in a run.
package filter

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Inclusion holds the "only" and "skip" sets of one axis.
type Inclusion struct {
	Only []string `yaml:"only,omitempty" toml:"only,omitempty" json:"only,omitempty"`
	Skip []string `yaml:"skip,omitempty" toml:"skip,omitempty" json:"skip,omitempty"`
}

// Empty reports whether neither set holds anything.
func (i Inclusion) Empty() bool {
	return len(i.Only) == 0 && len(i.Skip) == 0
}

// Params are the filters of a run. Suites and Tests hold job ids, Tags hold
// tag names.
type Params struct {
	Suites Inclusion `yaml:"suites" toml:"suites" json:"suites"`
	Tests  Inclusion `yaml:"tests" toml:"tests" json:"tests"`
	Tags   Inclusion `yaml:"tags" toml:"tags" json:"tags"`
	Text   string    `yaml:"text,omitempty" toml:"text,omitempty" json:"text,omitempty"`
}

// HasOnly reports whether any axis holds an "only" constraint.
func (p Params) HasOnly() bool {
	return len(p.Suites.Only) > 0 || len(p.Tests.Only) > 0 || len(p.Tags.Only) > 0
}

// HasFilter reports whether any filter is set.
func (p Params) HasFilter() bool {
	return !p.Suites.Empty() || !p.Tests.Empty() || !p.Tags.Empty() || p.Text != ""
}

// Options tune resolution.
type Options struct {
	// Random shuffles every level of the plan.
	Random bool
	// Seed makes the shuffle reproducible when non-nil.
	Seed *uint64
	Log  log.Logger
}

type decision int

const (
	undecided decision = iota
	include
	exclude
)

func (d decision) String() string {
	switch d {
	case include:
		return "include"
	case exclude:
		return "exclude"
	}
	return "undecided"
}

type set map[string]struct{}

func newSet(values []string) set {
	s := make(set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s set) any(values []string) bool {
	for _, v := range values {
		if s.has(v) {
			return true
		}
	}
	return false
}

// Resolver applies Params to job trees.
type Resolver struct {
	params Params
	opts   Options
	log    log.Logger

	onlySuites, skipSuites set
	onlyTests, skipTests   set
	onlyTags, skipTags     set
	text                   *textMatcher
	rng                    *rand.Rand
}

// NewResolver validates the params. An invalid text pattern is an error.
func NewResolver(params Params, opts Options) (*Resolver, error) {
	lg := opts.Log
	if lg == nil {
		lg = log.New()
	}
	r := &Resolver{
		params:     params,
		opts:       opts,
		log:        lg,
		onlySuites: newSet(params.Suites.Only),
		skipSuites: newSet(params.Suites.Skip),
		onlyTests:  newSet(params.Tests.Only),
		skipTests:  newSet(params.Tests.Skip),
		onlyTags:   newSet(params.Tags.Only),
		skipTags:   newSet(params.Tags.Skip),
	}
	if params.Text != "" {
		tm, err := newTextMatcher(params.Text)
		if err != nil {
			return nil, fmt.Errorf("invalid text filter: %w", err)
		}
		r.text = tm
	}
	if opts.Random {
		if opts.Seed != nil {
			r.rng = rand.New(rand.NewPCG(*opts.Seed, *opts.Seed))
		} else {
			r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	return r, nil
}

// Plan is the pruned, possibly shuffled tree of a run.
type Plan struct {
	Roots []types.Node

	children map[*types.Suite][]types.Node
	included map[types.Node]bool
}

// Children returns the planned children of s.
func (p *Plan) Children(s *types.Suite) []types.Node {
	return p.children[s]
}

// Includes reports whether n takes part in the run.
func (p *Plan) Includes(n types.Node) bool {
	return p.included[n]
}

// Tests returns the planned tests in walk order.
func (p *Plan) Tests() []*types.Test {
	var tests []*types.Test
	var walk func(nodes []types.Node)
	walk = func(nodes []types.Node) {
		for _, n := range nodes {
			switch v := n.(type) {
			case *types.Test:
				tests = append(tests, v)
			case *types.Suite:
				walk(p.children[v])
			}
		}
	}
	walk(p.Roots)
	return tests
}

// Resolve filters roots. The input tree is not modified.
func (r *Resolver) Resolve(roots []types.Node) *Plan {
	plan := &Plan{
		children: make(map[*types.Suite][]types.Node),
		included: make(map[types.Node]bool),
	}
	hasOnly := r.params.HasOnly() || anyJobOnly(roots)
	plan.Roots = r.resolveLevel(plan, roots, undecided, hasOnly)
	r.log.Debug("Resolved run plan", "roots", len(plan.Roots), "tests", len(plan.Tests()), "hasOnly", hasOnly)
	return plan
}

func (r *Resolver) resolveLevel(plan *Plan, nodes []types.Node, inherited decision, hasOnly bool) []types.Node {
	var kept []types.Node
	for _, n := range nodes {
		if r.resolveNode(plan, n, inherited, hasOnly) {
			kept = append(kept, n)
		}
	}
	r.shuffle(kept)
	return kept
}

func (r *Resolver) resolveNode(plan *Plan, n types.Node, inherited decision, hasOnly bool) bool {
	job := n.Base()
	d, explicitOnly := r.decide(n)
	if d == undecided {
		d = inherited
	}

	switch v := n.(type) {
	case *types.Suite:
		if explicitOnly {
			r.keepAll(plan, v)
			return true
		}
		// An excluded suite takes its whole subtree with it, whatever its
		// descendants match.
		if d == exclude {
			r.log.Trace("Filtered out suite", "suite", job.FullName)
			return false
		}
		children := r.resolveLevel(plan, v.Jobs, d, hasOnly)
		if len(children) == 0 {
			return false
		}
		plan.children[v] = children
		plan.included[n] = true
		return true
	default:
		keep := d == include || (d == undecided && !hasOnly)
		if keep {
			plan.included[n] = true
		} else {
			r.log.Trace("Filtered out test", "test", job.FullName, "decision", d)
		}
		return keep
	}
}

// keepAll plans s with its full, unfiltered subtree.
func (r *Resolver) keepAll(plan *Plan, s *types.Suite) {
	plan.included[s] = true
	children := slices.Clone(s.Jobs)
	for _, child := range children {
		if inner, ok := child.(*types.Suite); ok {
			r.keepAll(plan, inner)
		} else {
			plan.included[child] = true
		}
	}
	r.shuffle(children)
	plan.children[s] = children
}

// decide applies the priority steps to a single job. explicitOnly is set when
// the job was selected by id or by its own only/debug tag.
func (r *Resolver) decide(n types.Node) (decision, bool) {
	job := n.Base()
	only, skip := r.onlyTests, r.skipTests
	if _, ok := n.(*types.Suite); ok {
		only, skip = r.onlySuites, r.skipSuites
	}

	if only.has(job.ID) || job.Only {
		return include, true
	}
	if skip.has(job.ID) {
		return exclude, false
	}
	if r.skipTags.any(job.TagNames) {
		return exclude, false
	}
	if r.onlyTags.any(job.TagNames) {
		return include, false
	}
	if r.text != nil {
		if r.text.match(job.FullName) {
			return include, false
		}
		if _, ok := n.(*types.Test); ok {
			return exclude, false
		}
	}
	return undecided, false
}

func (r *Resolver) shuffle(nodes []types.Node) {
	if r.rng == nil {
		return
	}
	r.rng.Shuffle(len(nodes), func(i, j int) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	})
}

func anyJobOnly(nodes []types.Node) bool {
	for _, n := range nodes {
		if n.Base().Only {
			return true
		}
		if s, ok := n.(*types.Suite); ok && anyJobOnly(s.Jobs) {
			return true
		}
	}
	return false
}
