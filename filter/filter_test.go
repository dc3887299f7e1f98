package filter

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

type treeBuilder struct {
	t    *testing.T
	tags *types.TagRegistry
}

func newTreeBuilder(t *testing.T) *treeBuilder {
	return &treeBuilder{t: t, tags: types.NewTagRegistry()}
}

func (b *treeBuilder) suite(parent *types.Suite, name string, tags ...string) *types.Suite {
	b.t.Helper()
	resolved, err := b.tags.InternAll(tags...)
	require.NoError(b.t, err)
	s := types.NewSuite(parent, name, resolved, log.New())
	if parent != nil {
		require.NoError(b.t, parent.Add(s))
	}
	return s
}

func (b *treeBuilder) test(parent *types.Suite, name string, tags ...string) *types.Test {
	b.t.Helper()
	resolved, err := b.tags.InternAll(tags...)
	require.NoError(b.t, err)
	tt := types.NewTest(parent, name, func(context.Context, *expect.T) error { return nil }, resolved)
	require.NoError(b.t, parent.Add(tt))
	return tt
}

func planNames(plan *Plan) []string {
	var names []string
	for _, tt := range plan.Tests() {
		names = append(names, tt.FullName)
	}
	return names
}

func resolve(t *testing.T, params Params, roots ...types.Node) *Plan {
	t.Helper()
	r, err := NewResolver(params, Options{Log: log.New()})
	require.NoError(t, err)
	return r.Resolve(roots)
}

func TestNoFilterKeepsEverything(t *testing.T) {
	b := newTreeBuilder(t)
	math := b.suite(nil, "math")
	b.test(math, "addition")
	b.test(math, "skipped", types.TagSkip)
	b.suite(math, "empty")

	plan := resolve(t, Params{}, math)
	// Skip-tagged tests stay in the plan, the scheduler reports them as skipped.
	assert.Equal(t, []string{"math > addition", "math > skipped"}, planNames(plan))
	// Empty suites are pruned.
	assert.Len(t, plan.Children(math), 2)
}

func TestOnlyTestID(t *testing.T) {
	b := newTreeBuilder(t)
	suite := b.suite(nil, "suite")
	b.test(suite, "a")
	target := b.test(suite, "b")
	b.test(suite, "c")
	other := b.suite(nil, "other")
	b.test(other, "d")

	plan := resolve(t, Params{Tests: Inclusion{Only: []string{target.ID}}}, suite, other)
	assert.Equal(t, []string{"suite > b"}, planNames(plan))
	assert.Equal(t, []types.Node{suite}, plan.Roots)
	assert.False(t, plan.Includes(other))
}

func TestOnlySuiteKeepsFullChildren(t *testing.T) {
	b := newTreeBuilder(t)
	suite := b.suite(nil, "suite")
	b.test(suite, "a", "slow")
	b.test(suite, "b")

	plan := resolve(t, Params{
		Suites: Inclusion{Only: []string{suite.ID}},
		Tags:   Inclusion{Skip: []string{"slow"}},
	}, suite)
	assert.Equal(t, []string{"suite > a", "suite > b"}, planNames(plan))
}

func TestDefaultFlip(t *testing.T) {
	b := newTreeBuilder(t)
	ui := b.suite(nil, "ui")
	b.test(ui, "button", "dom")
	b.test(ui, "input")
	core := b.suite(nil, "core")
	b.test(core, "parse")

	all := resolve(t, Params{}, ui, core)
	assert.Len(t, all.Tests(), 3)

	// An only constraint on the tag axis flips the default on every axis.
	tagged := resolve(t, Params{Tags: Inclusion{Only: []string{"dom"}}}, ui, core)
	assert.Equal(t, []string{"ui > button"}, planNames(tagged))

	// Skip constraints alone do not.
	skipped := resolve(t, Params{Tags: Inclusion{Skip: []string{"dom"}}}, ui, core)
	assert.Equal(t, []string{"ui > input", "core > parse"}, planNames(skipped))
}

func TestPriorityOrder(t *testing.T) {
	b := newTreeBuilder(t)
	suite := b.suite(nil, "suite", "area")
	both := b.test(suite, "both", "dom", "slow")
	plain := b.test(suite, "plain")

	tests := []struct {
		name   string
		params Params
		want   []string
	}{
		{
			name:   "only id beats skip id",
			params: Params{Tests: Inclusion{Only: []string{both.ID}, Skip: []string{both.ID}}},
			want:   []string{"suite > both"},
		},
		{
			name:   "skip id beats only tag",
			params: Params{Tests: Inclusion{Skip: []string{both.ID}}, Tags: Inclusion{Only: []string{"dom"}}},
			want:   nil,
		},
		{
			name:   "skip tag beats only tag",
			params: Params{Tags: Inclusion{Only: []string{"dom"}, Skip: []string{"slow"}}},
			want:   nil,
		},
		{
			name:   "only id and only tag",
			params: Params{Tests: Inclusion{Only: []string{plain.ID}}, Tags: Inclusion{Only: []string{"dom"}}},
			want:   []string{"suite > both", "suite > plain"},
		},
		{
			name:   "skipped suite beats only tag of a child",
			params: Params{Suites: Inclusion{Skip: []string{suite.ID}}, Tags: Inclusion{Only: []string{"dom"}}},
			want:   nil,
		},
		{
			name:   "skipped suite beats text match of a child",
			params: Params{Suites: Inclusion{Skip: []string{suite.ID}}, Text: "both"},
			want:   nil,
		},
		{
			name:   "skip tag on a suite beats only tag of a child",
			params: Params{Tags: Inclusion{Only: []string{"dom"}, Skip: []string{"area"}}},
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, planNames(resolve(t, tt.params, suite)))
		})
	}
}

func TestIncludedSuiteIsInherited(t *testing.T) {
	b := newTreeBuilder(t)
	suite := b.suite(nil, "suite", "dom")
	inner := b.suite(suite, "inner")
	b.test(inner, "deep")
	b.test(suite, "excluded", "slow")
	other := b.suite(nil, "other")
	b.test(other, "x")

	plan := resolve(t, Params{Tags: Inclusion{Only: []string{"dom"}, Skip: []string{"slow"}}}, suite, other)
	assert.Equal(t, []string{"suite > inner > deep"}, planNames(plan))
}

func TestJobLevelOnly(t *testing.T) {
	b := newTreeBuilder(t)
	suite := b.suite(nil, "suite")
	b.test(suite, "a")
	b.test(suite, "focused", types.TagOnly)
	other := b.suite(nil, "other")
	b.test(other, "b")

	plan := resolve(t, Params{}, suite, other)
	assert.Equal(t, []string{"suite > focused"}, planNames(plan))

	debug := b.suite(nil, "debugged", types.TagDebug)
	b.test(debug, "one")
	b.test(debug, "two", types.TagSkip)
	plan = resolve(t, Params{}, debug, other)
	assert.Equal(t, []string{"debugged > one", "debugged > two"}, planNames(plan))
}

func TestTextFilter(t *testing.T) {
	b := newTreeBuilder(t)
	math := b.suite(nil, "Mathématiques")
	b.test(math, "addition")
	b.test(math, "subtraction")
	text := b.suite(nil, "strings")
	b.test(text, "concat")

	tests := []struct {
		text string
		want []string
	}{
		{"add", []string{"Mathématiques > addition"}},
		{"mathematiques sub", []string{"Mathématiques > subtraction"}},
		{"/^strings/", []string{"strings > concat"}},
		{"/ADDITION$/i", []string{"Mathématiques > addition"}},
		{"/ADDITION$/", nil},
		{"mat", []string{"Mathématiques > addition", "Mathématiques > subtraction"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, planNames(resolve(t, Params{Text: tt.text}, math, text)))
		})
	}
}

func TestInvalidTextFilter(t *testing.T) {
	_, err := NewResolver(Params{Text: "/[/"}, Options{})
	require.Error(t, err)
	_, err = NewResolver(Params{Text: "/abc/x"}, Options{})
	require.Error(t, err)
}

func TestRandomOrder(t *testing.T) {
	b := newTreeBuilder(t)
	suite := b.suite(nil, "suite")
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		b.test(suite, name)
	}

	seed := uint64(42)
	first, err := NewResolver(Params{}, Options{Random: true, Seed: &seed})
	require.NoError(t, err)
	second, err := NewResolver(Params{}, Options{Random: true, Seed: &seed})
	require.NoError(t, err)

	a := planNames(first.Resolve([]types.Node{suite}))
	assert.Equal(t, a, planNames(second.Resolve([]types.Node{suite})))
	assert.ElementsMatch(t, planNames(resolve(t, Params{}, suite)), a)

	// The declared order is untouched.
	assert.Equal(t, "a", suite.Jobs[0].Base().Name)

	// Every element reaches the first slot across shuffles.
	seen := map[string]bool{}
	r, err := NewResolver(Params{}, Options{Random: true})
	require.NoError(t, err)
	for range 500 {
		seen[r.Resolve([]types.Node{suite}).Tests()[0].Name] = true
	}
	assert.Len(t, seen, 8)
}

func TestParamsHelpers(t *testing.T) {
	assert.False(t, Params{}.HasFilter())
	assert.False(t, Params{}.HasOnly())
	assert.True(t, Params{Text: "x"}.HasFilter())
	assert.False(t, Params{Text: "x"}.HasOnly())
	assert.True(t, Params{Tags: Inclusion{Only: []string{"a"}}}.HasOnly())
	assert.True(t, Params{Suites: Inclusion{Skip: []string{"a"}}}.HasFilter())
}
