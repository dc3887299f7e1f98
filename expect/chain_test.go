package expect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestT(t *testing.T) *T {
	t.Helper()
	return NewRegistry().NewT(context.Background(), "suite > test", nil)
}

func requireUsagePanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		rec := recover()
		require.NotNil(t, rec, "expected a usage panic")
		err, ok := rec.(error)
		require.True(t, ok)
		require.True(t, IsUsageError(err), "got %v", err)
	}()
	fn()
}

func TestBuiltinMatchers(t *testing.T) {
	type point struct{ x, y int }
	boom := errors.New("boom")

	tests := []struct {
		name string
		run  func(c *Chain) bool
		val  any
		want bool
	}{
		{"toBe same int", func(c *Chain) bool { return c.ToBe(1) }, 1, true},
		{"toBe different types", func(c *Chain) bool { return c.ToBe(int64(1)) }, 1, false},
		{"toBe nil", func(c *Chain) bool { return c.ToBe(nil) }, nil, true},
		{"toBe slices are never strictly equal", func(c *Chain) bool { return c.ToBe([]int{1}) }, []int{1}, false},
		{"toEqual struct with unexported fields", func(c *Chain) bool { return c.ToEqual(point{1, 2}) }, point{1, 2}, true},
		{"toEqual maps", func(c *Chain) bool { return c.ToEqual(map[string]int{"a": 1}) }, map[string]int{"a": 2}, false},
		{"toBeTruthy string", func(c *Chain) bool { return c.ToBeTruthy() }, "x", true},
		{"toBeTruthy zero", func(c *Chain) bool { return c.ToBeTruthy() }, 0, false},
		{"toBeTruthy nil pointer", func(c *Chain) bool { return c.ToBeTruthy() }, (*int)(nil), false},
		{"toBeWithin inclusive", func(c *Chain) bool { return c.ToBeWithin(1, 3) }, 3, true},
		{"toBeWithin outside", func(c *Chain) bool { return c.ToBeWithin(1, 3) }, 3.5, false},
		{"toBeGreaterThan", func(c *Chain) bool { return c.ToBeGreaterThan(2) }, 3, true},
		{"toBeLessThan", func(c *Chain) bool { return c.ToBeLessThan(2) }, 3, false},
		{"toBeOfType string", func(c *Chain) bool { return c.ToBeOfType("string") }, "a", true},
		{"toBeOfType integer is a number", func(c *Chain) bool { return c.ToBeOfType("number") }, 4, true},
		{"toBeOfType error", func(c *Chain) bool { return c.ToBeOfType("error") }, boom, true},
		{"toMatch substring", func(c *Chain) bool { return c.ToMatch("ell") }, "hello", true},
		{"toMatch regexp", func(c *Chain) bool { return c.ToMatch(regexp.MustCompile(`^h.*o$`)) }, "hello", true},
		{"toMatch type", func(c *Chain) bool { return c.ToMatch(reflect.TypeOf(point{})) }, point{}, true},
		{"toMatch interface", func(c *Chain) bool { return c.ToMatch(reflect.TypeOf((*error)(nil)).Elem()) }, boom, true},
		{"toThrow any", func(c *Chain) bool { return c.ToThrow() }, func() error { return boom }, true},
		{"toThrow panic", func(c *Chain) bool { return c.ToThrow("kaput") }, func() { panic("kaput") }, true},
		{"toThrow sentinel", func(c *Chain) bool { return c.ToThrow(fs.ErrNotExist) }, func() error {
			return fmt.Errorf("open: %w", fs.ErrNotExist)
		}, true},
		{"toThrow nothing", func(c *Chain) bool { return c.ToThrow() }, func() error { return nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestT(t)
			got := tt.run(tc.Expect(tt.val))
			assert.Equal(t, tt.want, got)

			r := tc.Result()
			require.Len(t, r.Assertions, 1)
			assert.Equal(t, tt.want, r.Assertions[0].Pass)
			assert.Equal(t, tt.want, r.Pass)
		})
	}
}

func TestNegation(t *testing.T) {
	tc := newTestT(t)
	assert.True(t, tc.Expect(1).Not().ToBe(2))
	assert.False(t, tc.Expect(1).Not().ToBe(1))

	r := tc.Result()
	require.Len(t, r.Assertions, 2)
	assert.True(t, r.Assertions[0].Pass)
	assert.Equal(t, "received value is not strictly equal to 2", r.Assertions[0].Message)
	assert.False(t, r.Assertions[1].Pass)
	assert.Equal(t, "expected values to not be strictly equal", r.Assertions[1].Message)
	assert.False(t, r.Pass)
}

func TestFailedAssertionDetails(t *testing.T) {
	tc := newTestT(t)
	tc.Expect([]int{1, 2}).ToEqual([]int{1, 3})

	failed := tc.Result().Failed()
	require.Len(t, failed, 1)
	labels := make([]string, 0, len(failed[0].Info))
	for _, d := range failed[0].Info {
		labels = append(labels, d.Label)
	}
	assert.Equal(t, []string{"expected", "received", "diff", "stack"}, labels)
}

func TestModifierMisuse(t *testing.T) {
	tc := newTestT(t)

	requireUsagePanic(t, func() { tc.Expect(1).Not().Not() })
	requireUsagePanic(t, func() { tc.Expect(1).Resolves() })
	requireUsagePanic(t, func() {
		tc.Expect(func() (any, error) { return 1, nil }).Resolves().Rejects()
	})
	requireUsagePanic(t, func() { tc.Expect(1).To("toBeSomethingElse") })
	requireUsagePanic(t, func() { tc.Expect([]string{}).Not().ToVerifySteps() })

	assert.Empty(t, tc.Result().Assertions)
}

func TestArgumentValidation(t *testing.T) {
	tc := newTestT(t)

	assert.False(t, tc.Expect(2).ToBeWithin(3, 1))
	assert.False(t, tc.Expect(2).To(MatcherWithin, "a", 3))
	assert.False(t, tc.Expect(2).To(MatcherWithin, 1))
	assert.False(t, tc.Expect(2).ToBeOfType("banana"))
	assert.False(t, tc.Expect(2).To(MatcherBe, 1, 2))

	for _, a := range tc.Result().Assertions {
		assert.False(t, a.Pass)
		assert.Equal(t, "invalid arguments", a.Message)
	}

	// Invalid arguments fail even when negated.
	assert.False(t, tc.Expect(2).Not().ToBeWithin(3, 1))
}

func TestTransformFailure(t *testing.T) {
	tc := newTestT(t)
	assert.False(t, tc.Expect("abc").ToBeGreaterThan(1))
	assert.False(t, tc.Expect("abc").Not().ToBeGreaterThan(1))

	r := tc.Result()
	require.Len(t, r.Assertions, 2)
	assert.Contains(t, r.Assertions[0].Message, "expected a number")
}

func TestPromises(t *testing.T) {
	boom := errors.New("boom")

	tc := newTestT(t)
	assert.True(t, tc.Expect(func() (any, error) { return 42, nil }).Resolves().ToBe(42))
	assert.True(t, tc.Expect(func() error { return boom }).Rejects().ToBe(boom))
	assert.False(t, tc.Expect(func() error { return boom }).Resolves().ToBeTruthy())
	assert.False(t, tc.Expect(func() (any, error) { return 1, nil }).Rejects().ToBeTruthy())
	assert.True(t, tc.Expect(Promise(func(ctx context.Context) (any, error) {
		panic("kaput")
	})).Rejects().ToMatch("kaput"))

	r := tc.Result()
	require.Len(t, r.Assertions, 5)
	assert.Equal(t, "expected promise to resolve, but it was rejected", r.Assertions[2].Message)
	assert.Equal(t, "expected promise to reject, but it resolved", r.Assertions[3].Message)
}

func TestPromiseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tc := NewRegistry().NewT(ctx, "cancelled", nil)
	cancel()

	assert.False(t, tc.Expect(Promise(func(ctx context.Context) (any, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	})).Resolves().ToBe(1))
}

func TestSteps(t *testing.T) {
	tc := newTestT(t)
	tc.Step("a")
	tc.Step("b")
	assert.True(t, tc.VerifySteps([]string{"a", "b"}))
	// Steps are cleared by verification.
	assert.True(t, tc.VerifySteps(nil))

	tc.Step("c")
	assert.False(t, tc.VerifySteps([]string{"d"}))

	r := tc.Seal(time.Millisecond, false)
	assert.False(t, r.Pass)
	assert.Len(t, r.Assertions, 3)
}

func TestUnverifiedSteps(t *testing.T) {
	tc := newTestT(t)
	tc.Step("a")
	tc.Expect(true).ToBeTruthy()

	r := tc.Seal(time.Millisecond, false)
	assert.False(t, r.Pass)
	failed := r.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "unverified steps", failed[0].Message)
}

func TestExpectedAssertionCount(t *testing.T) {
	tc := newTestT(t)
	tc.Assertions(2)
	tc.Expect(1).ToBe(1)

	r := tc.Seal(time.Millisecond, false)
	assert.False(t, r.Pass)
	assert.Equal(t, "expected 2 assertions, but 1 were run", r.Failed()[0].Message)

	requireUsagePanic(t, func() { newTestT(t).Assertions(-1) })
}

func TestTodoInversion(t *testing.T) {
	failing := newTestT(t)
	failing.Expect(1).ToBe(2)
	r := failing.Seal(time.Millisecond, true)
	assert.True(t, r.Pass)

	passing := newTestT(t)
	passing.Expect(1).ToBe(1)
	r = passing.Seal(time.Millisecond, true)
	assert.False(t, r.Pass)
	assert.Equal(t, "test is marked as todo but all assertions passed", r.Failed()[0].Message)

	timedOut := newTestT(t)
	timedOut.Errored(&TimeoutError{Timeout: time.Second})
	r = timedOut.Seal(time.Second, true)
	assert.False(t, r.Pass, "a timeout is not an expected failure")
	assert.True(t, r.TimedOut())
}

func TestSealedRejectsExpectations(t *testing.T) {
	tc := newTestT(t)
	tc.Seal(0, false)

	requireUsagePanic(t, func() { tc.Expect(1) })
	requireUsagePanic(t, func() { tc.Step("late") })
	requireUsagePanic(t, func() { tc.Fail("late") })

	tc.Errored(errors.New("ignored"))
	assert.NoError(t, tc.Result().Error)
}

func TestErroredFirstWins(t *testing.T) {
	tc := newTestT(t)
	first := errors.New("first")
	tc.Errored(first)
	tc.Errored(errors.New("second"))
	assert.ErrorIs(t, tc.Result().Error, first)
	assert.False(t, tc.Result().Pass)
}

func TestCleanupsRunInOrder(t *testing.T) {
	tc := newTestT(t)
	var order []int
	tc.Cleanup(func() { order = append(order, 1) })
	tc.Cleanup(func() { panic("cleanup failed") })
	tc.Cleanup(func() { order = append(order, 3) })

	tc.RunCleanups()
	tc.RunCleanups()
	assert.Equal(t, []int{1, 3}, order)
}

func TestRegisterCustomMatcher(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Matcher{
		Name: "toBeEven",
		Fn: func(mc *Context, args ...any) Spec {
			return Spec{
				Transform: numberOf,
				Predicate: func(actual any) bool { return int(actual.(float64))%2 == 0 },
				Message:   func(bool) string { return "{actual} is {not}even" },
			}
		},
	})
	require.NoError(t, err)
	require.Error(t, reg.Register(Matcher{Name: "toBeEven", Fn: toBe}))
	require.Error(t, reg.Register(Matcher{Name: "", Fn: toBe}))
	assert.Contains(t, reg.Names(), "toBeEven")

	tc := reg.NewT(context.Background(), "custom", nil)
	assert.True(t, tc.Expect(4).To("toBeEven"))
	assert.True(t, tc.Expect(3).Not().To("toBeEven"))
	assert.Equal(t, "3 is not even", tc.Result().Assertions[1].Message)
}

func TestAssertionIDsAreUnique(t *testing.T) {
	reg := NewRegistry()
	a := reg.NewT(context.Background(), "a", nil)
	b := reg.NewT(context.Background(), "b", nil)
	a.Expect(1).ToBe(1)
	b.Expect(1).ToBe(1)
	a.Expect(1).ToBe(1)

	ids := map[uint64]bool{}
	for _, r := range []*Result{a.Result(), b.Result()} {
		for _, as := range r.Assertions {
			assert.False(t, ids[as.ID])
			ids[as.ID] = true
		}
	}
	assert.Len(t, ids, 3)
}
