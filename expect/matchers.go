package expect

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/ethereum-optimism/infra/op-harness/dom"
)

// Built-in matcher names.
const (
	MatcherBe          = "toBe"
	MatcherEqual       = "toEqual"
	MatcherTruthy      = "toBeTruthy"
	MatcherWithin      = "toBeWithin"
	MatcherGreaterThan = "toBeGreaterThan"
	MatcherLessThan    = "toBeLessThan"
	MatcherOfType      = "toBeOfType"
	MatcherCount       = "toHaveCount"
	MatcherVisible     = "toBeVisible"
	MatcherAttribute   = "toHaveAttribute"
	MatcherClass       = "toHaveClass"
	MatcherMatch       = "toMatch"
	MatcherThrow       = "toThrow"
	MatcherVerifySteps = "toVerifySteps"
)

// CountAny is accepted by toHaveCount to mean "at least one".
const CountAny = "any"

var typeCategories = []string{
	"nil", "boolean", "number", "integer", "string", "function",
	"slice", "map", "struct", "pointer", "channel", "error",
}

func builtinMatchers() []Matcher {
	return []Matcher{
		{Name: MatcherBe, Args: []ArgSpec{{Nullable: true}}, Fn: toBe},
		{Name: MatcherEqual, Args: []ArgSpec{{Nullable: true}}, Fn: toEqual},
		{Name: MatcherTruthy, Fn: toBeTruthy},
		{
			Name:     MatcherWithin,
			Args:     []ArgSpec{Arg(KindNumber), Arg(KindNumber)},
			Validate: validateRange,
			Fn:       toBeWithin,
		},
		{Name: MatcherGreaterThan, Args: []ArgSpec{Arg(KindNumber)}, Fn: compareNumber(">", func(a, b float64) bool { return a > b })},
		{Name: MatcherLessThan, Args: []ArgSpec{Arg(KindNumber)}, Fn: compareNumber("<", func(a, b float64) bool { return a < b })},
		{Name: MatcherOfType, Args: []ArgSpec{Arg(KindString)}, Validate: validateTypeCategory, Fn: toBeOfType},
		{Name: MatcherCount, Args: []ArgSpec{OptionalArg(KindInteger, KindString)}, Validate: validateCount, Fn: toHaveCount},
		{Name: MatcherVisible, Fn: toBeVisible},
		{Name: MatcherAttribute, Args: []ArgSpec{Arg(KindString), OptionalArg(KindString, KindRegexp)}, Fn: toHaveAttribute},
		{
			Name: MatcherClass,
			Args: []ArgSpec{{Types: []ArgType{{Kind: KindString}, {Kind: KindString, Array: true}}}},
			Fn:   toHaveClass,
		},
		{Name: MatcherMatch, Args: []ArgSpec{Arg(KindString, KindRegexp, KindType)}, Fn: toMatch},
		{Name: MatcherThrow, Args: []ArgSpec{OptionalArg(KindString, KindRegexp, KindError, KindType)}, Fn: toThrow},
		{Name: MatcherVerifySteps, NonNegatable: true, Fn: toVerifySteps},
	}
}

func toBe(mc *Context, args ...any) Spec {
	expected := args[0]
	return Spec{
		Predicate: func(actual any) bool { return strictEqual(actual, expected) },
		Message: func(pass bool) string {
			if pass {
				return "received value is {not}strictly equal to " + Format(expected)
			}
			return "expected values to {not}be strictly equal"
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "expected", Value: expected}, {Label: "received", Value: actual}}
		},
	}
}

func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

var cmpOpts = []cmp.Option{cmp.Exporter(func(reflect.Type) bool { return true })}

func toEqual(mc *Context, args ...any) Spec {
	expected := args[0]
	return Spec{
		Predicate: func(actual any) bool { return deepEqual(expected, actual) },
		Message: func(pass bool) string {
			if pass {
				return "received value is {not}deeply equal to " + Format(expected)
			}
			return "expected values to {not}be deeply equal"
		},
		Details: func(actual any) []Detail {
			details := []Detail{{Label: "expected", Value: expected}, {Label: "received", Value: actual}}
			if diff := safeDiff(expected, actual); diff != "" {
				details = append(details, Detail{Label: "diff", Value: diff})
			}
			return details
		},
	}
}

func deepEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = reflect.DeepEqual(a, b)
		}
	}()
	return cmp.Equal(a, b, cmpOpts...)
}

func safeDiff(a, b any) (diff string) {
	defer func() {
		if recover() != nil {
			diff = ""
		}
	}()
	return cmp.Diff(a, b, cmpOpts...)
}

func toBeTruthy(mc *Context, args ...any) Spec {
	return Spec{
		Predicate: truthy,
		Message: func(pass bool) string {
			if pass {
				return "{actual} is {not}truthy"
			}
			return "expected {actual} to {not}be truthy"
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "received", Value: actual}}
		},
	}
}

// truthy treats nil, false, zero scalars, empty strings and nil references as falsy.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		f, _ := toFloat(v)
		return f != 0 && f == f
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

func validateRange(args []any) []error {
	lo, _ := toFloat(args[0])
	hi, _ := toFloat(args[1])
	if lo > hi {
		return []error{fmt.Errorf("min (%v) must not be greater than max (%v)", args[0], args[1])}
	}
	return nil
}

func toBeWithin(mc *Context, args ...any) Spec {
	lo, _ := toFloat(args[0])
	hi, _ := toFloat(args[1])
	return Spec{
		Transform: numberOf,
		Predicate: func(actual any) bool {
			f := actual.(float64)
			return f >= lo && f <= hi
		},
		Message: func(pass bool) string {
			if pass {
				return fmt.Sprintf("{actual} is {not}within [%v, %v]", args[0], args[1])
			}
			return fmt.Sprintf("expected {actual} to {not}be within [%v, %v]", args[0], args[1])
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "min", Value: args[0]}, {Label: "max", Value: args[1]}, {Label: "received", Value: actual}}
		},
	}
}

func compareNumber(op string, cmpFn func(a, b float64) bool) MatcherFunc {
	return func(mc *Context, args ...any) Spec {
		bound, _ := toFloat(args[0])
		return Spec{
			Transform: numberOf,
			Predicate: func(actual any) bool { return cmpFn(actual.(float64), bound) },
			Message: func(pass bool) string {
				if pass {
					return fmt.Sprintf("{actual} is {not}%s %v", op, args[0])
				}
				return fmt.Sprintf("expected {actual} to {not}be %s %v", op, args[0])
			},
			Details: func(actual any) []Detail {
				return []Detail{{Label: "bound", Value: args[0]}, {Label: "received", Value: actual}}
			},
		}
	}
}

func numberOf(actual any) (any, error) {
	f, ok := toFloat(actual)
	if !ok {
		return nil, fmt.Errorf("expected a number, got %s", typeName(actual))
	}
	return f, nil
}

func validateTypeCategory(args []any) []error {
	name := args[0].(string)
	if !slices.Contains(typeCategories, name) {
		return []error{fmt.Errorf("unknown type %q, expected one of %s", name, strings.Join(typeCategories, ", "))}
	}
	return nil
}

// TypeOf returns the type category of v as understood by toBeOfType.
func TypeOf(v any) string {
	if v == nil {
		return "nil"
	}
	if _, ok := v.(error); ok {
		return "error"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Func:
		return "function"
	case reflect.Slice, reflect.Array:
		return "slice"
	case reflect.Map:
		return "map"
	case reflect.Struct:
		return "struct"
	case reflect.Pointer:
		return "pointer"
	case reflect.Chan:
		return "channel"
	}
	return rv.Kind().String()
}

func toBeOfType(mc *Context, args ...any) Spec {
	want := args[0].(string)
	return Spec{
		Predicate: func(actual any) bool {
			got := TypeOf(actual)
			return got == want || (want == "number" && got == "integer")
		},
		Message: func(pass bool) string {
			if pass {
				return fmt.Sprintf("{actual} is {not}of type %s", want)
			}
			return fmt.Sprintf("expected {actual} to {not}be of type %s", want)
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "expected type", Value: want}, {Label: "received type", Value: TypeOf(actual)}}
		},
	}
}

func validateCount(args []any) []error {
	if len(args) == 0 {
		return nil
	}
	if s, ok := args[0].(string); ok && s != CountAny {
		return []error{fmt.Errorf("argument 1 must be an integer or %q, got %q", CountAny, s)}
	}
	if n, ok := toInt(args[0]); ok && n < 0 {
		return []error{fmt.Errorf("argument 1 must not be negative, got %d", n)}
	}
	return nil
}

func queryAll(mc *Context) func(actual any) (any, error) {
	return func(actual any) (any, error) {
		q := mc.Querier()
		if q == nil {
			return nil, errors.New("no DOM querier configured")
		}
		return q.QueryAll(actual)
	}
}

func queryOne(mc *Context) func(actual any) (any, error) {
	return func(actual any) (any, error) {
		q := mc.Querier()
		if q == nil {
			return nil, errors.New("no DOM querier configured")
		}
		return q.QueryOne(actual)
	}
}

func toHaveCount(mc *Context, args ...any) Spec {
	var expected any = CountAny
	if len(args) > 0 {
		expected = args[0]
	}
	return Spec{
		Transform: queryAll(mc),
		Predicate: func(actual any) bool {
			nodes := actual.([]*html.Node)
			if n, ok := toInt(expected); ok {
				return int64(len(nodes)) == n
			}
			return len(nodes) > 0
		},
		Message: func(pass bool) string {
			if n, ok := toInt(expected); ok {
				if pass {
					return fmt.Sprintf("found {not}%d elements matching %s", n, Format(mc.Actual))
				}
				return fmt.Sprintf("expected {not}%d elements matching %s", n, Format(mc.Actual))
			}
			if pass {
				return fmt.Sprintf("found {not}any elements matching %s", Format(mc.Actual))
			}
			return fmt.Sprintf("expected {not}any elements matching %s", Format(mc.Actual))
		},
		Details: func(actual any) []Detail {
			return []Detail{
				{Label: "expected", Value: expected},
				{Label: "received", Value: len(actual.([]*html.Node))},
			}
		},
	}
}

func toBeVisible(mc *Context, args ...any) Spec {
	return Spec{
		Transform: queryOne(mc),
		Predicate: func(actual any) bool {
			return mc.Querier().IsVisible(actual.(*html.Node))
		},
		Message: func(pass bool) string {
			if pass {
				return "{actual} is {not}visible"
			}
			return "expected {actual} to {not}be visible"
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "element", Value: dom.Describe(actual.(*html.Node))}}
		},
	}
}

func toHaveAttribute(mc *Context, args ...any) Spec {
	name := args[0].(string)
	var expected any
	if len(args) > 1 {
		expected = args[1]
	}
	return Spec{
		Transform: queryOne(mc),
		Predicate: func(actual any) bool {
			value, ok := dom.Attr(actual.(*html.Node), name)
			if !ok {
				return false
			}
			switch e := expected.(type) {
			case string:
				return value == e
			case *regexp.Regexp:
				return e.MatchString(value)
			}
			return true
		},
		Message: func(pass bool) string {
			what := fmt.Sprintf("attribute %q", name)
			if expected != nil {
				what += " with value " + Format(expected)
			}
			if pass {
				return "{actual} {not}has " + what
			}
			return "expected {actual} to {not}have " + what
		},
		Details: func(actual any) []Detail {
			value, ok := dom.Attr(actual.(*html.Node), name)
			received := any(value)
			if !ok {
				received = nil
			}
			return []Detail{{Label: "expected", Value: expected}, {Label: "received", Value: received}}
		},
	}
}

func toHaveClass(mc *Context, args ...any) Spec {
	var classes []string
	switch c := args[0].(type) {
	case string:
		classes = strings.Fields(c)
	case []string:
		for _, s := range c {
			classes = append(classes, strings.Fields(s)...)
		}
	}
	return Spec{
		Transform: queryOne(mc),
		Predicate: func(actual any) bool {
			el := actual.(*html.Node)
			for _, c := range classes {
				if !dom.HasClass(el, c) {
					return false
				}
			}
			return true
		},
		Message: func(pass bool) string {
			if pass {
				return fmt.Sprintf("{actual} {not}has classes %v", classes)
			}
			return fmt.Sprintf("expected {actual} to {not}have classes %v", classes)
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "expected", Value: classes}, {Label: "received", Value: dom.Classes(actual.(*html.Node))}}
		},
	}
}

func toMatch(mc *Context, args ...any) Spec {
	pattern := args[0]
	return Spec{
		Predicate: func(actual any) bool { return matchValue(actual, pattern) },
		Message: func(pass bool) string {
			if pass {
				return "{actual} {not}matches " + Format(pattern)
			}
			return "expected {actual} to {not}match " + Format(pattern)
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "pattern", Value: pattern}, {Label: "received", Value: actual}}
		},
	}
}

// matchValue matches strings by substring or regexp, and any value by type.
func matchValue(actual, pattern any) bool {
	if t, ok := pattern.(reflect.Type); ok {
		if actual == nil {
			return false
		}
		at := reflect.TypeOf(actual)
		if t.Kind() == reflect.Interface {
			return at.Implements(t)
		}
		return at == t
	}
	s, ok := stringOf(actual)
	if !ok {
		return false
	}
	switch p := pattern.(type) {
	case string:
		return strings.Contains(s, p)
	case *regexp.Regexp:
		return p.MatchString(s)
	}
	return false
}

func stringOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case error:
		return x.Error(), true
	case fmt.Stringer:
		return x.String(), true
	}
	return "", false
}

func toThrow(mc *Context, args ...any) Spec {
	var matcher any
	if len(args) > 0 {
		matcher = args[0]
	}
	return Spec{
		Transform: func(actual any) (any, error) {
			switch fn := actual.(type) {
			case error:
				return fn, nil
			case func():
				return capture(func() error { fn(); return nil }), nil
			case func() error:
				return capture(fn), nil
			}
			return nil, fmt.Errorf("expected a function or an error, got %s", typeName(actual))
		},
		Predicate: func(actual any) bool {
			thrown, _ := actual.(error)
			if thrown == nil {
				return false
			}
			return errorMatches(thrown, matcher)
		},
		Message: func(pass bool) string {
			what := "an error"
			if matcher != nil {
				what = "an error matching " + Format(matcher)
			}
			if pass {
				return "function did {not}throw " + what
			}
			return "expected function to {not}throw " + what
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "expected", Value: matcher}, {Label: "received", Value: actual}}
		},
	}
}

func capture(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = Recovered(rec, string(debug.Stack()))
		}
	}()
	return fn()
}

func errorMatches(err error, matcher any) bool {
	switch m := matcher.(type) {
	case nil:
		return true
	case error:
		return errors.Is(err, m)
	case string, *regexp.Regexp:
		return matchValue(err, m)
	case reflect.Type:
		for e := err; e != nil; e = errors.Unwrap(e) {
			if matchValue(e, m) {
				return true
			}
		}
	}
	return false
}

func toVerifySteps(mc *Context, args ...any) Spec {
	expected, ok := mc.Actual.([]string)
	return Spec{
		Transform: func(actual any) (any, error) {
			if !ok && actual != nil {
				return nil, fmt.Errorf("expected a list of steps, got %s", typeName(actual))
			}
			return mc.T.takeSteps(), nil
		},
		Predicate: func(actual any) bool {
			received := actual.([]string)
			return len(received) == len(expected) && slices.Equal(received, expected)
		},
		Message: func(pass bool) string {
			if pass {
				return fmt.Sprintf("steps are all verified (%d)", len(expected))
			}
			return "expected the following steps"
		},
		Details: func(actual any) []Detail {
			return []Detail{{Label: "expected", Value: expected}, {Label: "received", Value: actual}}
		},
	}
}
