package expect

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Kind is the primitive shape an argument may take.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindInteger
	KindBool
	KindRegexp
	KindFunc
	KindType
	KindError
)

var kindNames = map[Kind]string{
	KindAny:     "any",
	KindString:  "string",
	KindNumber:  "number",
	KindInteger: "integer",
	KindBool:    "boolean",
	KindRegexp:  "regexp",
	KindFunc:    "function",
	KindType:    "type",
	KindError:   "error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ArgType is an accepted argument shape: a kind, or a list of that kind.
type ArgType struct {
	Kind  Kind
	Array bool
}

func (a ArgType) String() string {
	if a.Array {
		return "[]" + a.Kind.String()
	}
	return a.Kind.String()
}

// ArgSpec declares what a matcher accepts at one argument position.
type ArgSpec struct {
	Types    []ArgType
	Nullable bool
	Optional bool
	// Variadic applies the spec to every remaining argument.
	Variadic bool
}

// Arg is shorthand for a required argument accepting any of the given kinds.
func Arg(kinds ...Kind) ArgSpec {
	types := make([]ArgType, 0, len(kinds))
	for _, k := range kinds {
		types = append(types, ArgType{Kind: k})
	}
	return ArgSpec{Types: types}
}

// OptionalArg is Arg with Optional set.
func OptionalArg(kinds ...Kind) ArgSpec {
	spec := Arg(kinds...)
	spec.Optional = true
	return spec
}

func (s ArgSpec) describe() string {
	names := make([]string, 0, len(s.Types)+1)
	for _, t := range s.Types {
		names = append(names, t.String())
	}
	if s.Nullable {
		names = append(names, "nil")
	}
	return strings.Join(names, " or ")
}

func (s ArgSpec) accepts(v any) bool {
	if v == nil {
		return s.Nullable
	}
	if len(s.Types) == 0 {
		return true
	}
	for _, t := range s.Types {
		if matchesArgType(t, v) {
			return true
		}
	}
	return false
}

// validateArgs checks args against specs and returns one error per violation.
func validateArgs(specs []ArgSpec, args []any) []error {
	var errs []error
	i := 0
	for si, spec := range specs {
		if spec.Variadic {
			for ; i < len(args); i++ {
				if !spec.accepts(args[i]) {
					errs = append(errs, argError(i, spec, args[i]))
				}
			}
			return errs
		}
		if i >= len(args) {
			if !spec.Optional {
				errs = append(errs, fmt.Errorf("argument %d is required (%s)", si+1, spec.describe()))
			}
			i++
			continue
		}
		if !spec.accepts(args[i]) {
			errs = append(errs, argError(i, spec, args[i]))
		}
		i++
	}
	if len(args) > len(specs) {
		errs = append(errs, fmt.Errorf("expected at most %d arguments, got %d", len(specs), len(args)))
	}
	return errs
}

func argError(i int, spec ArgSpec, got any) error {
	return fmt.Errorf("argument %d must be of type %s (got %s)", i+1, spec.describe(), typeName(got))
}

func matchesArgType(t ArgType, v any) bool {
	if !t.Array {
		return matchesKind(t.Kind, v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if !matchesKind(t.Kind, rv.Index(i).Interface()) {
			return false
		}
	}
	return true
}

func matchesKind(k Kind, v any) bool {
	switch k {
	case KindAny:
		return true
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := toFloat(v)
		return ok
	case KindInteger:
		_, ok := toInt(v)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindRegexp:
		_, ok := v.(*regexp.Regexp)
		return ok
	case KindFunc:
		return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
	case KindType:
		_, ok := v.(reflect.Type)
		return ok
	case KindError:
		_, ok := v.(error)
		return ok
	}
	return false
}

func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint()), true
	}
	return 0, false
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
