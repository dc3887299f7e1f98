package expect

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type promiseMode int

const (
	promiseNone promiseMode = iota
	promiseResolves
	promiseRejects
)

func (m promiseMode) String() string {
	switch m {
	case promiseResolves:
		return "resolves"
	case promiseRejects:
		return "rejects"
	}
	return "none"
}

// Chain is a single-use expectation on one actual value.
type Chain struct {
	t       *T
	actual  any
	not     bool
	promise promiseMode
}

// Not negates the next matcher. Negating twice is a usage error.
func (c *Chain) Not() *Chain {
	if c.not {
		usagef("modifier \"not\" cannot be applied twice")
	}
	c.not = true
	return c
}

// Resolves waits for the actual promise and matches against its value.
func (c *Chain) Resolves() *Chain {
	c.wrap(promiseResolves)
	return c
}

// Rejects waits for the actual promise and matches against its rejection error.
func (c *Chain) Rejects() *Chain {
	c.wrap(promiseRejects)
	return c
}

func (c *Chain) wrap(mode promiseMode) {
	if c.promise != promiseNone {
		usagef("modifier %q cannot be applied after %q", mode, c.promise)
	}
	if !IsPromise(c.actual) {
		usagef("modifier %q expects a promise, got %s", mode, typeName(c.actual))
	}
	c.promise = mode
}

// To invokes the matcher registered under name.
func (c *Chain) To(name string, args ...any) bool {
	m, ok := c.t.reg.Lookup(name)
	if !ok {
		usagef("unknown matcher %q", name)
	}
	if c.not && m.NonNegatable {
		usagef("matcher %q cannot be negated", name)
	}
	c.t.mustBeActive(name)

	if errs := validateArgs(m.Args, args); len(errs) > 0 {
		return c.fail(name, "invalid arguments", errorDetails(errs))
	}
	if m.Validate != nil {
		if errs := m.Validate(args); len(errs) > 0 {
			return c.fail(name, "invalid arguments", errorDetails(errs))
		}
	}

	actual := c.actual
	if c.promise != promiseNone {
		value, err := settle(c.t.Context(), c.actual)
		switch {
		case c.promise == promiseResolves && err != nil:
			return c.fail(name, "expected promise to resolve, but it was rejected",
				[]Detail{{Label: "reason", Value: err}})
		case c.promise == promiseRejects && err == nil:
			return c.fail(name, "expected promise to reject, but it resolved",
				[]Detail{{Label: "value", Value: value}})
		case c.promise == promiseRejects:
			actual = err
		default:
			actual = value
		}
	}

	spec := m.Fn(&Context{Name: name, Actual: actual, Not: c.not, T: c.t}, args...)

	transformed := actual
	if spec.Transform != nil {
		v, err := spec.Transform(actual)
		if err != nil {
			return c.fail(name, err.Error(), nil)
		}
		transformed = v
	}

	pass := spec.Predicate(transformed)
	if c.not {
		pass = !pass
	}

	var message string
	if spec.Message != nil {
		message = c.render(spec.Message(pass), transformed)
	}
	a := &Assertion{Name: name, Message: message, Pass: pass}
	if !pass {
		if spec.Details != nil {
			a.Info = spec.Details(transformed)
		}
		a.Info = append(a.Info, stackDetail())
	}
	c.t.record(a)
	return pass
}

func (c *Chain) fail(name, message string, info []Detail) bool {
	info = append(info, stackDetail())
	c.t.record(&Assertion{Name: name, Message: message, Pass: false, Info: info})
	return false
}

func (c *Chain) render(message string, actual any) string {
	not := ""
	if c.not {
		not = "not "
	}
	return strings.NewReplacer("{not}", not, "{actual}", Format(actual)).Replace(message)
}

func errorDetails(errs []error) []Detail {
	details := make([]Detail, 0, len(errs))
	for _, err := range errs {
		details = append(details, Detail{Label: "argument", Value: err.Error()})
	}
	return details
}

// stackDetail captures the caller stack outside of this package.
func stackDetail() Detail {
	err := pkgerrors.New("assertion")
	tracer, ok := err.(interface{ StackTrace() pkgerrors.StackTrace })
	if !ok {
		return Detail{Label: "stack"}
	}
	var lines []string
	for _, f := range tracer.StackTrace() {
		fn := fmt.Sprintf("%+s", f)
		if strings.Contains(fn, "op-harness/expect.") || strings.HasPrefix(fn, "runtime.") {
			continue
		}
		lines = append(lines, fmt.Sprintf("%n (%v)", f, f))
		if len(lines) == 5 {
			break
		}
	}
	return Detail{Label: "stack", Value: strings.Join(lines, "\n")}
}
