package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/callbacks"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Decl declares suites and tests carrying a set of tags. It replaces tag
// chaining: r.With("slow").Only().Test(...).
type Decl struct {
	r    *Runner
	tags []string
}

// With returns a declaration carrying the given tags on top of the current ones.
func (d *Decl) With(tags ...string) *Decl {
	return &Decl{r: d.r, tags: append(slices.Clone(d.tags), tags...)}
}

func (d *Decl) Skip() *Decl  { return d.With(types.TagSkip) }
func (d *Decl) Only() *Decl  { return d.With(types.TagOnly) }
func (d *Decl) Todo() *Decl  { return d.With(types.TagTodo) }
func (d *Decl) Debug() *Decl { return d.With(types.TagDebug) }

// Describe declares a suite below the suite being declared (or a root suite)
// and runs body to declare its children.
func (d *Decl) Describe(name string, body func()) (*types.Suite, error) {
	r := d.r
	r.mu.Lock()
	s, err := r.declareSuite(name, body, d.tags)
	if err != nil {
		r.regErrs = append(r.regErrs, err)
		r.mu.Unlock()
		return nil, err
	}
	r.registering = append(r.registering, s)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.registering = r.registering[:len(r.registering)-1]
		r.mu.Unlock()
	}()
	body()
	return s, nil
}

// Test declares a test in the suite being declared.
func (d *Decl) Test(name string, fn types.TestFunc) (*types.Test, error) {
	r := d.r
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.declareTest(name, fn, d.tags)
	if err != nil {
		r.regErrs = append(r.regErrs, err)
		return nil, err
	}
	return t, nil
}

// With starts a declaration carrying tags.
func (r *Runner) With(tags ...string) *Decl {
	return &Decl{r: r, tags: tags}
}

func (r *Runner) Skip() *Decl  { return r.With(types.TagSkip) }
func (r *Runner) Only() *Decl  { return r.With(types.TagOnly) }
func (r *Runner) Todo() *Decl  { return r.With(types.TagTodo) }
func (r *Runner) Debug() *Decl { return r.With(types.TagDebug) }

// Describe declares an untagged suite.
func (r *Runner) Describe(name string, body func()) (*types.Suite, error) {
	return r.With().Describe(name, body)
}

// Test declares an untagged test.
func (r *Runner) Test(name string, fn types.TestFunc) (*types.Test, error) {
	return r.With().Test(name, fn)
}

// RegistrationErrors returns the errors of every rejected declaration.
func (r *Runner) RegistrationErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.regErrs)
}

func (r *Runner) declareSuite(name string, body func(), tags []string) (*types.Suite, error) {
	parent := r.registeringSuite()
	if err := r.checkDeclaration(name, body == nil); err != nil {
		return nil, err
	}
	resolved, err := r.tags.InternAll(tags...)
	if err != nil {
		return nil, &types.RegistrationError{Name: name, Msg: err.Error()}
	}
	s := types.NewSuite(parent, strings.TrimSpace(name), resolved, r.log)
	if parent != nil {
		if err := parent.Add(s); err != nil {
			return nil, &types.RegistrationError{Name: name, Msg: err.Error()}
		}
	} else {
		for _, root := range r.roots {
			if root.Base().Name == s.Name {
				return nil, &types.RegistrationError{Name: name, Msg: "duplicate root suite"}
			}
		}
		r.roots = append(r.roots, s)
	}
	r.suites = append(r.suites, s)
	r.noteDebug(&s.Job)
	return s, nil
}

func (r *Runner) declareTest(name string, fn types.TestFunc, tags []string) (*types.Test, error) {
	parent := r.registeringSuite()
	if err := r.checkDeclaration(name, fn == nil); err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, &types.RegistrationError{Name: name, Msg: "test declared outside of a suite"}
	}
	resolved, err := r.tags.InternAll(tags...)
	if err != nil {
		return nil, &types.RegistrationError{Name: name, Msg: err.Error()}
	}
	t := types.NewTest(parent, strings.TrimSpace(name), fn, resolved)
	if err := parent.Add(t); err != nil {
		return nil, &types.RegistrationError{Name: name, Msg: err.Error()}
	}
	r.tests = append(r.tests, t)
	r.noteDebug(&t.Job)
	return t, nil
}

func (r *Runner) checkDeclaration(name string, missingBody bool) error {
	switch {
	case r.status == StatusRunning:
		return &types.RegistrationError{Name: name, Msg: "cannot register while running"}
	case strings.TrimSpace(name) == "":
		return &types.RegistrationError{Name: name, Msg: "name must not be empty"}
	case missingBody:
		return &types.RegistrationError{Name: name, Msg: "body must not be nil"}
	}
	return nil
}

func (r *Runner) registeringSuite() *types.Suite {
	if len(r.registering) == 0 {
		return nil
	}
	return r.registering[len(r.registering)-1]
}

func (r *Runner) noteDebug(j *types.Job) {
	if j.Debug && !r.debug {
		r.log.Info("Debug tag found, running in debug mode", "job", j.FullName)
		r.debug = true
	}
}

// RunHook is a hook of the before-all and after-all channels.
type RunHook func(ctx context.Context) error

// SuiteHook is a hook receiving the suite it fires for.
type SuiteHook func(ctx context.Context, s *types.Suite) error

// TestHook is a hook receiving the test it fires for.
type TestHook func(ctx context.Context, t *types.Test) error

func (h RunHook) callback() callbacks.Func {
	return func(ctx context.Context, _ any) error { return h(ctx) }
}

func (h SuiteHook) callback() callbacks.Func {
	return func(ctx context.Context, payload any) error { return h(ctx, payload.(*types.Suite)) }
}

func (h TestHook) callback() callbacks.Func {
	return func(ctx context.Context, payload any) error { return h(ctx, payload.(*types.Test)) }
}

// Global hooks. Each returns a function removing the hook.

func (r *Runner) BeforeAll(fn RunHook) func() {
	return r.callbacks.Add(callbacks.BeforeAll, fn.callback())
}

func (r *Runner) AfterAll(fn RunHook) func() {
	return r.callbacks.Add(callbacks.AfterAll, fn.callback())
}

func (r *Runner) BeforeAnySuite(fn SuiteHook) func() {
	return r.callbacks.Add(callbacks.BeforeSuite, fn.callback())
}

func (r *Runner) AfterAnySuite(fn SuiteHook) func() {
	return r.callbacks.Add(callbacks.AfterSuite, fn.callback())
}

func (r *Runner) BeforeAnyTest(fn TestHook) func() {
	return r.callbacks.Add(callbacks.BeforeTest, fn.callback())
}

func (r *Runner) AfterAnyTest(fn TestHook) func() {
	return r.callbacks.Add(callbacks.AfterTest, fn.callback())
}

func (r *Runner) SkippedAnyTest(fn TestHook) func() {
	return r.callbacks.Add(callbacks.SkippedTest, fn.callback())
}

// RegisterCleanup runs fn once after the next test ends.
func (r *Runner) RegisterCleanup(fn TestHook) func() {
	return r.callbacks.Once(callbacks.AfterTest, fn.callback())
}

// Suite hooks are scoped to the suite being declared. Suite hooks fire for
// that suite only, test hooks for every test below it.

func (r *Runner) BeforeSuite(fn SuiteHook) (func(), error) {
	return r.scoped("beforeSuite", callbacks.BeforeSuite, fn.callback())
}

func (r *Runner) AfterSuite(fn SuiteHook) (func(), error) {
	return r.scoped("afterSuite", callbacks.AfterSuite, fn.callback())
}

func (r *Runner) BeforeEach(fn TestHook) (func(), error) {
	return r.scoped("beforeEach", callbacks.BeforeTest, fn.callback())
}

func (r *Runner) AfterEach(fn TestHook) (func(), error) {
	return r.scoped("afterEach", callbacks.AfterTest, fn.callback())
}

func (r *Runner) SkippedTest(fn TestHook) (func(), error) {
	return r.scoped("skippedTest", callbacks.SkippedTest, fn.callback())
}

func (r *Runner) scoped(name string, channel callbacks.Channel, fn callbacks.Func) (func(), error) {
	r.mu.Lock()
	s := r.registeringSuite()
	if s == nil {
		err := &types.RegistrationError{Name: name, Msg: fmt.Sprintf("%s hook declared outside of a suite", name)}
		r.regErrs = append(r.regErrs, err)
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()
	return s.Callbacks().Add(channel, fn), nil
}
