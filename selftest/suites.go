// Package selftest declares the built-in suites op-harness runs. They check
// the matcher engine and the scheduler against an HTML fixture, so a fresh
// deployment can prove itself before real suites are linked in.
package selftest

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"golang.org/x/net/html"

	"github.com/ethereum-optimism/infra/op-harness/dom"
	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Fixture is the bundled markup the suites query.
//
//go:embed fixture.html
var Fixture string

const (
	TagUI   = "ui"
	TagSlow = "slow"
)

type suites struct {
	r      *runner.Runner
	fx     *dom.Fixture
	markup string
}

// Define returns a definition declaring the built-in suites. markup replaces
// the bundled fixture when set; it is remounted before every DOM test.
func Define(markup string) func(r *runner.Runner, fx *dom.Fixture) error {
	if markup == "" {
		markup = Fixture
	}
	return func(r *runner.Runner, fx *dom.Fixture) error {
		s := &suites{r: r, fx: fx, markup: markup}
		if err := s.remount(context.Background(), nil); err != nil {
			return err
		}
		for _, declare := range []func() error{
			s.navigation,
			s.forms,
			s.results,
			s.values,
			s.steps,
			s.async,
			s.backlog,
		} {
			if err := declare(); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *suites) remount(context.Context, *types.Test) error {
	s.fx.Reset()
	if err := s.fx.Mount(s.markup); err != nil {
		return fmt.Errorf("mounting fixture: %w", err)
	}
	return nil
}

func (s *suites) describeDOM(name string, body func()) error {
	_, err := s.r.With(TagUI).Describe(name, func() {
		_, _ = s.r.BeforeEach(s.remount)
		body()
	})
	return err
}

func (s *suites) navigation() error {
	return s.describeDOM("navigation", func() {
		_, _ = s.r.Test("lists every menu item", func(_ context.Context, e *expect.T) error {
			e.Expect("#menu a.item").ToHaveCount(3)
			e.Expect("#menu a").ToHaveCount(expect.CountAny)
			return nil
		})
		_, _ = s.r.Test("marks the current page", func(_ context.Context, e *expect.T) error {
			e.Expect("#menu a.active").ToHaveAttribute("href", "/")
			e.Expect("#menu a.active").ToHaveClass("item active")
			e.Expect("#menu a[href='/docs']").Not().ToHaveClass("active")
			return nil
		})
		_, _ = s.r.Test("flags new pages", func(_ context.Context, e *expect.T) error {
			e.Expect("a[data-badge]").ToHaveAttribute("data-badge", regexp.MustCompile(`^new$`))
			return nil
		})
	})
}

func (s *suites) forms() error {
	return s.describeDOM("forms", func() {
		_, _ = s.r.Test("requires credentials", func(_ context.Context, e *expect.T) error {
			e.Expect("#login input[required]").ToHaveCount(2)
			e.Expect("#login input[type=password]").ToHaveAttribute("name", "password")
			e.Expect("#login button.primary").ToBeVisible()
			return nil
		})
		_, _ = s.r.Test("keeps the dialog closed", func(_ context.Context, e *expect.T) error {
			e.Expect("#dialog").Not().ToBeVisible()
			e.Expect("#dialog .message").Not().ToBeVisible()
			return nil
		})
		_, _ = s.r.Test("opens the dialog", func(_ context.Context, e *expect.T) error {
			dialog, err := s.fx.QueryOne("#dialog")
			if err != nil {
				return err
			}
			dialog.Attr = slices.DeleteFunc(dialog.Attr, func(a html.Attribute) bool { return a.Key == "hidden" })
			e.Expect(dialog).ToBeVisible()
			e.Expect("#dialog .message").ToBeVisible()
			return nil
		})
		_, _ = s.r.Test("mounts a toast", func(_ context.Context, e *expect.T) error {
			if err := s.fx.Mount(`<div id="toast" class="toast">Saved</div>`); err != nil {
				return err
			}
			toast, err := s.fx.QueryOne("#toast")
			if err != nil {
				return err
			}
			e.Expect(dom.Text(toast)).ToMatch("Saved")
			e.Expect(toast).ToHaveClass("toast")
			return nil
		})
	})
}

func (s *suites) results() error {
	return s.describeDOM("results", func() {
		_, _ = s.r.Test("hides skipped results", func(_ context.Context, e *expect.T) error {
			e.Expect("li.result.skipped").Not().ToBeVisible()
			e.Expect("li.result.passed").ToHaveCount(2)
			return nil
		})
		_, _ = s.r.With("multi=3").Test("counts results consistently", func(_ context.Context, e *expect.T) error {
			nodes, err := s.fx.QueryAll("li.result")
			if err != nil {
				return err
			}
			e.Expect(len(nodes)).ToBeWithin(3, 3)
			return nil
		})
	})
}

func (s *suites) values() error {
	_, err := s.r.Describe("values", func() {
		_, _ = s.r.Test("compares values", func(_ context.Context, e *expect.T) error {
			e.Expect(map[string]int{"passed": 2}).ToEqual(map[string]int{"passed": 2})
			e.Expect(3.5).ToBeGreaterThan(3)
			e.Expect(3.5).ToBeLessThan(4)
			e.Expect("op-harness").ToBeOfType("string")
			e.Expect(nil).ToBeOfType("nil")
			e.Expect("v1.2.3").ToMatch(regexp.MustCompile(`^v\d+\.\d+\.\d+$`))
			return nil
		})
		_, _ = s.r.Test("reports thrown errors", func(_ context.Context, e *expect.T) error {
			e.Expect(func() { panic("boom") }).ToThrow("boom")
			e.Expect(func() error { return nil }).Not().ToThrow()
			return nil
		})
	})
	return err
}

func (s *suites) steps() error {
	_, err := s.r.Describe("steps", func() {
		_, _ = s.r.Test("records steps in order", func(_ context.Context, e *expect.T) error {
			e.Assertions(2)
			e.Step("open")
			e.Step("fill")
			e.Step("submit")
			e.Expect([]string{"open", "fill", "submit"}).ToVerifySteps()
			e.Expect([]string{}).ToVerifySteps()
			return nil
		})
	})
	return err
}

func (s *suites) async() error {
	_, err := s.r.With(TagSlow, "timeout=2000").Describe("async", func() {
		_, _ = s.r.Test("waits for deferred values", func(_ context.Context, e *expect.T) error {
			e.Expect(expect.Promise(func(ctx context.Context) (any, error) {
				select {
				case <-time.After(10 * time.Millisecond):
					return "ready", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})).Resolves().ToBe("ready")
			return nil
		})
		_, _ = s.r.Test("reports rejections", func(_ context.Context, e *expect.T) error {
			e.Expect(func() error { return errors.New("offline") }).Rejects().ToMatch("offline")
			return nil
		})
	})
	return err
}

// backlog holds features that are not there yet. Todo tests are expected to
// fail until they are implemented.
func (s *suites) backlog() error {
	return s.describeDOM("backlog", func() {
		_, _ = s.r.Todo().Test("shows a search box", func(_ context.Context, e *expect.T) error {
			e.Expect("#search").ToHaveCount(1)
			return nil
		})
		_, _ = s.r.Skip().Test("uploads attachments", func(_ context.Context, e *expect.T) error {
			e.Expect("input[type=file]").ToHaveCount(1)
			return nil
		})
	})
}
