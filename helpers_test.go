package harness

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/dom"
	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/runner"
)

const fixtureMarkup = `<nav id="menu"><a class="item active" href="/">home</a><a class="item" href="/docs">docs</a></nav>`

// defineMenu declares a suite with one passing test and, when failing is
// set, one failing test.
func defineMenu(failing bool) DefineFunc {
	return func(r *runner.Runner, fx *dom.Fixture) error {
		if err := fx.Mount(fixtureMarkup); err != nil {
			return err
		}
		_, err := r.Describe("menu", func() {
			_, _ = r.With("ui").Test("shows every item", func(_ context.Context, e *expect.T) error {
				e.Expect("#menu a.item").ToHaveCount(2)
				e.Expect("a.active").ToHaveAttribute("href", "/")
				return nil
			})
			if failing {
				_, _ = r.Test("has a settings item", func(_ context.Context, e *expect.T) error {
					e.Expect("a[href='/settings']").ToHaveCount(1)
					return nil
				})
			}
		})
		return err
	}
}

func newMenuRunner(t *testing.T, failing bool) *runner.Runner {
	t.Helper()
	fx := dom.NewFixture()
	r := runner.New(runner.Config{
		Log:      log.New(),
		Matchers: expect.NewRegistry(expect.WithQuerier(fx)),
	})
	require.NoError(t, defineMenu(failing)(r, fx))
	return r
}
