package expect

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/dom"
)

func TestDOMMatchers(t *testing.T) {
	fx := dom.NewFixture()
	require.NoError(t, fx.Mount(`
		<ul id="list">
			<li class="item first" data-id="1">one</li>
			<li class="item" data-id="2">two</li>
			<li class="item" hidden>three</li>
		</ul>
		<p id="empty"></p>`))

	reg := NewRegistry(WithQuerier(fx))
	tc := reg.NewT(context.Background(), "dom", nil)

	assert.True(t, tc.Expect("li.item").ToHaveCount(3))
	assert.True(t, tc.Expect("li.item").ToHaveCount())
	assert.True(t, tc.Expect("li.item").ToHaveCount(CountAny))
	assert.True(t, tc.Expect("li.missing").Not().ToHaveCount())
	assert.True(t, tc.Expect("li.first").ToBeVisible())
	assert.True(t, tc.Expect("li[hidden]").Not().ToBeVisible())
	assert.True(t, tc.Expect("li.first").ToHaveAttribute("data-id"))
	assert.True(t, tc.Expect("li.first").ToHaveAttribute("data-id", "1"))
	assert.True(t, tc.Expect("li.first").ToHaveAttribute("data-id", regexp.MustCompile(`^\d$`)))
	assert.True(t, tc.Expect("li.first").Not().ToHaveAttribute("data-id", "2"))
	assert.True(t, tc.Expect("li.first").ToHaveClass("first item"))
	assert.True(t, tc.Expect("li.first").ToHaveClass([]string{"item"}))
	assert.True(t, tc.Expect("#empty").Not().ToHaveClass("item"))
	assert.True(t, tc.Result().Pass)

	// Ambiguous targets fail rather than picking one element.
	assert.False(t, tc.Expect("li.item").ToBeVisible())
	assert.False(t, tc.Expect("li.item").Not().ToBeVisible())
	assert.False(t, tc.Expect("li.item").ToHaveCount("some"))
}

func TestDOMMatchersWithoutQuerier(t *testing.T) {
	tc := NewRegistry().NewT(context.Background(), "dom", nil)
	assert.False(t, tc.Expect("li").ToHaveCount())

	failed := tc.Result().Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "no DOM querier configured", failed[0].Message)
}
