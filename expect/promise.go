package expect

import (
	"context"
	"runtime/debug"
)

// Promise is a deferred computation that Resolves and Rejects wait on.
type Promise func(ctx context.Context) (any, error)

// IsPromise reports whether v can be awaited by Resolves or Rejects.
func IsPromise(v any) bool {
	switch v.(type) {
	case Promise, func(context.Context) (any, error), func() (any, error), func() error:
		return true
	}
	return false
}

func asPromise(v any) Promise {
	switch p := v.(type) {
	case Promise:
		return p
	case func(context.Context) (any, error):
		return p
	case func() (any, error):
		return func(context.Context) (any, error) { return p() }
	case func() error:
		return func(context.Context) (any, error) { return nil, p() }
	}
	return nil
}

type settlement struct {
	value any
	err   error
}

// settle waits for the promise or for ctx, whichever comes first. A panic in
// the promise counts as a rejection.
func settle(ctx context.Context, v any) (any, error) {
	p := asPromise(v)
	done := make(chan settlement, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- settlement{err: Recovered(rec, string(debug.Stack()))}
			}
		}()
		value, err := p(ctx)
		done <- settlement{value: value, err: err}
	}()
	select {
	case s := <-done:
		return s.value, s.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
