// Package callbacks implements named lifecycle channels. Handlers of one
// channel run concurrently and the channel is fully drained before Call
// returns.
package callbacks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Channel names a lifecycle event.
type Channel string

const (
	BeforeAll   Channel = "before-all"
	AfterAll    Channel = "after-all"
	BeforeSuite Channel = "before-suite"
	AfterSuite  Channel = "after-suite"
	BeforeTest  Channel = "before-test"
	AfterTest   Channel = "after-test"
	SkippedTest Channel = "skipped-test"
)

// Func is a lifecycle handler. The payload is the suite or test the event is about.
type Func func(ctx context.Context, payload any) error

type entry struct {
	id   uint64
	fn   Func
	once bool
}

// Registry holds handlers per channel.
type Registry struct {
	mu       sync.Mutex
	handlers map[Channel][]*entry
	nextID   uint64
	log      log.Logger
}

// New creates an empty registry. A nil logger falls back to the root logger.
func New(lg log.Logger) *Registry {
	if lg == nil {
		lg = log.Root()
	}
	return &Registry{
		handlers: make(map[Channel][]*entry),
		log:      lg,
	}
}

// Add registers fn on channel and returns a function removing it.
func (r *Registry) Add(channel Channel, fn Func) func() {
	return r.add(channel, fn, false)
}

// Once registers fn so that it is removed after its first invocation.
func (r *Registry) Once(channel Channel, fn Func) func() {
	return r.add(channel, fn, true)
}

func (r *Registry) add(channel Channel, fn Func, once bool) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e := &entry{id: r.nextID, fn: fn, once: once}
	r.handlers[channel] = append(r.handlers[channel], e)
	return func() { r.remove(channel, e.id) }
}

func (r *Registry) remove(channel Channel, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[channel]
	for i, e := range list {
		if e.id == id {
			r.handlers[channel] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Len returns the number of handlers registered on channel.
func (r *Registry) Len(channel Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[channel])
}

// Clear removes every handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[Channel][]*entry)
}

// Call runs every handler of channel and waits for all of them. A failing or
// panicking handler is logged and does not stop its siblings; the failures are
// returned joined.
func (r *Registry) Call(ctx context.Context, channel Channel, payload any) error {
	r.mu.Lock()
	list := r.handlers[channel]
	snapshot := make([]*entry, len(list))
	copy(snapshot, list)
	kept := list[:0:0]
	for _, e := range list {
		if !e.once {
			kept = append(kept, e)
		}
	}
	r.handlers[channel] = kept
	r.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	errs := make([]error, len(snapshot))
	var g errgroup.Group
	for i, e := range snapshot {
		g.Go(func() error {
			if err := invoke(ctx, e.fn, payload); err != nil {
				r.log.Error("Callback failed", "channel", channel, "error", err)
				errs[i] = fmt.Errorf("%s callback: %w", channel, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func invoke(ctx context.Context, fn Func, payload any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("callback panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	return fn(ctx, payload)
}
