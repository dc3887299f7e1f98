package runner

import (
	"time"

	"github.com/ethereum-optimism/infra/op-harness/expect"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// EventType names a runner event.
type EventType string

const (
	EventStatusChanged EventType = "status-changed"
	EventSuiteStarted  EventType = "suite-started"
	EventSuiteEnded    EventType = "suite-ended"
	EventTestStarted   EventType = "test-started"
	EventTestEnded     EventType = "test-ended"
	EventTestSkipped   EventType = "test-skipped"
	EventHookFailed    EventType = "hook-failed"
)

// Event is published to observers after the state it describes changed.
type Event struct {
	Type   EventType
	RunID  string
	Status Status
	Suite  *types.Suite
	Test   *types.Test
	Result *expect.Result
	Err    error
	Time   time.Time
}

// Observer receives runner events. OnEvent is called from the scheduling
// goroutine and must not block for long.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
