package possync

import (
	"time"

	"github.com/bft-labs/possync/internal/app"
	"github.com/bft-labs/possync/internal/domain"
)

// State is the lifecycle state of a Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// PassEvent describes a finished sync pass.
type PassEvent struct {
	Attempted int
	Synced    int
	Failed    int
	Duration  time.Duration
}

// SubmitSuccessEvent is emitted when a transaction is accepted and marked.
type SubmitSuccessEvent struct {
	ID       string
	Duration time.Duration
}

// SubmitErrorEvent is emitted when a transaction could not be synced.
// Permanent is true when the tenant service rejected the payload itself;
// the transaction is still retried on the next pass.
type SubmitErrorEvent struct {
	ID        string
	Error     error
	Permanent bool
}

// StatusEvent carries a changed sync status.
type StatusEvent struct {
	Status Status
}

// EventHandler receives service events. Calls are synchronous from the
// goroutine that produced the event; implementations should return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnPassStart()
	OnPassEnd(event PassEvent)
	OnSubmitSuccess(event SubmitSuccessEvent)
	OnSubmitError(event SubmitErrorEvent)
	OnStatusChange(event StatusEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only the events you need.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent)     {}
func (BaseEventHandler) OnPassStart()                       {}
func (BaseEventHandler) OnPassEnd(PassEvent)                {}
func (BaseEventHandler) OnSubmitSuccess(SubmitSuccessEvent) {}
func (BaseEventHandler) OnSubmitError(SubmitErrorEvent)     {}
func (BaseEventHandler) OnStatusChange(StatusEvent)         {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnPassStart() {
	if e.handler == nil {
		return
	}
	e.handler.OnPassStart()
}

func (e *eventEmitterWrapper) OnPassEnd(result app.PassResult) {
	if e.handler == nil {
		return
	}
	e.handler.OnPassEnd(convertPass(result))
}

func (e *eventEmitterWrapper) OnSubmitSuccess(id string, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnSubmitSuccess(SubmitSuccessEvent{ID: id, Duration: duration})
}

func (e *eventEmitterWrapper) OnSubmitError(id string, err error, permanent bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnSubmitError(SubmitErrorEvent{ID: id, Error: err, Permanent: permanent})
}

func (e *eventEmitterWrapper) onStatus(st domain.Status) {
	if e.handler == nil {
		return
	}
	e.handler.OnStatusChange(StatusEvent{Status: st})
}

func convertPass(r app.PassResult) PassEvent {
	return PassEvent{
		Attempted: r.Attempted,
		Synced:    r.Synced,
		Failed:    r.Failed,
		Duration:  r.Duration,
	}
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}

var (
	_ app.EventEmitter     = (*eventEmitterWrapper)(nil)
	_ app.PassEventEmitter = (*eventEmitterWrapper)(nil)
)
