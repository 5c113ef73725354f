// Package stream retrieves the asynchronous result of a processing
// session over a server-sent-event connection.
//
// The lifecycle is modelled as an explicit state machine so that the
// event-driven callback flow of the transport can be tested without a
// network connection:
//
//	Idle → Connecting → (Delivered | TimedOut | Failed | Cancelled)
//
// Exactly one terminal event is honoured per subscription. The transport
// is torn down synchronously inside the first terminal transition, so any
// later events on the same handle are no-ops. There is no reconnection
// and no client-side watchdog: the backend signals timeouts itself.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/climbinsight/climbinsight-go/pkg/types"
)

// ErrNoSession means no session identifier is available, so there is
// nothing to fetch
var ErrNoSession = errors.New("no session identifier")

// ErrTimeout is the backend-signalled processing timeout. The in-flight
// session is abandoned and the user starts over.
var ErrTimeout = errors.New("processing timed out")

// ErrStream covers connection-level failures and malformed terminal
// payloads. Like a timeout, it is terminal for the attempt.
var ErrStream = errors.New("result stream failed")

// ErrCancelled reports a consumer-initiated teardown. It is a silent
// resource-cleanup outcome, never shown to the user.
var ErrCancelled = errors.New("subscription cancelled")

// State of a result subscription
type State int

const (
	// StateIdle means no session identifier is available
	StateIdle State = iota
	// StateConnecting means the stream is open and awaiting a terminal event
	StateConnecting
	// StateDelivered means the result payload arrived
	StateDelivered
	// StateTimedOut means the backend signalled a processing timeout
	StateTimedOut
	// StateFailed means the transport failed or the payload was malformed
	StateFailed
	// StateCancelled means the consumer tore the subscription down first
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDelivered:
		return "delivered"
	case StateTimedOut:
		return "timed-out"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the subscription has finished
func (s State) Terminal() bool {
	return s != StateIdle && s != StateConnecting
}

// EventKind tags an incoming stream event
type EventKind int

const (
	// EventMessage is the default SSE message carrying the result JSON
	EventMessage EventKind = iota
	// EventTimeout is the named "timeout" event
	EventTimeout
	// EventTransportError is a connection-level failure
	EventTransportError
	// EventCancel is consumer teardown (unmount, navigation away)
	EventCancel
)

// Event is one input to the state machine
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Effect is the user-visible consequence of a transition
type Effect int

const (
	// EffectNone means nothing is surfaced to the user
	EffectNone Effect = iota
	// EffectDeliver hands the payload to the presenter
	EffectDeliver
	// EffectNotifyTimeout notifies the user and returns to the start
	EffectNotifyTimeout
	// EffectNotifyFailure notifies the user and returns to the start
	EffectNotifyFailure
)

// Outcome is the result of one transition step
type Outcome struct {
	State   State
	Effect  Effect
	Payload *types.ResultPayload
	Err     error
}

// resultBody accepts both field spellings the backend has used for the
// generated text
type resultBody struct {
	Image    string `json:"image"`
	Contents string `json:"contents"`
	Caption  string `json:"caption"`
}

// Transition is the pure step function of the subscription state machine.
// Events arriving in any terminal state are ignored; only the first
// terminal event out of Connecting produces an observable change.
func Transition(state State, ev Event) Outcome {
	if state != StateConnecting {
		return Outcome{State: state, Effect: EffectNone}
	}

	switch ev.Kind {
	case EventMessage:
		var body resultBody
		if err := json.Unmarshal(ev.Data, &body); err != nil {
			return Outcome{
				State:  StateFailed,
				Effect: EffectNotifyFailure,
				Err:    fmt.Errorf("%w: malformed payload: %v", ErrStream, err),
			}
		}
		contents := body.Contents
		if contents == "" {
			contents = body.Caption
		}
		return Outcome{
			State:   StateDelivered,
			Effect:  EffectDeliver,
			Payload: &types.ResultPayload{Image: body.Image, Contents: contents},
		}

	case EventTimeout:
		return Outcome{State: StateTimedOut, Effect: EffectNotifyTimeout, Err: ErrTimeout}

	case EventTransportError:
		err := ErrStream
		if ev.Err != nil {
			err = fmt.Errorf("%w: %v", ErrStream, ev.Err)
		}
		return Outcome{State: StateFailed, Effect: EffectNotifyFailure, Err: err}

	case EventCancel:
		return Outcome{State: StateCancelled, Effect: EffectNone, Err: ErrCancelled}

	default:
		return Outcome{State: state, Effect: EffectNone}
	}
}
