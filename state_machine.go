package cometd

import (
	"sync/atomic"
)

// State is the protocol state of a client session
type State int32

const (
	// Disconnected is both the initial and the terminal state
	Disconnected State = iota
	// Handshaking means a /meta/handshake request is outstanding
	Handshaking
	// Connected means the handshake succeeded and a client id is assigned
	Connected
	// Disconnecting means a /meta/disconnect request is outstanding
	Disconnecting
)

var stateNames = []string{"DISCONNECTED", "HANDSHAKING", "CONNECTED", "DISCONNECTING"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Event represents and event that can change the state of a state machine
type Event string

const (
	handshakeSent       Event = "handshake request sent"
	handshakeSucceeded  Event = "successful handshake response"
	disconnectSent      Event = "disconnect request sent"
	disconnectSucceeded Event = "successful disconnect response"
	reset               Event = "reset"
)

// ConnectionStateMachine handles managing the connection's state. Every
// transition is a single compare-and-swap so transitions are serialized
// relative to each other.
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type ConnectionStateMachine struct {
	currentState atomic.Int32
}

// NewConnectionStateMachine creates a new ConnectionStateMachine to manage a
// connection's state
func NewConnectionStateMachine() *ConnectionStateMachine {
	return &ConnectionStateMachine{}
}

// IsConnected reflects whether the connection is connected to the Bayeux
// server
func (csm *ConnectionStateMachine) IsConnected() bool {
	return csm.CurrentState() == Connected
}

// CurrentState provides the current state of the state machine
func (csm *ConnectionStateMachine) CurrentState() State {
	return State(csm.currentState.Load())
}

// Expect returns a StateError for channel unless the machine is in one of the
// given states.
func (csm *ConnectionStateMachine) Expect(channel Channel, states ...State) error {
	current := csm.CurrentState()
	for _, s := range states {
		if s == current {
			return nil
		}
	}
	return StateError{Channel: channel, Current: current, Expected: states}
}

// ProcessEvent handles an event
func (csm *ConnectionStateMachine) ProcessEvent(e Event) error {
	switch e {
	case handshakeSent:
		return csm.transition(MetaHandshake, Disconnected, Handshaking)
	case handshakeSucceeded:
		return csm.transition(MetaHandshake, Handshaking, Connected)
	case disconnectSent:
		return csm.transition(MetaDisconnect, Connected, Disconnecting)
	case disconnectSucceeded:
		return csm.transition(MetaDisconnect, Disconnecting, Disconnected)
	case reset:
		csm.currentState.Store(int32(Disconnected))
	default:
		return UnknownEventTypeError{e}
	}
	return nil
}

func (csm *ConnectionStateMachine) transition(channel Channel, from, to State) error {
	if !csm.currentState.CompareAndSwap(int32(from), int32(to)) {
		return StateError{Channel: channel, Current: csm.CurrentState(), Expected: []State{from}}
	}
	return nil
}
