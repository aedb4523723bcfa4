// Package handshaker contains the TLS handshake state machine. The
// machine drives a possibly-interrupted non-blocking handshake to
// completion across repeated polls from an external executor. TLS
// handshakes require several message round trips: this design folds
// them into the same poll-driven model as the raw connect, without
// blocking the calling goroutine.
package handshaker

import (
	"github.com/ooni/httpsx/errorsx"
	"github.com/ooni/httpsx/model"
)

// State is the state of the handshake machine.
type State int

const (
	// Started is the initial state. The machine holds the outcome
	// of a first, eagerly attempted handshake step performed at
	// construction.
	Started = State(iota)

	// Suspended means the handshake was interrupted and awaits
	// another poll.
	Suspended

	// Complete is the terminal success state.
	Complete

	// Failed is the terminal failure state.
	Failed
)

// Machine represents exactly one pending handshake attempt. Once the
// machine reaches Complete or Failed, polling it again is a contract
// violation, not a recoverable error.
type Machine struct {
	err     error
	partial model.TLSPartialSession
	session model.TLSSession
	state   State
}

// Start begins a handshake using the given backend, eagerly
// performing the first non-blocking handshake step.
func Start(backend model.TLSBackend, opts model.HandshakeOptions,
	raw model.RawStream) *Machine {
	m := &Machine{state: Started}
	m.session, m.partial, m.err = backend.BeginHandshake(opts, raw)
	return m
}

// Poll applies one state transition. It returns the session when the
// handshake completes, a HandshakeError wrapping the backend error
// when it fails, or model.ErrWouldBlock when it is still interrupted
// and the caller should re-poll after Ready fires. Polling after the
// machine reached a terminal state panics with a ContractViolation.
func (m *Machine) Poll() (model.TLSSession, error) {
	switch m.state {
	case Complete, Failed:
		panic(&errorsx.ContractViolation{
			Op: "handshaker: poll after terminal state",
		})
	}
	if m.err != nil {
		m.state = Failed
		return nil, &errorsx.HandshakeError{Err: m.err}
	}
	if m.session != nil {
		m.state = Complete
		return m.session, nil
	}
	session, partial, err := m.partial.ResumeHandshake()
	switch {
	case err != nil:
		m.state, m.err = Failed, err
		return nil, &errorsx.HandshakeError{Err: err}
	case session != nil:
		m.state, m.session = Complete, session
		return session, nil
	default:
		m.state, m.partial = Suspended, partial
		return nil, model.ErrWouldBlock
	}
}

// State returns the current state of the machine.
func (m *Machine) State() State {
	return m.state
}

// Ready returns a channel that is closed when re-polling the machine
// may make progress. When the machine already holds a resolved
// outcome the channel is closed immediately.
func (m *Machine) Ready() <-chan struct{} {
	if m.partial != nil {
		return m.partial.Ready()
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Close abandons a still-pending handshake and releases the partial
// session and the raw transport beneath it. Close is legal in any
// state and is idempotent.
func (m *Machine) Close() error {
	if m.partial == nil || m.state == Complete || m.state == Failed {
		return nil
	}
	partial := m.partial
	m.partial = nil
	return partial.Close()
}
