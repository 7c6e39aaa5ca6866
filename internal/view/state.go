// Package view holds the per-page state machines and page models. Handlers
// ask the Controller for a page, then hand it to the templates.
package view

import (
	"errors"
	"fmt"

	"room-web/internal/domain"
)

var ErrInvalidTransition = errors.New("invalid view state transition")

// Phase is the data state of a page.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhaseSubmitting
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseSubmitting:
		return "submitting"
	case PhaseError:
		return "error"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

var transitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseLoading},
	PhaseLoading:    {PhaseReady, PhaseError},
	PhaseReady:      {PhaseSubmitting, PhaseLoading},
	PhaseSubmitting: {PhaseReady, PhaseError},
	PhaseError:      {PhaseLoading, PhaseSubmitting},
}

// Machine enforces the allowed phase transitions.
type Machine struct {
	phase Phase
	err   error
}

func (m *Machine) Phase() Phase { return m.phase }
func (m *Machine) Err() error { return m.err }

func (m *Machine) to(next Phase) error {
	for _, allowed := range transitions[m.phase] {
		if allowed == next {
			m.phase = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.phase, next)
}

// Load enters Loading.
func (m *Machine) Load() error {
	m.err = nil
	return m.to(PhaseLoading)
}

// Submit enters Submitting.
func (m *Machine) Submit() error {
	m.err = nil
	return m.to(PhaseSubmitting)
}

// Settle leaves Loading or Submitting for Ready, or Error when err is set.
func (m *Machine) Settle(err error) error {
	if m.phase != PhaseLoading && m.phase != PhaseSubmitting {
		return fmt.Errorf("%w: settle from %s", ErrInvalidTransition, m.phase)
	}
	if err != nil {
		m.err = err
		return m.to(PhaseError)
	}
	return m.to(PhaseReady)
}

// AuthState is what the page knows about the visitor.
type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthAuthenticated
	AuthAnonymous
	// AuthUnavailable means the session lookup failed; the visitor may well
	// be signed in.
	AuthUnavailable
)

func (a AuthState) String() string {
	switch a {
	case AuthAuthenticated:
		return "authenticated"
	case AuthAnonymous:
		return "anonymous"
	case AuthUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// ResolveAuth maps a session lookup result to an auth state.
func ResolveAuth(sess *domain.Session, err error) AuthState {
	switch {
	case err != nil:
		return AuthUnavailable
	case sess.Authenticated():
		return AuthAuthenticated
	default:
		return AuthAnonymous
	}
}
