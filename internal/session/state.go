package session

import (
	"errors"
	"fmt"
	"strings"
)

// State is the binding state of a service instance session.
type State int

const (
	Unbound State = iota
	BindPending
	Ready
	StartPending
	Active
	StopPending
	UnbindPending
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "UNBOUND"
	case BindPending:
		return "BIND-PENDING"
	case Ready:
		return "READY"
	case StartPending:
		return "START-PENDING"
	case Active:
		return "ACTIVE"
	case StopPending:
		return "STOP-PENDING"
	case UnbindPending:
		return "UNBIND-PENDING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Bound reports whether the session has an established binding.
func (s State) Bound() bool {
	switch s {
	case Ready, StartPending, Active, StopPending:
		return true
	default:
		return false
	}
}

// Role distinguishes the two ends of a service instance.
type Role int

const (
	RoleUser Role = iota
	RoleProvider
)

func (r Role) String() string {
	if r == RoleProvider {
		return "provider"
	}
	return "user"
}

// ParseRole maps a configuration string to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "user":
		return RoleUser, nil
	case "provider":
		return RoleProvider, nil
	default:
		return RoleUser, fmt.Errorf("unknown role %q", s)
	}
}

// AuthMode selects which operations carry and require ISP1 credentials.
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthBind
	AuthAll
)

func (m AuthMode) String() string {
	switch m {
	case AuthBind:
		return "bind"
	case AuthAll:
		return "all"
	default:
		return "none"
	}
}

// ParseAuthMode maps a configuration string to an AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(s) {
	case "none":
		return AuthNone, nil
	case "bind":
		return AuthBind, nil
	case "all":
		return AuthAll, nil
	default:
		return AuthNone, fmt.Errorf("unknown auth mode %q", s)
	}
}

// AuthFailurePolicy selects what happens when a data PDU fails
// authentication: drop the PDU and keep the session, or abort it.
type AuthFailurePolicy int

const (
	AuthFailureDrop AuthFailurePolicy = iota
	AuthFailureAbort
)

func (p AuthFailurePolicy) String() string {
	if p == AuthFailureAbort {
		return "abort"
	}
	return "drop"
}

// ParseAuthFailurePolicy maps a configuration string to a policy.
func ParseAuthFailurePolicy(s string) (AuthFailurePolicy, error) {
	switch strings.ToLower(s) {
	case "drop":
		return AuthFailureDrop, nil
	case "abort":
		return AuthFailureAbort, nil
	default:
		return AuthFailureDrop, fmt.Errorf("unknown auth failure policy %q", s)
	}
}

var (
	// ErrProtocolViolation reports an operation invoked in a state where it
	// is not legal. The session state is left unchanged.
	ErrProtocolViolation = errors.New("operation not legal in current state")

	// ErrBindRejected reports a negative BIND-RETURN from the peer.
	ErrBindRejected = errors.New("bind rejected by peer")

	// ErrStartRejected reports a negative START-RETURN from the peer.
	ErrStartRejected = errors.New("start rejected by peer")

	// ErrStopRejected reports a negative STOP-RETURN from the peer.
	ErrStopRejected = errors.New("stop rejected by peer")

	// ErrBindTimeout reports a missing BIND-RETURN within the response
	// timeout. The session falls back to UNBOUND.
	ErrBindTimeout = errors.New("bind confirmation timeout")

	// ErrStartTimeout reports a missing START-RETURN. The session falls
	// back to READY.
	ErrStartTimeout = errors.New("start confirmation timeout")

	// ErrStopTimeout reports a missing STOP-RETURN. The session falls back
	// to ACTIVE.
	ErrStopTimeout = errors.New("stop confirmation timeout")

	// ErrUnbindTimeout reports a missing UNBIND-RETURN. The local unbind
	// still completes; the timeout is reported as a distinct outcome.
	ErrUnbindTimeout = errors.New("unbind confirmation timeout")

	// errConfirmationTimeout is the internal marker mapped onto the
	// operation-specific timeout errors above.
	errConfirmationTimeout = errors.New("confirmation timeout")
)
