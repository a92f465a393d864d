package domain

import "fmt"

// Kind is the error taxonomy surfaced by the public operations. It is
// a signalled kind, not a distinct Go type per case, so callers can
// switch on it without type assertions.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindPolicyViolation      Kind = "policy_violation"
	KindNotFound             Kind = "not_found"
	KindLocalUnreachable     Kind = "local_unreachable"
	KindAgentNotFound        Kind = "agent_not_found"
	KindTunnelStartupFailure Kind = "tunnel_startup_failure"
	KindAgentExitWhileRunning Kind = "agent_exit_while_running"
	KindRateLimited          Kind = "rate_limited"
	KindUnauthorized         Kind = "unauthorized"
	KindPathNotAllowed       Kind = "path_not_allowed"
	KindInvalidRange         Kind = "invalid_range"
	KindInternal             Kind = "internal_error"
)

// Error is the typed wrapping error the core returns from its public
// surface. Op names the operation that failed ("expose_port", "stop",
// ...); SessionID is set when the failure is scoped to one session.
type Error struct {
	Kind      Kind
	Op        string
	SessionID string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.SessionID, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error with a formatted message.
func NewError(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error around an existing error.
func WrapError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Message: err.Error()}
}

// WithSession returns a copy of e scoped to the given session id.
func (e *Error) WithSession(id string) *Error {
	c := *e
	c.SessionID = id
	return &c
}
