package claim

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation              = errors.New("validation error")
	ErrInvalidState            = errors.New("invalid state")
	ErrConflict                = errors.New("idempotency key conflict")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrPayoutFailed            = errors.New("payout failed")
	ErrNotFound                = errors.New("not found")
)

// Error carries the kind of failure together with the claim context a caller needs
// to explain it. errors.Is matches the kind sentinel.
type Error struct {
	Kind   error
	Op     Operation
	Claim  string
	State  Status
	Field  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(string(e.Op))
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Claim != "" {
		fmt.Fprintf(&b, " (claim %s", e.Claim)
		if e.State != "" {
			fmt.Fprintf(&b, ", state %s", e.State)
		}
		b.WriteString(")")
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := []error{e.Kind}
	if errors.Is(e.Kind, ErrPayoutFailed) {
		out = append(out, ErrCollaboratorUnavailable)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func Validation(op Operation, field string, detail string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Field: field, Detail: detail}
}

func InvalidState(op Operation, claimRef string, state Status, detail string) *Error {
	return &Error{Kind: ErrInvalidState, Op: op, Claim: claimRef, State: state, Detail: detail}
}

func Conflict(op Operation, claimRef string, detail string) *Error {
	return &Error{Kind: ErrConflict, Op: op, Claim: claimRef, Field: "idempotencyKey", Detail: detail}
}

func ConcurrentModification(op Operation, claimRef string, state Status) *Error {
	return &Error{
		Kind:   ErrConcurrentModification,
		Op:     op,
		Claim:  claimRef,
		State:  state,
		Detail: "claim changed since it was read; re-fetch and retry",
	}
}

func CollaboratorUnavailable(op Operation, claimRef string, collaborator string, cause error) *Error {
	return &Error{Kind: ErrCollaboratorUnavailable, Op: op, Claim: claimRef, Detail: collaborator, Err: cause}
}

func PayoutFailed(claimRef string, state Status, cause error) *Error {
	return &Error{Kind: ErrPayoutFailed, Op: OpProcessPayout, Claim: claimRef, State: state, Err: cause}
}

func NotFound(op Operation, what string, ref string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Detail: fmt.Sprintf("%s %q", what, ref)}
}

// Kind maps err to a stable, lower-case kind name for callers outside the engine.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrPayoutFailed):
		return "payout_failed"
	case errors.Is(err, ErrCollaboratorUnavailable):
		return "collaborator_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// Details extracts the structured part of err, if any.
func Details(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
