package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStale indicates the caller's view of the board no longer matches the persisted one.
	ErrStale = errors.New("stale board state")
	// ErrInvalid indicates malformed input.
	ErrInvalid = errors.New("invalid input")
	// ErrUnauthorized indicates the request carries no user identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the user may not read the board.
	ErrForbidden = errors.New("forbidden")
	// ErrTransient indicates a network or server failure; the operation may be retried by the user.
	ErrTransient = errors.New("transient failure")
	// ErrBusy indicates an entity already has an uncommitted mutation.
	ErrBusy = errors.New("commit in flight")
)

// PolicyError is a business-rule refusal of a structurally valid mutation.
// It is never retried automatically.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy rejected: %s", e.Reason)
}

// Reject returns a PolicyError with the given reason.
func Reject(reason string) error {
	return &PolicyError{Reason: reason}
}

// AsPolicy reports whether err is a policy rejection and returns it.
func AsPolicy(err error) (*PolicyError, bool) {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Kind classifies a failed mutation by what the client must do about it.
type Kind int

const (
	// KindNone means no error.
	KindNone Kind = iota
	// KindTransient means roll back and let the user retry.
	KindTransient
	// KindPolicy means roll back and show the rejection reason.
	KindPolicy
	// KindStale means roll back and refetch the board.
	KindStale
	// KindBusy means the mutation was refused locally because another is in flight.
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindPolicy:
		return "policy"
	case KindStale:
		return "stale"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Classify maps an error to its Kind. Unknown errors are transient.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBusy):
		return KindBusy
	}
	if _, ok := AsPolicy(err); ok {
		return KindPolicy
	}
	switch {
	case errors.Is(err, ErrStale), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalid):
		return KindStale
	default:
		return KindTransient
	}
}
