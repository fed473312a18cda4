package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")

	// State-guard violations: the operation is invalid in the entity's
	// current state. Always fatal to the call, never partially applied.
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrDeadlinePassed     = errors.New("deadline has passed")
	ErrDeadlineNotReached = errors.New("deadline not yet reached")
	ErrDisputeWindowOpen  = errors.New("dispute window still open")
	ErrRangeBusy          = errors.New("range has an active claim")

	// Integrity violations: funds stay locked, state unchanged.
	ErrCommitMismatch = errors.New("revealed proof does not match commitment")

	// Resource violations.
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientReserve = errors.New("insufficient position reserve")
	ErrAmountZero          = errors.New("amount must be positive")

	// Idempotence guards.
	ErrAlreadyResolved = errors.New("condition already resolved")
	ErrAlreadyClaimed  = errors.New("already claimed")
	ErrAlreadyVerified = errors.New("already verified by this party")
	ErrSelfVerification = errors.New("cannot verify own work")

	// ErrNotSupported marks dispute/slash paths that are designed but
	// intentionally unimplemented. Callers can distinguish "feature absent"
	// from a guard failure.
	ErrNotSupported = errors.New("not supported in this version")

	// ErrReentrancy is returned when a state-mutating call arrives while
	// another transition on the same entity is in flight.
	ErrReentrancy = errors.New("re-entrant call rejected")
)
