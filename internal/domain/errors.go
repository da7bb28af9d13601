package domain

import "errors"

// Error taxonomy for the simulation core. All of them except
// ErrInvariantViolation are recoverable inside a cycle.
var (
	// ErrInvalidSignal: missing/out-of-range probability, stale forecast or LOW confidence.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrInsufficientCapital: sizing or reservation would exceed available funds.
	ErrInsufficientCapital = errors.New("insufficient capital")
	// ErrNonPositivePrice: a fill would divide by a non-positive price.
	ErrNonPositivePrice = errors.New("non-positive price")
	// ErrLedgerInconsistency: booked allocation differs from live cost bases.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
	// ErrDuplicateAction: the record duplicates an existing logical action.
	ErrDuplicateAction = errors.New("duplicate action")
	// ErrCorruptRecord: a log line does not parse or its hash does not verify.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrInvariantViolation halts the cycle: it signals a logic defect.
	ErrInvariantViolation = errors.New("invariant violation")
)
