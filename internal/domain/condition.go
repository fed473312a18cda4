package domain

import "time"

// Condition is a prepared outcome set awaiting oracle resolution. The
// condition id is derived one-way from (oracle, question id, outcome count);
// see the ledger package for the derivation.
type Condition struct {
	ConditionID  string // hex keccak256(oracle, questionID, outcomeCount)
	Oracle       string // sole authorized reporter
	QuestionID   string // hex, 32 bytes
	OutcomeCount uint

	Resolved          bool
	PayoutNumerators  []uint64 // weight per outcome index, set exactly once
	PayoutDenominator uint64   // sum of numerators

	CreatedAt  time.Time
	ResolvedAt *time.Time
}
