package domain

import "time"

// ProofScheme selects which proof/settlement sub-protocol a market uses.
type ProofScheme string

const (
	// ProofSchemeDirect accepts any proof hash at submission time.
	ProofSchemeDirect ProofScheme = "direct"
	// ProofSchemeCommitReveal requires a commitment hash at take time and a
	// matching (proof, salt) reveal at submission time.
	ProofSchemeCommitReveal ProofScheme = "commit_reveal"
)

// MarketStatus represents the lifecycle state of an escrow market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusTaken     MarketStatus = "taken"    // direct scheme, claimed by deliverer
	MarketStatusLocked    MarketStatus = "locked"   // commit-reveal scheme, commitment stored
	MarketStatusClaimed   MarketStatus = "claimed"  // direct scheme, proof submitted
	MarketStatusRevealed  MarketStatus = "revealed" // commit-reveal scheme, reveal verified
	MarketStatusCompleted MarketStatus = "completed"
	MarketStatusCancelled MarketStatus = "cancelled"
	MarketStatusExpired   MarketStatus = "expired"
	// MarketStatusSlashed is reserved for a dispute upheld against the
	// deliverer. No transition reaches it; the dispute hook returns
	// ErrNotSupported until a fraud-proof mechanism exists.
	MarketStatusSlashed MarketStatus = "slashed"
)

// Market is one escrowed task: the requester stakes collateral at creation and
// the deliverer stakes a matching amount on take. The full combined stake moves
// exactly once, on the terminal transition.
type Market struct {
	ID          uint64
	Requester   string // hex address, fixed at creation
	Deliverer   string // hex address, fixed at take
	Description string
	Stake       uint64 // per-party stake in the collateral token's smallest unit
	Scheme      ProofScheme
	Commitment  string // hex keccak256(proof || salt), commit-reveal only
	ProofHash   string // hex, set at submission
	Status      MarketStatus

	CreatedAt       time.Time
	Deadline        time.Time
	DisputeWindow   time.Duration
	DisputeDeadline *time.Time // set at proof submission
	SettledAt       *time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the market has reached a final state. Vault
// collateral attributed to a terminal market is always zero.
func (m Market) Terminal() bool {
	switch m.Status {
	case MarketStatusCompleted, MarketStatusCancelled, MarketStatusExpired, MarketStatusSlashed:
		return true
	}
	return false
}

// Proved reports whether a proof has been accepted, i.e. the market is inside
// or past its dispute window.
func (m Market) Proved() bool {
	return m.Status == MarketStatusClaimed || m.Status == MarketStatusRevealed
}

// Funded reports whether the deliverer side of the escrow is staked.
func (m Market) Funded() bool {
	switch m.Status {
	case MarketStatusTaken, MarketStatusLocked, MarketStatusClaimed, MarketStatusRevealed:
		return true
	}
	return false
}
