package domain

import "time"

// Bounty is one collaborative problem split into a fixed number of ranges.
// Workers claim ranges individually and settle against the shared reward pool.
type Bounty struct {
	ID              uint64
	Creator         string
	Description     string
	TotalRanges     uint64
	StakePerRange   uint64 // stake pulled from a worker on each claim
	RewardPool      uint64 // grows when timed-out claims are slashed
	CompletedRanges uint64
	Solved          bool
	Cancelled       bool
	CreatedAt       time.Time
	Deadline        time.Time
	ClaimWindow     time.Duration // a claim not submitted within this window may be slashed
	UpdatedAt       time.Time
}

// RangeWork tracks the in-flight claim on one range of a bounty. Keyed by
// (bounty id, range index).
type RangeWork struct {
	BountyID      uint64
	RangeIndex    uint64
	Worker        string // current claimant
	ClaimedAt     time.Time
	SubmittedAt   *time.Time
	ProofHash     string
	Verifications uint64
	Verified      bool // monotonic, never reverts
	Slashed       bool
	Verifiers     []string // addresses that already voted, for double-vote rejection
}

// Submitted reports whether the current claim cycle has a proof on record.
func (r RangeWork) Submitted() bool {
	return r.SubmittedAt != nil
}

// Contribution accumulates one participant's work on a bounty. Keyed by
// (bounty id, participant address).
type Contribution struct {
	BountyID            uint64
	Participant         string
	RangesCompleted     uint64
	VerificationsDone   uint64
	FirstContributionAt time.Time // earliest claim across the whole bounty
	StakedAmount        uint64    // currently at risk, returned with the reward claim
	RewardClaimed       bool
}
