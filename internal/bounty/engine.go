// Package bounty implements the multi-party contribution and reward engine:
// many workers claim, solve, and cross-verify ranges of one shared problem and
// settle against a pooled reward. Per-range lifecycle is
// Unclaimed → Claimed → Submitted → Verified, with slash-and-reclaim of
// timed-out claims.
package bounty

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/domain"
	"github.com/alanyoungcy/stakeboard/internal/vault"
)

const (
	// VerificationThreshold is the number of positive votes that marks a
	// range verified.
	VerificationThreshold = 2
	// VerifierBPS is the share of the reward pool reserved for verifiers,
	// in basis points.
	VerifierBPS = 2000
	bpsDenom    = 10_000
)

type rangeKey struct {
	bounty uint64
	index  uint64
}

type contribKey struct {
	bounty      uint64
	participant string
}

// Engine owns the arena of bounty, range, and contribution records.
type Engine struct {
	mu       sync.Mutex
	clock    domain.Clock
	vault    *vault.Vault
	guard    map[uint64]bool // per-bounty in-flight flag
	bounties []*domain.Bounty
	ranges   map[rangeKey]*domain.RangeWork
	contribs map[contribKey]*domain.Contribution
}

// New creates an Engine custodying pools and stakes in the given vault.
func New(v *vault.Vault, clock domain.Clock) *Engine {
	return &Engine{
		clock:    clock,
		vault:    v,
		guard:    make(map[uint64]bool),
		ranges:   make(map[rangeKey]*domain.RangeWork),
		contribs: make(map[contribKey]*domain.Contribution),
	}
}

// enter sets the per-bounty in-flight flag. Caller must not hold e.mu.
func (e *Engine) enter(id uint64) (release func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.guard[id] {
		return nil, domain.ErrReentrancy
	}
	e.guard[id] = true
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.guard, id)
	}, nil
}

func (e *Engine) get(id uint64) (*domain.Bounty, error) {
	if id == 0 || id > uint64(len(e.bounties)) {
		return nil, domain.ErrNotFound
	}
	return e.bounties[id-1], nil
}

// contribution returns the record for (bountyID, participant), creating it on
// first use. Caller must hold e.mu.
func (e *Engine) contribution(bountyID uint64, participant string) *domain.Contribution {
	k := contribKey{bounty: bountyID, participant: participant}
	c, ok := e.contribs[k]
	if !ok {
		c = &domain.Contribution{BountyID: bountyID, Participant: participant}
		e.contribs[k] = c
	}
	return c
}

// Get returns a snapshot of the bounty.
func (e *Engine) Get(id uint64) (domain.Bounty, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.get(id)
	if err != nil {
		return domain.Bounty{}, err
	}
	return *b, nil
}

// GetRange returns a snapshot of one range's work record.
func (e *Engine) GetRange(bountyID, index uint64) (domain.RangeWork, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.ranges[rangeKey{bounty: bountyID, index: index}]
	if !ok {
		return domain.RangeWork{}, domain.ErrNotFound
	}
	return *r, nil
}

// GetContribution returns a snapshot of one participant's contribution.
func (e *Engine) GetContribution(bountyID uint64, participant string) (domain.Contribution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contribs[contribKey{bounty: bountyID, participant: participant}]
	if !ok {
		return domain.Contribution{}, domain.ErrNotFound
	}
	return *c, nil
}

// List returns snapshots of all bounties.
func (e *Engine) List() []domain.Bounty {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Bounty, 0, len(e.bounties))
	for _, b := range e.bounties {
		out = append(out, *b)
	}
	return out
}

// Create opens a bounty, pulling the reward pool from the creator.
func (e *Engine) Create(creator, description string, totalRanges, stakePerRange, rewardPool uint64, deadline time.Time, claimWindow time.Duration) (domain.Bounty, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if totalRanges == 0 {
		return domain.Bounty{}, fmt.Errorf("bounty: create: must have at least one range")
	}
	if rewardPool == 0 {
		return domain.Bounty{}, domain.ErrAmountZero
	}
	if !deadline.After(now) {
		return domain.Bounty{}, fmt.Errorf("bounty: create: %w", domain.ErrDeadlinePassed)
	}

	id := uint64(len(e.bounties)) + 1
	if err := e.vault.Deposit(vault.BountyKey(id), creator, rewardPool); err != nil {
		return domain.Bounty{}, err
	}

	b := &domain.Bounty{
		ID:            id,
		Creator:       creator,
		Description:   description,
		TotalRanges:   totalRanges,
		StakePerRange: stakePerRange,
		RewardPool:    rewardPool,
		CreatedAt:     now,
		Deadline:      deadline,
		ClaimWindow:   claimWindow,
		UpdatedAt:     now,
	}
	e.bounties = append(e.bounties, b)
	return *b, nil
}

// ClaimResult reports what a claim did, including whether a previous timed-out
// claim was slashed to the pool on the way in.
type ClaimResult struct {
	Range         domain.RangeWork
	SlashedWorker string
	SlashedAmount uint64
}

// Claim takes a range for the worker. A previous claim that was neither
// submitted nor timed out blocks the call; a timed-out one forfeits its stake
// to the reward pool before the new claim proceeds. The worker's stake (if the
// bounty requires one) is pulled atomically with the claim.
func (e *Engine) Claim(bountyID uint64, worker string, index uint64) (ClaimResult, error) {
	release, err := e.enter(bountyID)
	if err != nil {
		return ClaimResult{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.get(bountyID)
	if err != nil {
		return ClaimResult{}, err
	}
	now := e.clock.Now()
	if b.Solved || b.Cancelled {
		return ClaimResult{}, fmt.Errorf("bounty: claim %d/%d: %w", bountyID, index, domain.ErrInvalidState)
	}
	if !now.Before(b.Deadline) {
		return ClaimResult{}, fmt.Errorf("bounty: claim %d/%d: %w", bountyID, index, domain.ErrDeadlinePassed)
	}
	if index >= b.TotalRanges {
		return ClaimResult{}, fmt.Errorf("bounty: claim %d/%d: %w", bountyID, index, domain.ErrNotFound)
	}

	var res ClaimResult
	k := rangeKey{bounty: bountyID, index: index}
	r, exists := e.ranges[k]
	if exists {
		if r.Verified {
			return ClaimResult{}, fmt.Errorf("bounty: claim %d/%d: %w", bountyID, index, domain.ErrInvalidState)
		}
		if r.Worker != "" {
			// Submitted work blocks re-claim by anyone; an unsubmitted
			// claim blocks until its window lapses.
			if r.Submitted() || now.Before(r.ClaimedAt.Add(b.ClaimWindow)) {
				return ClaimResult{}, fmt.Errorf("bounty: claim %d/%d: %w", bountyID, index, domain.ErrRangeBusy)
			}
			// Timed out: forfeit one claim's stake to the pool. The clamp
			// keeps a worker's other live claims funded; the displaced
			// worker is always named so the slash leaves a trace.
			prev := e.contribution(bountyID, r.Worker)
			slash := b.StakePerRange
			if slash > prev.StakedAmount {
				slash = prev.StakedAmount
			}
			prev.StakedAmount -= slash
			b.RewardPool += slash
			res.SlashedWorker = r.Worker
			res.SlashedAmount = slash
			r.Slashed = true
		}
	}

	if b.StakePerRange > 0 {
		if err := e.vault.Deposit(vault.BountyKey(bountyID), worker, b.StakePerRange); err != nil {
			return ClaimResult{}, err
		}
	}

	if !exists {
		r = &domain.RangeWork{BountyID: bountyID, RangeIndex: index}
		e.ranges[k] = r
	}
	r.Worker = worker
	r.ClaimedAt = now
	r.SubmittedAt = nil
	r.ProofHash = ""
	r.Slashed = false

	c := e.contribution(bountyID, worker)
	if c.FirstContributionAt.IsZero() {
		c.FirstContributionAt = now
	}
	c.StakedAmount += b.StakePerRange
	b.UpdatedAt = now

	res.Range = *r
	return res, nil
}

// Submit records the proof hash for a claimed range. Only the current
// claimant, only inside the claim window, only once per claim cycle.
func (e *Engine) Submit(bountyID uint64, worker string, index uint64, proofHash string) (domain.RangeWork, error) {
	release, err := e.enter(bountyID)
	if err != nil {
		return domain.RangeWork{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.get(bountyID)
	if err != nil {
		return domain.RangeWork{}, err
	}
	r, ok := e.ranges[rangeKey{bounty: bountyID, index: index}]
	if !ok || r.Worker == "" {
		return domain.RangeWork{}, domain.ErrNotFound
	}
	if r.Worker != worker {
		return domain.RangeWork{}, fmt.Errorf("bounty: submit %d/%d: %w", bountyID, index, domain.ErrUnauthorized)
	}
	if r.Submitted() {
		return domain.RangeWork{}, fmt.Errorf("bounty: submit %d/%d: %w", bountyID, index, domain.ErrAlreadyExists)
	}
	now := e.clock.Now()
	if !now.Before(r.ClaimedAt.Add(b.ClaimWindow)) {
		return domain.RangeWork{}, fmt.Errorf("bounty: submit %d/%d: %w", bountyID, index, domain.ErrDeadlinePassed)
	}

	r.SubmittedAt = &now
	r.ProofHash = proofHash
	b.UpdatedAt = now
	return *r, nil
}

// VerifyResult reports the outcome of a verification vote.
type VerifyResult struct {
	Range       domain.RangeWork
	Fraud       bool // negative vote; no state changed
	NewlySolved bool // this vote completed the whole bounty
}

// Verify casts a verification vote on a submitted range. Self-verification
// and double votes are rejected. A negative vote emits a fraud signal without
// changing state (dispute resolution is a v2 requirement). On the vote that
// first crosses the threshold the range is marked verified, counters advance,
// and the bounty may flip to solved.
func (e *Engine) Verify(bountyID uint64, verifier string, index uint64, valid bool) (VerifyResult, error) {
	release, err := e.enter(bountyID)
	if err != nil {
		return VerifyResult{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.get(bountyID)
	if err != nil {
		return VerifyResult{}, err
	}
	r, ok := e.ranges[rangeKey{bounty: bountyID, index: index}]
	if !ok || !r.Submitted() {
		return VerifyResult{}, domain.ErrNotFound
	}
	if verifier == r.Worker {
		return VerifyResult{}, fmt.Errorf("bounty: verify %d/%d: %w", bountyID, index, domain.ErrSelfVerification)
	}
	for _, v := range r.Verifiers {
		if v == verifier {
			return VerifyResult{}, fmt.Errorf("bounty: verify %d/%d: %w", bountyID, index, domain.ErrAlreadyVerified)
		}
	}

	if !valid {
		return VerifyResult{Range: *r, Fraud: true}, nil
	}

	now := e.clock.Now()
	r.Verifiers = append(r.Verifiers, verifier)
	r.Verifications++

	// FirstContributionAt is stamped by Claim only; a verification vote does
	// not count as first contact for the early bonus.
	e.contribution(bountyID, verifier).VerificationsDone++

	var res VerifyResult
	if !r.Verified && r.Verifications >= VerificationThreshold {
		r.Verified = true
		b.CompletedRanges++
		e.contribution(bountyID, r.Worker).RangesCompleted++
		if b.CompletedRanges == b.TotalRanges {
			b.Solved = true
			res.NewlySolved = true
		}
	}
	b.UpdatedAt = now
	res.Range = *r
	return res, nil
}

// Cancel closes an unsolved bounty to further claiming. Creator only. Staked
// amounts already at risk remain withdrawable via ClaimRewards.
func (e *Engine) Cancel(bountyID uint64, caller string) (domain.Bounty, error) {
	release, err := e.enter(bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.get(bountyID)
	if err != nil {
		return domain.Bounty{}, err
	}
	if caller != b.Creator {
		return domain.Bounty{}, fmt.Errorf("bounty: cancel %d: %w", bountyID, domain.ErrUnauthorized)
	}
	if b.Solved || b.Cancelled {
		return domain.Bounty{}, fmt.Errorf("bounty: cancel %d: %w", bountyID, domain.ErrInvalidState)
	}

	b.Cancelled = true
	b.UpdatedAt = e.clock.Now()
	return *b, nil
}

// ClaimRewards pays a participant their computed reward plus any staked amount
// still on record. Claimable exactly once per (bounty, participant), and only
// once the bounty is solved, cancelled, or past its deadline: while claiming is
// still open the stakes stay at risk, so a worker cannot pull a stake back and
// abandon a live claim ahead of the timeout slash.
func (e *Engine) ClaimRewards(bountyID uint64, participant string) (reward, stakeReturned uint64, err error) {
	release, err := e.enter(bountyID)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.get(bountyID)
	if err != nil {
		return 0, 0, err
	}
	if !b.Solved && !b.Cancelled && e.clock.Now().Before(b.Deadline) {
		return 0, 0, fmt.Errorf("bounty: claim rewards %d: %w", bountyID, domain.ErrInvalidState)
	}
	c, ok := e.contribs[contribKey{bounty: bountyID, participant: participant}]
	if !ok {
		return 0, 0, domain.ErrNotFound
	}
	if c.RewardClaimed {
		return 0, 0, fmt.Errorf("bounty: claim rewards %d: %w", bountyID, domain.ErrAlreadyClaimed)
	}

	reward = calculateReward(*b, *c)
	stakeReturned = c.StakedAmount

	if total := reward + stakeReturned; total > 0 {
		if err := e.vault.Release(vault.BountyKey(bountyID), participant, total); err != nil {
			return 0, 0, err
		}
	}

	c.RewardClaimed = true
	c.StakedAmount = 0
	b.UpdatedAt = e.clock.Now()
	return reward, stakeReturned, nil
}

// CalculateReward previews a participant's reward without paying it. Pure
// function of the current bounty and contribution state.
func (e *Engine) CalculateReward(bountyID uint64, participant string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.get(bountyID)
	if err != nil {
		return 0, err
	}
	c, ok := e.contribs[contribKey{bounty: bountyID, participant: participant}]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return calculateReward(*b, *c), nil
}
