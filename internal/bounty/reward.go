package bounty

import (
	"math"
	"math/bits"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// calculateReward computes a participant's share of the pooled reward from
// final state. All arithmetic is integer in the collateral token's smallest
// unit; truncation always favors the pool, so the sum of payouts never
// exceeds it.
//
// Split:
//   - VerifierBPS of the pool is reserved for verifiers, paid per verification
//     pro-rated by range and threshold.
//   - The rest is the worker pool, shared by completed ranges.
//   - The early bonus doubles a worker's base share when both their completed
//     ranges fall within the first 10% of total ranges and their first-ever
//     claim landed within the first 10% of the bounty's span. Eligibility is
//     keyed to bounty-wide first claim on purpose, not to the claim time of
//     any particular range.
//   - Each verification the same participant performed adds 10% of their
//     (possibly doubled) base share on top of the verifier payout.
func calculateReward(b domain.Bounty, c domain.Contribution) uint64 {
	if !b.Solved || c.RangesCompleted == 0 {
		// Verifier-only reward; zero for pure bystanders.
		if c.VerificationsDone == 0 {
			return 0
		}
		verifierPool := mulDiv(b.RewardPool, VerifierBPS, bpsDenom)
		return satMul(verifierPool/b.TotalRanges, c.VerificationsDone) / VerificationThreshold
	}

	workerPool := mulDiv(b.RewardPool, bpsDenom-VerifierBPS, bpsDenom)
	base := mulDiv(workerPool, c.RangesCompleted, b.TotalRanges)

	if earlyBonusEligible(b, c) {
		base = satMul(base, 2)
	}

	return satAdd(base, satMul(base/10, c.VerificationsDone))
}

// earlyBonusEligible applies the two-sided 10% test: ranges completed within
// the first tenth of the total, and first claim within the first tenth of the
// creation-to-deadline span.
func earlyBonusEligible(b domain.Bounty, c domain.Contribution) bool {
	if satMul(c.RangesCompleted, 10) > b.TotalRanges {
		return false
	}
	if c.FirstContributionAt.IsZero() {
		return false
	}
	span := b.Deadline.Sub(b.CreatedAt)
	return c.FirstContributionAt.Sub(b.CreatedAt) <= span/10
}

// mulDiv computes a*b/div with a 128-bit intermediate. Callers keep b <= div,
// so the quotient always fits uint64.
func mulDiv(a, b, div uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, div)
	return q
}

// satMul multiplies, saturating at MaxUint64. A saturated reward can never be
// paid: the vault release fails and no funds move.
func satMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// satAdd adds, saturating at MaxUint64.
func satAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return s
}
