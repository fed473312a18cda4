package bounty

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// rewardBounty returns a solved 100-range bounty with a 1_000_000 pool and a
// 100-hour span starting at baseTime.
func rewardBounty() domain.Bounty {
	return domain.Bounty{
		ID:          1,
		TotalRanges: 100,
		RewardPool:  1_000_000,
		Solved:      true,
		CreatedAt:   baseTime,
		Deadline:    baseTime.Add(100 * time.Hour),
	}
}

func TestWorkerBaseShare(t *testing.T) {
	b := rewardBounty()
	c := domain.Contribution{
		RangesCompleted:     20,
		FirstContributionAt: baseTime.Add(50 * time.Hour), // too late for the bonus
	}

	// workerPool = 1_000_000 * 8000/10000 = 800_000; base = 800_000*20/100.
	assert.Equal(t, uint64(160_000), calculateReward(b, c))
}

func TestEarlyBonusDoubles(t *testing.T) {
	b := rewardBounty()
	c := domain.Contribution{
		RangesCompleted:     10,                          // exactly the first 10% of ranges
		FirstContributionAt: baseTime.Add(10 * time.Hour), // exactly 10% of the span
	}

	// base = 800_000*10/100 = 80_000, doubled to 160_000.
	assert.Equal(t, uint64(160_000), calculateReward(b, c))

	// One range or one minute over the line and the multiplier is gone.
	c.RangesCompleted = 11
	assert.Equal(t, uint64(88_000), calculateReward(b, c))

	c.RangesCompleted = 10
	c.FirstContributionAt = baseTime.Add(10*time.Hour + time.Minute)
	assert.Equal(t, uint64(80_000), calculateReward(b, c))
}

// A participant who joined late but whose first-ever contact with the bounty
// fell inside the window still qualifies: eligibility is keyed to bounty-wide
// first contact, not to when the rewarded range was claimed.
func TestEarlyBonusKeyedToFirstContact(t *testing.T) {
	b := rewardBounty()
	c := domain.Contribution{
		RangesCompleted:     5,
		FirstContributionAt: baseTime.Add(time.Hour), // early first contact
	}
	// base = 800_000*5/100 = 40_000, doubled.
	assert.Equal(t, uint64(80_000), calculateReward(b, c))
}

func TestVerificationBonusOnTopOfBase(t *testing.T) {
	b := rewardBounty()
	c := domain.Contribution{
		RangesCompleted:     20,
		VerificationsDone:   3,
		FirstContributionAt: baseTime.Add(50 * time.Hour),
	}

	// base 160_000 + 3 * 10% of base.
	assert.Equal(t, uint64(208_000), calculateReward(b, c))
}

func TestVerifierOnlyReward(t *testing.T) {
	b := rewardBounty()
	c := domain.Contribution{
		VerificationsDone:   4,
		FirstContributionAt: baseTime.Add(time.Hour),
	}

	// verifierPool = 200_000; per-range slice 2_000; 4 votes / threshold 2.
	assert.Equal(t, uint64(4_000), calculateReward(b, c))
}

func TestVerifierOnlyRewardOnUnsolvedBounty(t *testing.T) {
	b := rewardBounty()
	b.Solved = false
	c := domain.Contribution{
		RangesCompleted:   1, // completed work pays nothing while unsolved
		VerificationsDone: 2,
	}
	assert.Equal(t, uint64(2_000), calculateReward(b, c))
}

// The pro-rata splits must hold even when the pool is near the uint64 ceiling.
func TestRewardMathNearUint64Ceiling(t *testing.T) {
	b := rewardBounty()
	b.RewardPool = math.MaxUint64
	c := domain.Contribution{
		RangesCompleted:     20,
		VerificationsDone:   3,
		FirstContributionAt: baseTime.Add(50 * time.Hour),
	}

	got := calculateReward(b, c)
	assert.Less(t, got, b.RewardPool)
	assert.Greater(t, got, b.RewardPool/5)

	// Verifier-only path at the same scale.
	got = calculateReward(b, domain.Contribution{VerificationsDone: 4})
	assert.Less(t, got, b.RewardPool/100)
	assert.Positive(t, got)
}

func TestBystanderGetsNothing(t *testing.T) {
	b := rewardBounty()
	assert.Equal(t, uint64(0), calculateReward(b, domain.Contribution{}))

	b.Solved = false
	assert.Equal(t, uint64(0), calculateReward(b, domain.Contribution{}))
}
