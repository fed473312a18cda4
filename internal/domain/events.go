package domain

import "time"

// Event channel names published on the SignalBus and mirrored to the
// WebSocket hub.
const (
	EventMarketCreated     = "market_created"
	EventMarketTaken       = "market_taken"
	EventMarketProved      = "market_proved"
	EventMarketSettled     = "market_settled"
	EventMarketCancelled   = "market_cancelled"
	EventMarketExpired     = "market_expired"
	EventBountyCreated     = "bounty_created"
	EventBountySolved      = "bounty_solved"
	EventRangeClaimed      = "range_claimed"
	EventRangeSubmitted    = "range_submitted"
	EventRangeVerified     = "range_verified"
	EventRangeSlashed      = "range_slashed"
	EventFraudSignal       = "fraud_signal"
	EventRewardClaimed     = "reward_claimed"
	EventConditionPrepared = "condition_prepared"
	EventConditionResolved = "condition_resolved"
)

// Event is the JSON envelope broadcast for every committed state transition.
type Event struct {
	ID        string         `json:"id"` // UUID for dedup
	Name      string         `json:"name"`
	EntityID  string         `json:"entity_id"`
	Detail    map[string]any `json:"detail,omitempty"`
	EmittedAt time.Time      `json:"emitted_at"`
}
