package types

import "time"

// AbilityRequest is a player's claim to use an ability, pending host approval.
// Player fields are copied at creation so the request outlives its player.
type AbilityRequest struct {
	ID          string        `json:"id"`
	GameID      string        `json:"gameId"`
	PlayerID    string        `json:"playerId"`
	PlayerName  string        `json:"playerName"`
	PlayerSlot  Slot          `json:"playerSlot"`
	AbilityText string        `json:"abilityText"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	ApprovedAt  *time.Time    `json:"approvedAt,omitempty"`
	RejectedAt  *time.Time    `json:"rejectedAt,omitempty"`
}

func (r *AbilityRequest) Copy() *AbilityRequest {
	c := *r
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	if r.RejectedAt != nil {
		t := *r.RejectedAt
		c.RejectedAt = &t
	}
	return &c
}

// ResolvedAt returns the terminal timestamp, or nil while pending.
func (r *AbilityRequest) ResolvedAt() *time.Time {
	switch r.Status {
	case RequestStatusApproved:
		return r.ApprovedAt
	case RequestStatusRejected:
		return r.RejectedAt
	default:
		return nil
	}
}
