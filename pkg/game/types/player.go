package types

import "time"

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slot Slot   `json:"slot"`
	// ConnectionID identifies the realtime connection used to target broadcasts
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`
	IsHost       bool      `json:"isHost"`
}

// DefaultPlayerName is used when a player joins without a name.
func DefaultPlayerName(slot Slot) string {
	return "Player " + string(slot)
}

func (p *Player) Copy() *Player {
	c := *p
	return &c
}
