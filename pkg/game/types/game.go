package types

import "time"

// Game is a single room. It owns its players and ability requests.
type Game struct {
	ID string
	// Players maps player IDs to players
	Players map[string]*Player
	// Abilities maps a slot to its ordered list of ability names.
	// This is the only copy of a player's abilities.
	Abilities map[Slot][]string
	// Requests maps request IDs to ability requests
	Requests map[string]*AbilityRequest
	// RequestOrder holds request IDs in insertion order
	RequestOrder []string
	Status       GameStatus
	CreatedAt    time.Time
	// LastActive is bumped on every mutation and used to reap idle games
	LastActive time.Time
}

func NewGame(id string, now time.Time) *Game {
	return &Game{
		ID:         id,
		Players:    make(map[string]*Player),
		Abilities:  make(map[Slot][]string),
		Requests:   make(map[string]*AbilityRequest),
		Status:     GameStatusWaiting,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Copy returns a deep copy of the game.
func (g *Game) Copy() *Game {
	c := &Game{
		ID:           g.ID,
		Players:      make(map[string]*Player, len(g.Players)),
		Abilities:    make(map[Slot][]string, len(g.Abilities)),
		Requests:     make(map[string]*AbilityRequest, len(g.Requests)),
		RequestOrder: append([]string(nil), g.RequestOrder...),
		Status:       g.Status,
		CreatedAt:    g.CreatedAt,
		LastActive:   g.LastActive,
	}
	for id, p := range g.Players {
		c.Players[id] = p.Copy()
	}
	for slot, abilities := range g.Abilities {
		c.Abilities[slot] = append([]string(nil), abilities...)
	}
	for id, r := range g.Requests {
		c.Requests[id] = r.Copy()
	}
	return c
}

// UpdateStatus recomputes the informational status from slot occupancy.
func (g *Game) UpdateStatus() {
	occupied := make(map[Slot]bool, len(Slots))
	for _, p := range g.Players {
		occupied[p.Slot] = true
	}
	if occupied[SlotPlayer1] && occupied[SlotPlayer2] {
		g.Status = GameStatusActive
		return
	}
	g.Status = GameStatusWaiting
}
