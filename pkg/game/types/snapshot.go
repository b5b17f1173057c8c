package types

import (
	"sort"
	"time"
)

// PlayerView is the client-facing projection of a Player.
type PlayerView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slot      Slot      `json:"slot"`
	Abilities []string  `json:"abilities"`
	JoinedAt  time.Time `json:"joinedAt"`
	IsHost    bool      `json:"isHost"`
}

// Snapshot is a point-in-time read-only projection of a Game.
type Snapshot struct {
	ID              string            `json:"id"`
	Players         []*PlayerView     `json:"players"`
	Abilities       map[Slot][]string `json:"abilities"`
	PendingRequests []*AbilityRequest `json:"pendingRequests"`
	Status          GameStatus        `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// NewPlayerView derives a player's view, taking abilities from the game's slot list.
func NewPlayerView(g *Game, p *Player) *PlayerView {
	return &PlayerView{
		ID:        p.ID,
		Name:      p.Name,
		Slot:      p.Slot,
		Abilities: append([]string{}, g.Abilities[p.Slot]...),
		JoinedAt:  p.JoinedAt,
		IsHost:    p.IsHost,
	}
}

// PendingRequests returns the game's pending requests in insertion order.
func (g *Game) PendingRequests() []*AbilityRequest {
	pending := make([]*AbilityRequest, 0)
	for _, id := range g.RequestOrder {
		r, ok := g.Requests[id]
		if !ok || r.Status != RequestStatusPending {
			continue
		}
		pending = append(pending, r.Copy())
	}
	return pending
}

// Snapshot builds a detached snapshot of the game.
// Players are ordered by join time, then ID.
func (g *Game) Snapshot() *Snapshot {
	players := make([]*PlayerView, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, NewPlayerView(g, p))
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].ID < players[j].ID
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	abilities := make(map[Slot][]string, len(g.Abilities))
	for slot, list := range g.Abilities {
		abilities[slot] = append([]string{}, list...)
	}

	return &Snapshot{
		ID:              g.ID,
		Players:         players,
		Abilities:       abilities,
		PendingRequests: g.PendingRequests(),
		Status:          g.Status,
		CreatedAt:       g.CreatedAt,
	}
}
