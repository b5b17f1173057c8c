package messages

import "github.com/cbodonnell/battlecards/pkg/game/types"

// The gameState payload is a types.Snapshot and the abilityRequested,
// abilityRequestApproved and abilityRequestRejected payloads are a types.AbilityRequest.

type GameJoined struct {
	Success  bool              `json:"success"`
	PlayerID string            `json:"playerId"`
	GameID   string            `json:"gameId"`
	Player   *types.PlayerView `json:"player"`
}

type PlayerJoined struct {
	PlayerID string            `json:"playerId"`
	Player   *types.PlayerView `json:"player"`
}

type AbilityRequestSent struct {
	Success     bool   `json:"success"`
	RequestID   string `json:"requestId"`
	AbilityText string `json:"abilityText"`
}

type PlayerAbilitiesUpdated struct {
	Slot      types.Slot `json:"slot"`
	Abilities []string   `json:"abilities"`
}

type PlayerAbilitiesSet struct {
	Success   bool       `json:"success"`
	Slot      types.Slot `json:"slot"`
	Abilities []string   `json:"abilities"`
}

type PlayerLeft struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type Error struct {
	Message string `json:"message"`
}
