package messages

import (
	"encoding/json"

	"github.com/cbodonnell/battlecards/pkg/game/types"
)

// ClientPayload is implemented by every inbound payload.
type ClientPayload interface {
	Validate() error
}

// DecodePayload unmarshals the message payload into p and validates it.
func DecodePayload(m *Message, p ClientPayload) error {
	if len(m.Payload) == 0 {
		return &ErrInvalidPayload{Type: m.Type, Reason: "missing payload"}
	}
	if err := json.Unmarshal(m.Payload, p); err != nil {
		return &ErrInvalidPayload{Type: m.Type, Reason: err.Error()}
	}
	return p.Validate()
}

type JoinGame struct {
	GameID     string     `json:"gameId"`
	Slot       types.Slot `json:"slot"`
	PlayerName string     `json:"playerName"`
	Abilities  []string   `json:"abilities"`
	IsHost     bool       `json:"isHost"`
}

func (p *JoinGame) Validate() error {
	if p.GameID == "" {
		return &ErrInvalidPayload{Type: MessageTypeClientJoinGame, Reason: "gameId is required"}
	}
	if !p.Slot.Valid() {
		return &ErrInvalidPayload{Type: MessageTypeClientJoinGame, Reason: "slot must be player1 or player2"}
	}
	return nil
}

type RequestAbility struct {
	GameID      string `json:"gameId"`
	PlayerID    string `json:"playerId"`
	AbilityText string `json:"abilityText"`
}

func (p *RequestAbility) Validate() error {
	switch {
	case p.GameID == "":
		return &ErrInvalidPayload{Type: MessageTypeClientRequestAbility, Reason: "gameId is required"}
	case p.PlayerID == "":
		return &ErrInvalidPayload{Type: MessageTypeClientRequestAbility, Reason: "playerId is required"}
	case p.AbilityText == "":
		return &ErrInvalidPayload{Type: MessageTypeClientRequestAbility, Reason: "abilityText is required"}
	}
	return nil
}

// ResolveAbilityRequest is the payload of both approveAbilityRequest and rejectAbilityRequest.
type ResolveAbilityRequest struct {
	RequestID string `json:"requestId"`
}

func (p *ResolveAbilityRequest) Validate() error {
	if p.RequestID == "" {
		return &ErrInvalidPayload{Type: "resolveAbilityRequest", Reason: "requestId is required"}
	}
	return nil
}

type GetGameState struct {
	GameID string `json:"gameId"`
}

func (p *GetGameState) Validate() error {
	if p.GameID == "" {
		return &ErrInvalidPayload{Type: MessageTypeClientGetGameState, Reason: "gameId is required"}
	}
	return nil
}

type SetPlayerAbilities struct {
	GameID    string     `json:"gameId"`
	Slot      types.Slot `json:"slot"`
	Abilities []string   `json:"abilities"`
}

func (p *SetPlayerAbilities) Validate() error {
	if p.GameID == "" {
		return &ErrInvalidPayload{Type: MessageTypeClientSetPlayerAbilities, Reason: "gameId is required"}
	}
	if !p.Slot.Valid() {
		return &ErrInvalidPayload{Type: MessageTypeClientSetPlayerAbilities, Reason: "slot must be player1 or player2"}
	}
	if p.Abilities == nil {
		p.Abilities = []string{}
	}
	return nil
}
