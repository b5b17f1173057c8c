package messages

import (
	"encoding/json"
	"fmt"
)

const (
	// MessageBufferSize represents the maximum size of an inbound message
	MessageBufferSize = 64 * 1024
)

// Client to server message types
const (
	MessageTypeClientJoinGame              = "joinGame"
	MessageTypeClientRequestAbility        = "requestAbility"
	MessageTypeClientApproveAbilityRequest = "approveAbilityRequest"
	MessageTypeClientRejectAbilityRequest  = "rejectAbilityRequest"
	MessageTypeClientGetGameState          = "getGameState"
	MessageTypeClientSetPlayerAbilities    = "setPlayerAbilities"
)

// Server to client message types
const (
	MessageTypeServerGameJoined             = "gameJoined"
	MessageTypeServerPlayerJoined           = "playerJoined"
	MessageTypeServerGameState              = "gameState"
	MessageTypeServerAbilityRequested       = "abilityRequested"
	MessageTypeServerAbilityRequestSent     = "abilityRequestSent"
	MessageTypeServerAbilityRequestApproved = "abilityRequestApproved"
	MessageTypeServerAbilityRequestRejected = "abilityRequestRejected"
	MessageTypeServerPlayerAbilitiesUpdated = "playerAbilitiesUpdated"
	MessageTypeServerPlayerAbilitiesSet     = "playerAbilitiesSet"
	MessageTypeServerPlayerLeft             = "playerLeft"
	MessageTypeServerError                  = "error"
)

// Message represents a generic message for serialization/deserialization
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a message of the given type.
func NewMessage(messageType string, payload interface{}) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}
	return &Message{
		Type:    messageType,
		Payload: b,
	}, nil
}

// NewErrorMessage builds an error message. It cannot fail.
func NewErrorMessage(message string) *Message {
	b, _ := json.Marshal(&Error{Message: message})
	return &Message{
		Type:    MessageTypeServerError,
		Payload: b,
	}
}
