package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/messages"
)

// session tracks what the CLI needs to build commands.
type session struct {
	gameID string
	slot   types.Slot

	lock     sync.Mutex
	playerID string
}

func newSession(gameID string, slot types.Slot) *session {
	return &session{
		gameID: gameID,
		slot:   slot,
	}
}

// observe records the player ID assigned on join.
func (s *session) observe(msg *messages.Message) {
	if msg.Type != messages.MessageTypeServerGameJoined {
		return
	}
	joined := &messages.GameJoined{}
	if err := json.Unmarshal(msg.Payload, joined); err != nil {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.playerID = joined.PlayerID
}

// command converts a line typed by the user into a message. Blank lines yield nil.
func (s *session) command(line string) (*messages.Message, error) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "":
		return nil, nil
	case "request":
		if arg == "" {
			return nil, fmt.Errorf("usage: request <ability text>")
		}
		s.lock.Lock()
		playerID := s.playerID
		s.lock.Unlock()
		if playerID == "" {
			return nil, fmt.Errorf("not joined yet")
		}
		return messages.NewMessage(messages.MessageTypeClientRequestAbility, &messages.RequestAbility{
			GameID:      s.gameID,
			PlayerID:    playerID,
			AbilityText: arg,
		})
	case "approve", "reject":
		if arg == "" {
			return nil, fmt.Errorf("usage: %s <request id>", verb)
		}
		messageType := messages.MessageTypeClientApproveAbilityRequest
		if verb == "reject" {
			messageType = messages.MessageTypeClientRejectAbilityRequest
		}
		return messages.NewMessage(messageType, &messages.ResolveAbilityRequest{RequestID: arg})
	case "state":
		return messages.NewMessage(messages.MessageTypeClientGetGameState, &messages.GetGameState{GameID: s.gameID})
	case "abilities":
		return messages.NewMessage(messages.MessageTypeClientSetPlayerAbilities, &messages.SetPlayerAbilities{
			GameID:    s.gameID,
			Slot:      s.slot,
			Abilities: splitList(arg),
		})
	default:
		return nil, fmt.Errorf("unknown command %q", verb)
	}
}

func splitList(s string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
