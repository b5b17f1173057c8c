package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/messages"
)

// GameRecord is the archived final state of a closed game.
type GameRecord struct {
	GameID    string    `json:"game_id"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at"`
	// Snapshot is the zstd-compressed JSON of the game's full snapshot
	Snapshot []byte `json:"-"`
}

// NewGameRecord captures a closed game, including its resolved requests.
func NewGameRecord(game *types.Game, closedAt time.Time) (*GameRecord, error) {
	snapshot := &ArchivedGame{
		Snapshot: game.Snapshot(),
		Requests: make([]*types.AbilityRequest, 0, len(game.RequestOrder)),
	}
	for _, id := range game.RequestOrder {
		if request, ok := game.Requests[id]; ok {
			snapshot.Requests = append(snapshot.Requests, request.Copy())
		}
	}

	b, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %v", err)
	}
	compressed, err := messages.Compress(b)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %v", err)
	}

	return &GameRecord{
		GameID:    game.ID,
		CreatedAt: game.CreatedAt.UTC(),
		ClosedAt:  closedAt.UTC(),
		Snapshot:  compressed,
	}, nil
}

// ArchivedGame is the decoded content of a GameRecord snapshot.
type ArchivedGame struct {
	Snapshot *types.Snapshot `json:"snapshot"`
	// Requests holds every request of the game, whatever its status
	Requests []*types.AbilityRequest `json:"requests"`
}

func (r *GameRecord) Decode() (*ArchivedGame, error) {
	b, err := messages.Decompress(r.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %v", err)
	}
	archived := &ArchivedGame{}
	if err := json.Unmarshal(b, archived); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}
	return archived, nil
}
