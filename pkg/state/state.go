package state

import "github.com/cbodonnell/battlecards/pkg/game/types"

// Store holds games and the secondary indices used to find players and
// ability requests by ID.
// Implementations are not required to be thread-safe; the owner serializes access.
type Store interface {
	// GetGame returns the stored game, not a copy.
	GetGame(gameID string) (*types.Game, bool)
	PutGame(game *types.Game)
	// DeleteGame removes a game along with every index entry pointing into it.
	DeleteGame(gameID string) (*types.Game, bool)
	Games() []*types.Game

	// PutPlayer adds or replaces a player in a stored game.
	PutPlayer(gameID string, player *types.Player) error
	// GetPlayer looks a player up through the global index.
	GetPlayer(playerID string) (*types.Player, *types.Game, bool)
	DeletePlayer(playerID string) (*types.Player, *types.Game, bool)

	PutRequest(request *types.AbilityRequest) error
	GetRequest(requestID string) (*types.AbilityRequest, *types.Game, bool)
	DeleteRequest(requestID string)

	Counts() Counts
}

type Counts struct {
	Games    int `json:"games"`
	Players  int `json:"players"`
	Requests int `json:"requests"`
}
