package state

import (
	"fmt"

	"github.com/cbodonnell/battlecards/pkg/game/types"
)

var _ Store = &InMemoryStore{}

type InMemoryStore struct {
	games map[string]*types.Game
	// players indexes player IDs to the ID of the game that owns them
	players map[string]string
	// requests indexes request IDs to the ID of the game that owns them
	requests map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		games:    make(map[string]*types.Game),
		players:  make(map[string]string),
		requests: make(map[string]string),
	}
}

func (s *InMemoryStore) GetGame(gameID string) (*types.Game, bool) {
	game, ok := s.games[gameID]
	return game, ok
}

func (s *InMemoryStore) PutGame(game *types.Game) {
	s.games[game.ID] = game
}

func (s *InMemoryStore) DeleteGame(gameID string) (*types.Game, bool) {
	game, ok := s.games[gameID]
	if !ok {
		return nil, false
	}
	for playerID := range game.Players {
		if s.players[playerID] == gameID {
			delete(s.players, playerID)
		}
	}
	for requestID := range game.Requests {
		if s.requests[requestID] == gameID {
			delete(s.requests, requestID)
		}
	}
	delete(s.games, gameID)
	return game, true
}

func (s *InMemoryStore) Games() []*types.Game {
	games := make([]*types.Game, 0, len(s.games))
	for _, game := range s.games {
		games = append(games, game)
	}
	return games
}

func (s *InMemoryStore) PutPlayer(gameID string, player *types.Player) error {
	game, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("game %s does not exist", gameID)
	}
	// a player ID moving between games must not stay in the old one
	if previousGameID, ok := s.players[player.ID]; ok && previousGameID != gameID {
		if previous, ok := s.games[previousGameID]; ok {
			delete(previous.Players, player.ID)
		}
	}
	game.Players[player.ID] = player
	s.players[player.ID] = gameID
	return nil
}

func (s *InMemoryStore) GetPlayer(playerID string) (*types.Player, *types.Game, bool) {
	gameID, ok := s.players[playerID]
	if !ok {
		return nil, nil, false
	}
	game, ok := s.games[gameID]
	if !ok {
		return nil, nil, false
	}
	player, ok := game.Players[playerID]
	if !ok {
		return nil, nil, false
	}
	return player, game, true
}

func (s *InMemoryStore) DeletePlayer(playerID string) (*types.Player, *types.Game, bool) {
	player, game, ok := s.GetPlayer(playerID)
	delete(s.players, playerID)
	if !ok {
		return nil, nil, false
	}
	delete(game.Players, playerID)
	return player, game, true
}

func (s *InMemoryStore) PutRequest(request *types.AbilityRequest) error {
	game, ok := s.games[request.GameID]
	if !ok {
		return fmt.Errorf("game %s does not exist", request.GameID)
	}
	if _, exists := game.Requests[request.ID]; !exists {
		game.RequestOrder = append(game.RequestOrder, request.ID)
	}
	game.Requests[request.ID] = request
	s.requests[request.ID] = game.ID
	return nil
}

func (s *InMemoryStore) GetRequest(requestID string) (*types.AbilityRequest, *types.Game, bool) {
	gameID, ok := s.requests[requestID]
	if !ok {
		return nil, nil, false
	}
	game, ok := s.games[gameID]
	if !ok {
		return nil, nil, false
	}
	request, ok := game.Requests[requestID]
	if !ok {
		return nil, nil, false
	}
	return request, game, true
}

func (s *InMemoryStore) DeleteRequest(requestID string) {
	gameID, ok := s.requests[requestID]
	delete(s.requests, requestID)
	if !ok {
		return
	}
	game, ok := s.games[gameID]
	if !ok {
		return
	}
	delete(game.Requests, requestID)
	for i, id := range game.RequestOrder {
		if id == requestID {
			game.RequestOrder = append(game.RequestOrder[:i], game.RequestOrder[i+1:]...)
			break
		}
	}
}

func (s *InMemoryStore) Counts() Counts {
	return Counts{
		Games:    len(s.games),
		Players:  len(s.players),
		Requests: len(s.requests),
	}
}
