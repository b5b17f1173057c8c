package state

import (
	"testing"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_PlayerIndex(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()

	err := s.PutPlayer("missing", &types.Player{ID: "p1"})
	assert.Error(t, err)

	s.PutGame(types.NewGame("g1", now))
	s.PutGame(types.NewGame("g2", now))
	require.NoError(t, s.PutPlayer("g1", &types.Player{ID: "p1", Slot: types.SlotPlayer1}))

	player, game, ok := s.GetPlayer("p1")
	require.True(t, ok)
	assert.Equal(t, "p1", player.ID)
	assert.Equal(t, "g1", game.ID)

	// moving a player ID removes it from the previous game
	require.NoError(t, s.PutPlayer("g2", &types.Player{ID: "p1", Slot: types.SlotPlayer1}))
	g1, _ := s.GetGame("g1")
	assert.Empty(t, g1.Players)
	_, game, _ = s.GetPlayer("p1")
	assert.Equal(t, "g2", game.ID)

	player, game, ok = s.DeletePlayer("p1")
	require.True(t, ok)
	assert.Equal(t, "p1", player.ID)
	assert.Empty(t, game.Players)

	_, _, ok = s.DeletePlayer("p1")
	assert.False(t, ok)
}

func TestInMemoryStore_Requests(t *testing.T) {
	s := NewInMemoryStore()
	s.PutGame(types.NewGame("g1", time.Now()))

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.PutRequest(&types.AbilityRequest{ID: id, GameID: "g1", Status: types.RequestStatusPending}))
	}
	// re-putting an existing request keeps its position
	require.NoError(t, s.PutRequest(&types.AbilityRequest{ID: "r1", GameID: "g1", Status: types.RequestStatusApproved}))

	game, _ := s.GetGame("g1")
	assert.Equal(t, []string{"r1", "r2", "r3"}, game.RequestOrder)

	request, _, ok := s.GetRequest("r1")
	require.True(t, ok)
	assert.Equal(t, types.RequestStatusApproved, request.Status)

	s.DeleteRequest("r2")
	assert.Equal(t, []string{"r1", "r3"}, game.RequestOrder)
	_, _, ok = s.GetRequest("r2")
	assert.False(t, ok)

	assert.Error(t, s.PutRequest(&types.AbilityRequest{ID: "r4", GameID: "nope"}))
}

func TestInMemoryStore_DeleteGameDropsIndices(t *testing.T) {
	s := NewInMemoryStore()
	s.PutGame(types.NewGame("g1", time.Now()))
	require.NoError(t, s.PutPlayer("g1", &types.Player{ID: "p1"}))
	require.NoError(t, s.PutPlayer("g1", &types.Player{ID: "p2"}))
	require.NoError(t, s.PutRequest(&types.AbilityRequest{ID: "r1", GameID: "g1"}))

	assert.Equal(t, Counts{Games: 1, Players: 2, Requests: 1}, s.Counts())

	game, ok := s.DeleteGame("g1")
	require.True(t, ok)
	assert.Equal(t, "g1", game.ID)
	assert.Equal(t, Counts{}, s.Counts())

	_, ok = s.DeleteGame("g1")
	assert.False(t, ok)
}
