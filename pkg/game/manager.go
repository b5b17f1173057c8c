package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/state"
	"github.com/google/uuid"
)

// SessionManager owns all game, player and ability request mutations.
// Every method runs under a single lock, so no two mutations interleave and
// every returned value is a detached copy that reflects committed state.
type SessionManager struct {
	lock       sync.Mutex
	store      state.Store
	requestTTL time.Duration
	now        func() time.Time
	newID      func() string
}

// NewSessionManagerOptions contains options for creating a new SessionManager.
type NewSessionManagerOptions struct {
	// Store defaults to a new in-memory store
	Store state.Store
	// RequestTTL prunes pending requests older than this. Zero disables pruning.
	RequestTTL time.Duration
	// Now defaults to time.Now
	Now func() time.Time
	// NewID defaults to uuid.NewString
	NewID func() string
}

func NewSessionManager(opts NewSessionManagerOptions) *SessionManager {
	m := &SessionManager{
		store:      opts.Store,
		requestTTL: opts.RequestTTL,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if m.store == nil {
		m.store = state.NewInMemoryStore()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// AddPlayerOptions describes a player joining a game.
type AddPlayerOptions struct {
	Name         string
	Slot         types.Slot
	ConnectionID string
	Abilities    []string
	IsHost       bool
}

// PlayerRemoval describes the outcome of RemovePlayer.
type PlayerRemoval struct {
	Player *types.Player
	GameID string
	// ClosedGame is the final state of the game when the removed player was its last
	ClosedGame *types.Game
}

// Stats is a rough load indicator.
type Stats = state.Counts

// GetOrCreateGame returns a copy of the game, creating it if it does not exist.
func (m *SessionManager) GetOrCreateGame(gameID string) *types.Game {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.getOrCreateGame(gameID).Copy()
}

func (m *SessionManager) getOrCreateGame(gameID string) *types.Game {
	if game, ok := m.store.GetGame(gameID); ok {
		return game
	}
	game := types.NewGame(gameID, m.now())
	m.store.PutGame(game)
	return game
}

// AddPlayer inserts a player into a game, replacing any player with the same ID.
// Non-empty abilities replace the slot's ability list.
// A player ID already in another game is moved out of it; the returned removal
// describes that departure and is nil otherwise.
func (m *SessionManager) AddPlayer(gameID, playerID string, opts AddPlayerOptions) (*types.Player, *PlayerRemoval, error) {
	if !opts.Slot.Valid() {
		return nil, nil, fmt.Errorf("invalid slot %q", opts.Slot)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	game := m.getOrCreateGame(gameID)

	name := opts.Name
	if name == "" {
		name = types.DefaultPlayerName(opts.Slot)
	}
	player := &types.Player{
		ID:           playerID,
		Name:         name,
		Slot:         opts.Slot,
		ConnectionID: opts.ConnectionID,
		JoinedAt:     now,
		IsHost:       opts.IsHost,
	}
	previousPlayer, previous, moved := m.store.GetPlayer(playerID)
	if err := m.store.PutPlayer(gameID, player); err != nil {
		return nil, nil, fmt.Errorf("failed to add player: %w", err)
	}
	var removal *PlayerRemoval
	if moved && previous.ID != gameID {
		removal = &PlayerRemoval{
			Player: previousPlayer.Copy(),
			GameID: previous.ID,
		}
		if len(previous.Players) == 0 {
			closed, _ := m.store.DeleteGame(previous.ID)
			removal.ClosedGame = closed.Copy()
		} else {
			previous.UpdateStatus()
			previous.LastActive = now
		}
	}

	if len(opts.Abilities) > 0 {
		game.Abilities[opts.Slot] = append([]string(nil), opts.Abilities...)
	}
	game.UpdateStatus()
	game.LastActive = now

	return player.Copy(), removal, nil
}

// RemovePlayer removes a player, deleting its game once the game has no players left.
// It returns false if the player is unknown.
func (m *SessionManager) RemovePlayer(playerID string) (*PlayerRemoval, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	player, game, ok := m.store.DeletePlayer(playerID)
	if !ok {
		return nil, false
	}

	removal := &PlayerRemoval{
		Player: player.Copy(),
		GameID: game.ID,
	}

	if len(game.Players) == 0 {
		closed, _ := m.store.DeleteGame(game.ID)
		removal.ClosedGame = closed.Copy()
		return removal, true
	}

	game.UpdateStatus()
	game.LastActive = m.now()
	return removal, true
}

// SetAbilities replaces the ability list for a slot.
func (m *SessionManager) SetAbilities(gameID string, slot types.Slot, abilities []string) error {
	if !slot.Valid() {
		return fmt.Errorf("invalid slot %q", slot)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	game := m.getOrCreateGame(gameID)
	game.Abilities[slot] = append([]string{}, abilities...)
	game.LastActive = m.now()
	return nil
}

// GetAbilities returns the ability list for a slot, or an empty list if unset.
func (m *SessionManager) GetAbilities(gameID string, slot types.Slot) []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	game, ok := m.store.GetGame(gameID)
	if !ok {
		return []string{}
	}
	return append([]string{}, game.Abilities[slot]...)
}

// CreateAbilityRequest creates a pending request for a player of the game.
func (m *SessionManager) CreateAbilityRequest(gameID, playerID, abilityText string) (*types.AbilityRequest, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	game, ok := m.store.GetGame(gameID)
	if !ok {
		return nil, &ErrPlayerNotFound{GameID: gameID, PlayerID: playerID}
	}
	player, ok := game.Players[playerID]
	if !ok {
		return nil, &ErrPlayerNotFound{GameID: gameID, PlayerID: playerID}
	}

	now := m.now()
	request := &types.AbilityRequest{
		ID:          m.newID(),
		GameID:      gameID,
		PlayerID:    player.ID,
		PlayerName:  player.Name,
		PlayerSlot:  player.Slot,
		AbilityText: abilityText,
		Status:      types.RequestStatusPending,
		CreatedAt:   now,
	}
	if err := m.store.PutRequest(request); err != nil {
		return nil, fmt.Errorf("failed to store request: %w", err)
	}
	game.LastActive = now

	return request.Copy(), nil
}

// ApproveAbilityRequest moves a pending request to approved.
func (m *SessionManager) ApproveAbilityRequest(requestID string) (*types.AbilityRequest, error) {
	return m.resolveAbilityRequest(requestID, types.RequestStatusApproved)
}

// RejectAbilityRequest moves a pending request to rejected.
func (m *SessionManager) RejectAbilityRequest(requestID string) (*types.AbilityRequest, error) {
	return m.resolveAbilityRequest(requestID, types.RequestStatusRejected)
}

func (m *SessionManager) resolveAbilityRequest(requestID string, status types.RequestStatus) (*types.AbilityRequest, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	request, game, ok := m.store.GetRequest(requestID)
	if !ok {
		return nil, &ErrRequestNotFound{RequestID: requestID}
	}
	if request.Status.IsTerminal() {
		return nil, &ErrRequestAlreadyResolved{RequestID: requestID, Status: request.Status}
	}

	now := m.now()
	request.Status = status
	switch status {
	case types.RequestStatusApproved:
		request.ApprovedAt = &now
	case types.RequestStatusRejected:
		request.RejectedAt = &now
	}
	game.LastActive = now

	return request.Copy(), nil
}

// GetPendingRequests returns the game's pending requests in creation order.
func (m *SessionManager) GetPendingRequests(gameID string) []*types.AbilityRequest {
	m.lock.Lock()
	defer m.lock.Unlock()

	game, ok := m.store.GetGame(gameID)
	if !ok {
		return []*types.AbilityRequest{}
	}
	m.pruneExpiredRequests(game)
	return game.PendingRequests()
}

// GetGameSnapshot returns a snapshot of the game. An unknown game yields the
// snapshot of a fresh game without storing it.
func (m *SessionManager) GetGameSnapshot(gameID string) *types.Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()

	game, ok := m.store.GetGame(gameID)
	if !ok {
		return types.NewGame(gameID, m.now()).Snapshot()
	}
	m.pruneExpiredRequests(game)
	return game.Snapshot()
}

// pruneExpiredRequests deletes pending requests older than the request TTL.
// It must be called with the lock held.
func (m *SessionManager) pruneExpiredRequests(game *types.Game) {
	if m.requestTTL <= 0 {
		return
	}
	cutoff := m.now().Add(-m.requestTTL)
	expired := make([]string, 0)
	for _, id := range game.RequestOrder {
		request, ok := game.Requests[id]
		if ok && request.Status == types.RequestStatusPending && request.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.store.DeleteRequest(id)
	}
}

// ReapIdleGames deletes games with no players that have been idle longer than maxIdle
// and returns their IDs.
func (m *SessionManager) ReapIdleGames(maxIdle time.Duration) []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	cutoff := m.now().Add(-maxIdle)
	reaped := make([]string, 0)
	for _, game := range m.store.Games() {
		if len(game.Players) > 0 || game.LastActive.After(cutoff) {
			continue
		}
		m.store.DeleteGame(game.ID)
		reaped = append(reaped, game.ID)
	}
	return reaped
}

func (m *SessionManager) Stats() Stats {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.store.Counts()
}
