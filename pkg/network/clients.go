package network

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Client represents a connected client
type Client struct {
	ID   string
	Conn Conn
	// players maps the player IDs this connection joined as to their game IDs
	players map[string]string
}

// JoinedPlayer is a player a connection joined as.
type JoinedPlayer struct {
	PlayerID string
	GameID   string
}

// ClientManager manages connected clients and the rooms they are joined to.
// A room is the set of clients receiving broadcasts for a game.
type ClientManager struct {
	clients     map[string]*Client
	rooms       map[string]map[string]*Client
	clientsLock sync.RWMutex
	newID       func() string
}

// NewClientManager creates a new ClientManager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		newID:   uuid.NewString,
	}
}

// ConnectClient adds a new client to the manager and returns its ID
func (cm *ClientManager) ConnectClient(conn Conn) string {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	client := &Client{
		ID:      cm.newID(),
		Conn:    conn,
		players: make(map[string]string),
	}
	cm.clients[client.ID] = client
	return client.ID
}

// DisconnectClient removes a client from the manager and every room,
// returning the players it had joined as.
func (cm *ClientManager) DisconnectClient(clientID string) ([]JoinedPlayer, bool) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	client, ok := cm.clients[clientID]
	if !ok {
		return nil, false
	}
	delete(cm.clients, clientID)

	joined := make([]JoinedPlayer, 0, len(client.players))
	for playerID, gameID := range client.players {
		joined = append(joined, JoinedPlayer{PlayerID: playerID, GameID: gameID})
		cm.leaveRoom(gameID, clientID)
	}
	sort.Slice(joined, func(i, j int) bool {
		return joined[i].PlayerID < joined[j].PlayerID
	})
	return joined, true
}

// JoinRoom records that the client joined a game as playerID and subscribes it to the game's room.
// A player ID that moves between games leaves the previous room unless another player of the client remains there.
func (cm *ClientManager) JoinRoom(clientID, gameID, playerID string) bool {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	client, ok := cm.clients[clientID]
	if !ok {
		return false
	}

	previousGameID, moved := client.players[playerID]
	client.players[playerID] = gameID
	if moved && previousGameID != gameID && !client.inGame(previousGameID) {
		cm.leaveRoom(previousGameID, clientID)
	}

	room, ok := cm.rooms[gameID]
	if !ok {
		room = make(map[string]*Client)
		cm.rooms[gameID] = room
	}
	room[clientID] = client
	return true
}

// must be called with the lock held
func (cm *ClientManager) leaveRoom(gameID, clientID string) {
	room, ok := cm.rooms[gameID]
	if !ok {
		return
	}
	delete(room, clientID)
	if len(room) == 0 {
		delete(cm.rooms, gameID)
	}
}

func (c *Client) inGame(gameID string) bool {
	for _, g := range c.players {
		if g == gameID {
			return true
		}
	}
	return false
}

// GetConn returns the connection of a client
func (cm *ClientManager) GetConn(clientID string) (Conn, bool) {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()

	client, ok := cm.clients[clientID]
	if !ok {
		return nil, false
	}
	return client.Conn, true
}

// RoomConns returns the connections joined to a game's room, skipping exceptClientID.
func (cm *ClientManager) RoomConns(gameID, exceptClientID string) map[string]Conn {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()

	conns := make(map[string]Conn, len(cm.rooms[gameID]))
	for id, client := range cm.rooms[gameID] {
		if id == exceptClientID {
			continue
		}
		conns[id] = client.Conn
	}
	return conns
}

// Count returns the number of connected clients
func (cm *ClientManager) Count() int {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return len(cm.clients)
}
