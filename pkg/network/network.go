package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game"
	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/cbodonnell/battlecards/pkg/messages"
	"github.com/cbodonnell/battlecards/pkg/queue"
	"github.com/cbodonnell/battlecards/pkg/relay"
)

// Archiver receives resolved requests and closed games. Implementations must not block.
type Archiver interface {
	ArchiveRequest(request *types.AbilityRequest)
	ArchiveGame(game *types.Game)
}

// NetworkManager adapts the realtime protocol onto the session manager and
// broadcasts the results to the rooms of the affected games.
type NetworkManager struct {
	SessionManager *game.SessionManager
	ClientManager  *ClientManager
	WSServer       *WSServer
	// EventQueue receives a copy of every room broadcast for relaying. Optional.
	EventQueue queue.Queue
	// Archiver is optional
	Archiver Archiver
}

type NewNetworkManagerOptions struct {
	SessionManager *game.SessionManager
	ClientManager  *ClientManager
	EventQueue     queue.Queue
	Archiver       Archiver
	WSPort         int
	WSServerTLS    *TLSConfig
	OriginPatterns []string
}

func NewNetworkManager(options NewNetworkManagerOptions) *NetworkManager {
	clientManager := options.ClientManager
	if clientManager == nil {
		clientManager = NewClientManager()
	}
	return &NetworkManager{
		SessionManager: options.SessionManager,
		ClientManager:  clientManager,
		EventQueue:     options.EventQueue,
		Archiver:       options.Archiver,
		WSServer: NewWSServer(NewWSServerOptions{
			Port:           options.WSPort,
			TLS:            options.WSServerTLS,
			OriginPatterns: options.OriginPatterns,
		}),
	}
}

// Start serves the realtime gateway until ctx is cancelled.
func (n *NetworkManager) Start(ctx context.Context) error {
	return n.WSServer.Start(ctx, n.handleConnect, n.handleDisconnect, n.handleMessage)
}

// Handler returns the websocket endpoint without starting a listener.
func (n *NetworkManager) Handler() http.Handler {
	return n.WSServer.Handler(n.handleConnect, n.handleDisconnect, n.handleMessage)
}

func (n *NetworkManager) handleConnect(conn Conn) string {
	clientID := n.ClientManager.ConnectClient(conn)
	log.Info("Client %s connected from %s", clientID, conn.RemoteAddr())
	return clientID
}

func (n *NetworkManager) handleDisconnect(clientID string) {
	joined, ok := n.ClientManager.DisconnectClient(clientID)
	if !ok {
		log.Warn("Unknown client %s disconnected", clientID)
		return
	}
	log.Info("Client %s disconnected", clientID)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
	defer cancel()
	for _, jp := range joined {
		removal, ok := n.SessionManager.RemovePlayer(jp.PlayerID)
		if !ok {
			// the player already moved or its game was reaped
			continue
		}
		n.announceRemoval(ctx, removal)
	}
}

// announceRemoval tells the rest of the removed player's game that it left,
// archiving the game if it closed.
func (n *NetworkManager) announceRemoval(ctx context.Context, removal *game.PlayerRemoval) {
	log.Info("Player %s left game %s", removal.Player.ID, removal.GameID)

	if removal.ClosedGame != nil {
		log.Info("Game %s closed", removal.GameID)
		if n.Archiver != nil {
			n.Archiver.ArchiveGame(removal.ClosedGame)
		}
	}

	playerLeft := &messages.PlayerLeft{
		PlayerID:   removal.Player.ID,
		PlayerName: removal.Player.Name,
	}
	if err := n.BroadcastToRoom(ctx, removal.GameID, messages.MessageTypeServerPlayerLeft, playerLeft, ""); err != nil {
		log.Error("Failed to broadcast player left: %v", err)
	}
	if removal.ClosedGame == nil {
		n.relayGameState(removal.GameID)
	}
}

func (n *NetworkManager) handleMessage(ctx context.Context, clientID string, message *messages.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic handling %s from client %s: %v", message.Type, clientID, r)
			n.sendError(ctx, clientID, "Internal server error")
		}
	}()

	log.Trace("Received %s from client %s", message.Type, clientID)

	var err error
	switch message.Type {
	case messages.MessageTypeClientJoinGame:
		err = n.handleJoinGame(ctx, clientID, message)
	case messages.MessageTypeClientRequestAbility:
		err = n.handleRequestAbility(ctx, clientID, message)
	case messages.MessageTypeClientApproveAbilityRequest:
		err = n.handleResolveAbilityRequest(ctx, clientID, message, n.SessionManager.ApproveAbilityRequest)
	case messages.MessageTypeClientRejectAbilityRequest:
		err = n.handleResolveAbilityRequest(ctx, clientID, message, n.SessionManager.RejectAbilityRequest)
	case messages.MessageTypeClientGetGameState:
		err = n.handleGetGameState(ctx, clientID, message)
	case messages.MessageTypeClientSetPlayerAbilities:
		err = n.handleSetPlayerAbilities(ctx, clientID, message)
	default:
		err = &messages.ErrInvalidPayload{Type: message.Type, Reason: "unknown message type"}
	}
	if err != nil {
		log.Warn("Failed to handle %s from client %s: %v", message.Type, clientID, err)
		n.sendError(ctx, clientID, ErrorMessage(err))
	}
}

// ErrorMessage converts a handler error into the text shown to the requesting client.
func ErrorMessage(err error) string {
	var alreadyResolved *game.ErrRequestAlreadyResolved
	var invalidPayload *messages.ErrInvalidPayload
	switch {
	case game.IsPlayerNotFound(err):
		return "Player not found"
	case game.IsRequestNotFound(err):
		return "Request not found"
	case errors.As(err, &alreadyResolved):
		return fmt.Sprintf("Request already %s", alreadyResolved.Status)
	case errors.As(err, &invalidPayload):
		return invalidPayload.Error()
	default:
		return "Internal server error"
	}
}

func (n *NetworkManager) handleJoinGame(ctx context.Context, clientID string, message *messages.Message) error {
	joinGame := &messages.JoinGame{}
	if err := messages.DecodePayload(message, joinGame); err != nil {
		return err
	}

	playerID := fmt.Sprintf("%s_%s", joinGame.Slot, clientID)
	_, moved, err := n.SessionManager.AddPlayer(joinGame.GameID, playerID, game.AddPlayerOptions{
		Name:         joinGame.PlayerName,
		Slot:         joinGame.Slot,
		ConnectionID: clientID,
		Abilities:    joinGame.Abilities,
		IsHost:       joinGame.IsHost,
	})
	if err != nil {
		return fmt.Errorf("failed to add player: %w", err)
	}
	n.ClientManager.JoinRoom(clientID, joinGame.GameID, playerID)
	log.Info("Player %s joined game %s", playerID, joinGame.GameID)
	if moved != nil {
		n.announceRemoval(ctx, moved)
	}

	snapshot := n.SessionManager.GetGameSnapshot(joinGame.GameID)
	var view *types.PlayerView
	for _, p := range snapshot.Players {
		if p.ID == playerID {
			view = p
			break
		}
	}
	if view == nil {
		// removed by a concurrent operation between the join and the snapshot
		return &game.ErrPlayerNotFound{GameID: joinGame.GameID, PlayerID: playerID}
	}

	gameJoined := &messages.GameJoined{
		Success:  true,
		PlayerID: playerID,
		GameID:   joinGame.GameID,
		Player:   view,
	}
	if err := n.sendToClient(ctx, clientID, messages.MessageTypeServerGameJoined, gameJoined); err != nil {
		log.Error("Failed to send game joined: %v", err)
	}

	playerJoined := &messages.PlayerJoined{
		PlayerID: playerID,
		Player:   view,
	}
	if err := n.BroadcastToRoom(ctx, joinGame.GameID, messages.MessageTypeServerPlayerJoined, playerJoined, clientID); err != nil {
		log.Error("Failed to broadcast player joined: %v", err)
	}

	if err := n.sendToClient(ctx, clientID, messages.MessageTypeServerGameState, snapshot); err != nil {
		log.Error("Failed to send game state: %v", err)
	}
	n.enqueueEvent(joinGame.GameID, messages.MessageTypeServerGameState, snapshot)

	return nil
}

func (n *NetworkManager) handleRequestAbility(ctx context.Context, clientID string, message *messages.Message) error {
	requestAbility := &messages.RequestAbility{}
	if err := messages.DecodePayload(message, requestAbility); err != nil {
		return err
	}

	request, err := n.SessionManager.CreateAbilityRequest(requestAbility.GameID, requestAbility.PlayerID, requestAbility.AbilityText)
	if err != nil {
		return err
	}
	log.Info("Player %s requested ability %q in game %s (request %s)", request.PlayerID, request.AbilityText, request.GameID, request.ID)

	if err := n.BroadcastToRoom(ctx, request.GameID, messages.MessageTypeServerAbilityRequested, request, ""); err != nil {
		log.Error("Failed to broadcast ability requested: %v", err)
	}

	sent := &messages.AbilityRequestSent{
		Success:     true,
		RequestID:   request.ID,
		AbilityText: request.AbilityText,
	}
	if err := n.sendToClient(ctx, clientID, messages.MessageTypeServerAbilityRequestSent, sent); err != nil {
		log.Error("Failed to send ability request sent: %v", err)
	}

	return nil
}

func (n *NetworkManager) handleResolveAbilityRequest(ctx context.Context, clientID string, message *messages.Message, resolve func(string) (*types.AbilityRequest, error)) error {
	payload := &messages.ResolveAbilityRequest{}
	if err := messages.DecodePayload(message, payload); err != nil {
		return err
	}

	request, err := resolve(payload.RequestID)
	if err != nil {
		return err
	}
	log.Info("Request %s in game %s %s by client %s", request.ID, request.GameID, request.Status, clientID)

	n.BroadcastRequestResolved(ctx, request)
	return nil
}

// BroadcastRequestResolved broadcasts a resolved request to its game's room and archives it.
func (n *NetworkManager) BroadcastRequestResolved(ctx context.Context, request *types.AbilityRequest) {
	messageType := messages.MessageTypeServerAbilityRequestApproved
	if request.Status == types.RequestStatusRejected {
		messageType = messages.MessageTypeServerAbilityRequestRejected
	}
	if err := n.BroadcastToRoom(ctx, request.GameID, messageType, request, ""); err != nil {
		log.Error("Failed to broadcast %s: %v", messageType, err)
	}
	if n.Archiver != nil {
		n.Archiver.ArchiveRequest(request)
	}
	n.relayGameState(request.GameID)
}

func (n *NetworkManager) handleGetGameState(ctx context.Context, clientID string, message *messages.Message) error {
	getGameState := &messages.GetGameState{}
	if err := messages.DecodePayload(message, getGameState); err != nil {
		return err
	}

	snapshot := n.SessionManager.GetGameSnapshot(getGameState.GameID)
	if err := n.sendToClient(ctx, clientID, messages.MessageTypeServerGameState, snapshot); err != nil {
		log.Error("Failed to send game state: %v", err)
	}
	return nil
}

func (n *NetworkManager) handleSetPlayerAbilities(ctx context.Context, clientID string, message *messages.Message) error {
	setAbilities := &messages.SetPlayerAbilities{}
	if err := messages.DecodePayload(message, setAbilities); err != nil {
		return err
	}

	if err := n.SessionManager.SetAbilities(setAbilities.GameID, setAbilities.Slot, setAbilities.Abilities); err != nil {
		return fmt.Errorf("failed to set abilities: %w", err)
	}
	log.Debug("Abilities for %s in game %s set to %v", setAbilities.Slot, setAbilities.GameID, setAbilities.Abilities)

	updated := &messages.PlayerAbilitiesUpdated{
		Slot:      setAbilities.Slot,
		Abilities: setAbilities.Abilities,
	}
	if err := n.BroadcastToRoom(ctx, setAbilities.GameID, messages.MessageTypeServerPlayerAbilitiesUpdated, updated, ""); err != nil {
		log.Error("Failed to broadcast player abilities updated: %v", err)
	}

	set := &messages.PlayerAbilitiesSet{
		Success:   true,
		Slot:      setAbilities.Slot,
		Abilities: setAbilities.Abilities,
	}
	if err := n.sendToClient(ctx, clientID, messages.MessageTypeServerPlayerAbilitiesSet, set); err != nil {
		log.Error("Failed to send player abilities set: %v", err)
	}
	n.relayGameState(setAbilities.GameID)

	return nil
}

// BroadcastToRoom sends a message to every connection in the game's room except exceptClientID.
// Write failures to individual connections are logged and do not stop the broadcast.
func (n *NetworkManager) BroadcastToRoom(ctx context.Context, gameID string, messageType string, payload interface{}, exceptClientID string) error {
	msg, err := messages.NewMessage(messageType, payload)
	if err != nil {
		return err
	}

	for clientID, conn := range n.ClientManager.RoomConns(gameID, exceptClientID) {
		if err := conn.WriteMessage(ctx, msg); err != nil {
			log.Error("Failed to send %s to client %s: %v", messageType, clientID, err)
		}
	}

	n.enqueueEvent(gameID, messageType, []byte(msg.Payload))
	return nil
}

func (n *NetworkManager) sendToClient(ctx context.Context, clientID string, messageType string, payload interface{}) error {
	msg, err := messages.NewMessage(messageType, payload)
	if err != nil {
		return err
	}
	return n.writeToClient(ctx, clientID, msg)
}

func (n *NetworkManager) sendError(ctx context.Context, clientID string, text string) {
	if err := n.writeToClient(ctx, clientID, messages.NewErrorMessage(text)); err != nil {
		log.Error("Failed to send error to client %s: %v", clientID, err)
	}
}

func (n *NetworkManager) writeToClient(ctx context.Context, clientID string, msg *messages.Message) error {
	conn, ok := n.ClientManager.GetConn(clientID)
	if !ok {
		return fmt.Errorf("client %s is not connected", clientID)
	}
	if err := conn.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s to client %s: %v", msg.Type, clientID, err)
	}
	return nil
}

// relayGameState mirrors the current snapshot of a game to the relays.
func (n *NetworkManager) relayGameState(gameID string) {
	if n.EventQueue == nil {
		return
	}
	n.enqueueEvent(gameID, messages.MessageTypeServerGameState, n.SessionManager.GetGameSnapshot(gameID))
}

func (n *NetworkManager) enqueueEvent(gameID string, eventType string, payload interface{}) {
	if n.EventQueue == nil {
		return
	}
	var raw []byte
	switch p := payload.(type) {
	case []byte:
		raw = p
	default:
		msg, err := messages.NewMessage(eventType, payload)
		if err != nil {
			log.Error("Failed to build %s event: %v", eventType, err)
			return
		}
		raw = msg.Payload
	}

	event := &relay.Event{
		GameID:    gameID,
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now(),
	}
	if err := n.EventQueue.Enqueue(event); err != nil {
		log.Warn("Dropped %s event for game %s: %v", eventType, gameID, err)
	}
}
