package network

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	clientnetwork "github.com/cbodonnell/battlecards/pkg/client/network"
	"github.com/cbodonnell/battlecards/pkg/game"
	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/messages"
	"github.com/cbodonnell/battlecards/pkg/queue"
	"github.com/cbodonnell/battlecards/pkg/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	requests chan *types.AbilityRequest
	games    chan *types.Game
}

func newRecordingArchiver() *recordingArchiver {
	return &recordingArchiver{
		requests: make(chan *types.AbilityRequest, 16),
		games:    make(chan *types.Game, 16),
	}
}

func (a *recordingArchiver) ArchiveRequest(request *types.AbilityRequest) {
	a.requests <- request
}

func (a *recordingArchiver) ArchiveGame(game *types.Game) {
	a.games <- game
}

type testGateway struct {
	t        *testing.T
	server   *httptest.Server
	manager  *NetworkManager
	events   *queue.InMemoryQueue
	archiver *recordingArchiver
}

func newTestGateway(t *testing.T) *testGateway {
	events := queue.NewInMemoryQueue(0)
	archiver := newRecordingArchiver()
	manager := NewNetworkManager(NewNetworkManagerOptions{
		SessionManager: game.NewSessionManager(game.NewSessionManagerOptions{}),
		EventQueue:     events,
		Archiver:       archiver,
	})
	server := httptest.NewServer(manager.Handler())
	t.Cleanup(server.Close)
	return &testGateway{
		t:        t,
		server:   server,
		manager:  manager,
		events:   events,
		archiver: archiver,
	}
}

func (g *testGateway) connect() *clientnetwork.WSClient {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := clientnetwork.NewWSClient(g.server.URL + WSPath)
	require.NoError(g.t, c.Connect(ctx))
	g.t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *clientnetwork.WSClient, messageType string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Send(ctx, messageType, payload))
}

// expect reads the next message and checks its type, decoding the payload into v when non-nil.
func expect(t *testing.T, c *clientnetwork.WSClient, messageType string, v interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, messageType, msg.Type, "payload: %s", msg.Payload)
	if v != nil {
		require.NoError(t, json.Unmarshal(msg.Payload, v))
	}
}

// expectQuiet proves nothing is queued for c by round-tripping a state request.
func expectQuiet(t *testing.T, c *clientnetwork.WSClient, gameID string) *types.Snapshot {
	t.Helper()
	send(t, c, messages.MessageTypeClientGetGameState, &messages.GetGameState{GameID: gameID})
	snapshot := &types.Snapshot{}
	expect(t, c, messages.MessageTypeServerGameState, snapshot)
	return snapshot
}

func join(t *testing.T, c *clientnetwork.WSClient, gameID string, slot types.Slot, name string, abilities ...string) string {
	t.Helper()
	send(t, c, messages.MessageTypeClientJoinGame, &messages.JoinGame{
		GameID:     gameID,
		Slot:       slot,
		PlayerName: name,
		Abilities:  abilities,
		IsHost:     slot == types.SlotPlayer1,
	})
	joined := &messages.GameJoined{}
	expect(t, c, messages.MessageTypeServerGameJoined, joined)
	require.True(t, joined.Success)
	expect(t, c, messages.MessageTypeServerGameState, nil)
	return joined.PlayerID
}

func TestNetworkManager_JoinGame(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()
	bob := g.connect()

	send(t, alice, messages.MessageTypeClientJoinGame, &messages.JoinGame{
		GameID:     "g1",
		Slot:       types.SlotPlayer1,
		PlayerName: "Alice",
		Abilities:  []string{"Fireball"},
		IsHost:     true,
	})
	joined := &messages.GameJoined{}
	expect(t, alice, messages.MessageTypeServerGameJoined, joined)
	assert.Equal(t, "g1", joined.GameID)
	assert.Contains(t, joined.PlayerID, "player1_")
	assert.Equal(t, "Alice", joined.Player.Name)
	assert.Equal(t, []string{"Fireball"}, joined.Player.Abilities)
	assert.True(t, joined.Player.IsHost)
	snapshot := &types.Snapshot{}
	expect(t, alice, messages.MessageTypeServerGameState, snapshot)
	assert.Len(t, snapshot.Players, 1)
	assert.Equal(t, types.GameStatusWaiting, snapshot.Status)

	bobID := join(t, bob, "g1", types.SlotPlayer2, "Bob")

	playerJoined := &messages.PlayerJoined{}
	expect(t, alice, messages.MessageTypeServerPlayerJoined, playerJoined)
	assert.Equal(t, bobID, playerJoined.PlayerID)
	assert.Equal(t, "Bob", playerJoined.Player.Name)

	snapshot = expectQuiet(t, bob, "g1")
	assert.Len(t, snapshot.Players, 2)
	assert.Equal(t, types.GameStatusActive, snapshot.Status)
}

func TestNetworkManager_InvalidJoin(t *testing.T) {
	g := newTestGateway(t)
	c := g.connect()

	send(t, c, messages.MessageTypeClientJoinGame, &messages.JoinGame{GameID: "g1", Slot: "player3"})
	errMsg := &messages.Error{}
	expect(t, c, messages.MessageTypeServerError, errMsg)
	assert.Contains(t, errMsg.Message, "slot")

	assert.Equal(t, 0, g.manager.SessionManager.Stats().Games)
}

func TestNetworkManager_RequestAbilityBroadcast(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()
	bob := g.connect()
	other := g.connect()

	aliceID := join(t, alice, "g1", types.SlotPlayer1, "Alice")
	join(t, bob, "g1", types.SlotPlayer2, "Bob")
	expect(t, alice, messages.MessageTypeServerPlayerJoined, nil)
	join(t, other, "g2", types.SlotPlayer1, "Alice")

	send(t, alice, messages.MessageTypeClientRequestAbility, &messages.RequestAbility{
		GameID:      "g1",
		PlayerID:    aliceID,
		AbilityText: "Fireball",
	})

	requested := &types.AbilityRequest{}
	expect(t, alice, messages.MessageTypeServerAbilityRequested, requested)
	assert.Equal(t, "Fireball", requested.AbilityText)
	assert.Equal(t, "Alice", requested.PlayerName)
	assert.Equal(t, types.RequestStatusPending, requested.Status)
	sent := &messages.AbilityRequestSent{}
	expect(t, alice, messages.MessageTypeServerAbilityRequestSent, sent)
	assert.Equal(t, requested.ID, sent.RequestID)

	fromBob := &types.AbilityRequest{}
	expect(t, bob, messages.MessageTypeServerAbilityRequested, fromBob)
	assert.Equal(t, requested.ID, fromBob.ID)

	snapshot := expectQuiet(t, other, "g2")
	assert.Empty(t, snapshot.PendingRequests)
}

func TestNetworkManager_ErrorsGoOnlyToRequester(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()
	bob := g.connect()

	join(t, alice, "g1", types.SlotPlayer1, "Alice")
	join(t, bob, "g1", types.SlotPlayer2, "Bob")
	expect(t, alice, messages.MessageTypeServerPlayerJoined, nil)

	tests := []struct {
		name        string
		messageType string
		payload     interface{}
		want        string
	}{
		{
			name:        "unknown player",
			messageType: messages.MessageTypeClientRequestAbility,
			payload:     &messages.RequestAbility{GameID: "g1", PlayerID: "player1_nobody", AbilityText: "x"},
			want:        "Player not found",
		},
		{
			name:        "unknown request",
			messageType: messages.MessageTypeClientApproveAbilityRequest,
			payload:     &messages.ResolveAbilityRequest{RequestID: "missing"},
			want:        "Request not found",
		},
		{
			name:        "unknown message type",
			messageType: "launchMissiles",
			payload:     map[string]string{},
			want:        "invalid launchMissiles payload: unknown message type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, alice, tt.messageType, tt.payload)
			errMsg := &messages.Error{}
			expect(t, alice, messages.MessageTypeServerError, errMsg)
			assert.Equal(t, tt.want, errMsg.Message)
		})
	}

	expectQuiet(t, bob, "g1")
}

func TestNetworkManager_MalformedMessageKeepsConnection(t *testing.T) {
	g := newTestGateway(t)
	c := g.connect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.SendRaw(ctx, []byte(`{"type":`)))

	errMsg := &messages.Error{}
	expect(t, c, messages.MessageTypeServerError, errMsg)
	assert.Equal(t, "Malformed message", errMsg.Message)

	send(t, c, "castSpell", &messages.GetGameState{GameID: "g1"})
	expect(t, c, messages.MessageTypeServerError, errMsg)
	assert.Equal(t, "invalid castSpell payload: unknown message type", errMsg.Message)

	expectQuiet(t, c, "g1")
}

type recordingConn struct {
	fakeConn
	written []*messages.Message
}

func (c *recordingConn) WriteMessage(_ context.Context, msg *messages.Message) error {
	c.written = append(c.written, msg)
	return nil
}

func TestNetworkManager_RecoversFromHandlerPanic(t *testing.T) {
	// no session manager, so every game operation panics
	n := &NetworkManager{ClientManager: NewClientManager()}
	conn := &recordingConn{}
	clientID := n.ClientManager.ConnectClient(conn)

	msg, err := messages.NewMessage(messages.MessageTypeClientGetGameState, &messages.GetGameState{GameID: "g1"})
	require.NoError(t, err)
	n.handleMessage(context.Background(), clientID, msg)

	require.Len(t, conn.written, 1)
	errMsg := &messages.Error{}
	require.NoError(t, json.Unmarshal(conn.written[0].Payload, errMsg))
	assert.Equal(t, messages.MessageTypeServerError, conn.written[0].Type)
	assert.Equal(t, "Internal server error", errMsg.Message)
}

func TestNetworkManager_ResolveAbilityRequest(t *testing.T) {
	g := newTestGateway(t)
	host := g.connect()
	guest := g.connect()

	join(t, host, "g1", types.SlotPlayer1, "Alice")
	guestID := join(t, guest, "g1", types.SlotPlayer2, "Bob")
	expect(t, host, messages.MessageTypeServerPlayerJoined, nil)

	send(t, guest, messages.MessageTypeClientRequestAbility, &messages.RequestAbility{GameID: "g1", PlayerID: guestID, AbilityText: "Heal"})
	requested := &types.AbilityRequest{}
	expect(t, guest, messages.MessageTypeServerAbilityRequested, requested)
	expect(t, guest, messages.MessageTypeServerAbilityRequestSent, nil)
	expect(t, host, messages.MessageTypeServerAbilityRequested, nil)

	send(t, host, messages.MessageTypeClientApproveAbilityRequest, &messages.ResolveAbilityRequest{RequestID: requested.ID})
	approved := &types.AbilityRequest{}
	expect(t, host, messages.MessageTypeServerAbilityRequestApproved, approved)
	assert.Equal(t, types.RequestStatusApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)
	expect(t, guest, messages.MessageTypeServerAbilityRequestApproved, nil)

	send(t, host, messages.MessageTypeClientRejectAbilityRequest, &messages.ResolveAbilityRequest{RequestID: requested.ID})
	errMsg := &messages.Error{}
	expect(t, host, messages.MessageTypeServerError, errMsg)
	assert.Equal(t, "Request already approved", errMsg.Message)

	snapshot := expectQuiet(t, guest, "g1")
	assert.Empty(t, snapshot.PendingRequests)

	select {
	case archived := <-g.archiver.requests:
		assert.Equal(t, requested.ID, archived.ID)
	case <-time.After(time.Second):
		t.Fatal("resolved request was not archived")
	}
}

func TestNetworkManager_SetPlayerAbilities(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()
	bob := g.connect()

	join(t, alice, "g1", types.SlotPlayer1, "Alice", "Fireball", "Shield")
	join(t, bob, "g1", types.SlotPlayer2, "Bob")
	expect(t, alice, messages.MessageTypeServerPlayerJoined, nil)

	send(t, alice, messages.MessageTypeClientSetPlayerAbilities, &messages.SetPlayerAbilities{
		GameID:    "g1",
		Slot:      types.SlotPlayer1,
		Abilities: []string{"Heal"},
	})
	updated := &messages.PlayerAbilitiesUpdated{}
	expect(t, alice, messages.MessageTypeServerPlayerAbilitiesUpdated, updated)
	assert.Equal(t, []string{"Heal"}, updated.Abilities)
	set := &messages.PlayerAbilitiesSet{}
	expect(t, alice, messages.MessageTypeServerPlayerAbilitiesSet, set)
	assert.True(t, set.Success)
	expect(t, bob, messages.MessageTypeServerPlayerAbilitiesUpdated, nil)

	snapshot := expectQuiet(t, bob, "g1")
	assert.Equal(t, []string{"Heal"}, snapshot.Abilities[types.SlotPlayer1])
	assert.Equal(t, []string{"Heal"}, snapshot.Players[0].Abilities)
}

func TestNetworkManager_DisconnectRemovesPlayer(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()
	bob := g.connect()

	join(t, alice, "g1", types.SlotPlayer1, "Alice")
	bobID := join(t, bob, "g1", types.SlotPlayer2, "Bob")
	expect(t, alice, messages.MessageTypeServerPlayerJoined, nil)

	bob.Close()

	left := &messages.PlayerLeft{}
	expect(t, alice, messages.MessageTypeServerPlayerLeft, left)
	assert.Equal(t, bobID, left.PlayerID)
	assert.Equal(t, "Bob", left.PlayerName)

	snapshot := expectQuiet(t, alice, "g1")
	assert.Len(t, snapshot.Players, 1)

	require.NoError(t, alice.Close())
	select {
	case closed := <-g.archiver.games:
		assert.Equal(t, "g1", closed.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("closed game was not archived")
	}
	assert.Equal(t, 0, g.manager.SessionManager.Stats().Games)
	assert.Eventually(t, func() bool {
		return g.manager.ClientManager.Count() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNetworkManager_JoinAnotherGameLeavesPrevious(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()
	bob := g.connect()

	aliceID := join(t, alice, "g1", types.SlotPlayer1, "Alice")
	join(t, bob, "g1", types.SlotPlayer2, "Bob")
	expect(t, alice, messages.MessageTypeServerPlayerJoined, nil)
	// the round-trip makes sure bob's join has finished enqueueing its events
	expectQuiet(t, bob, "g1")
	g.events.ClearQueue()

	movedID := join(t, alice, "g2", types.SlotPlayer1, "Alice")
	assert.Equal(t, aliceID, movedID)

	left := &messages.PlayerLeft{}
	expect(t, bob, messages.MessageTypeServerPlayerLeft, left)
	assert.Equal(t, aliceID, left.PlayerID)
	assert.Equal(t, "Alice", left.PlayerName)
	assert.Len(t, expectQuiet(t, bob, "g1").Players, 1)

	// alice no longer hears about g1
	expectQuiet(t, alice, "g2")

	var g1Events []string
	for _, item := range g.events.ReadAllMessages() {
		if event := item.(*relay.Event); event.GameID == "g1" {
			g1Events = append(g1Events, event.Type)
		}
	}
	assert.Equal(t, []string{messages.MessageTypeServerPlayerLeft, messages.MessageTypeServerGameState}, g1Events)

	select {
	case closed := <-g.archiver.games:
		t.Fatalf("game %s archived while bob is still in g1", closed.ID)
	default:
	}
}

func TestNetworkManager_JoinAnotherGameClosesEmptyGame(t *testing.T) {
	g := newTestGateway(t)
	carol := g.connect()

	join(t, carol, "g3", types.SlotPlayer1, "Carol")
	join(t, carol, "g4", types.SlotPlayer1, "Carol")

	select {
	case closed := <-g.archiver.games:
		assert.Equal(t, "g3", closed.ID)
		assert.Empty(t, closed.Players)
	case <-time.After(5 * time.Second):
		t.Fatal("emptied game was not archived")
	}
	stats := g.manager.SessionManager.Stats()
	assert.Equal(t, 1, stats.Games)
	assert.Equal(t, 1, stats.Players)
}

func TestWSServer_WaitCoversDisconnectHandling(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()
	join(t, alice, "g1", types.SlotPlayer1, "Alice")

	require.NoError(t, alice.Close())
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.manager.WSServer.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("read loops did not finish")
	}

	// the disconnect has been fully handled by the time Wait returns
	select {
	case closed := <-g.archiver.games:
		assert.Equal(t, "g1", closed.ID)
	default:
		t.Fatal("closed game was not archived before Wait returned")
	}
}

func TestNetworkManager_RelaysRoomBroadcasts(t *testing.T) {
	g := newTestGateway(t)
	alice := g.connect()

	aliceID := join(t, alice, "g1", types.SlotPlayer1, "Alice")
	send(t, alice, messages.MessageTypeClientRequestAbility, &messages.RequestAbility{GameID: "g1", PlayerID: aliceID, AbilityText: "Fireball"})
	expect(t, alice, messages.MessageTypeServerAbilityRequested, nil)
	expect(t, alice, messages.MessageTypeServerAbilityRequestSent, nil)

	var eventTypes []string
	for _, item := range g.events.ReadAllMessages() {
		event, ok := item.(*relay.Event)
		require.True(t, ok)
		assert.Equal(t, "g1", event.GameID)
		eventTypes = append(eventTypes, event.Type)
	}
	assert.Equal(t, []string{
		messages.MessageTypeServerPlayerJoined,
		messages.MessageTypeServerGameState,
		messages.MessageTypeServerAbilityRequested,
	}, eventTypes)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: &game.ErrPlayerNotFound{GameID: "g1", PlayerID: "p"}, want: "Player not found"},
		{err: &game.ErrRequestNotFound{RequestID: "r"}, want: "Request not found"},
		{err: &game.ErrRequestAlreadyResolved{RequestID: "r", Status: types.RequestStatusRejected}, want: "Request already rejected"},
		{err: &messages.ErrInvalidPayload{Type: "joinGame", Reason: "gameId is required"}, want: "invalid joinGame payload: gameId is required"},
		{err: assert.AnError, want: "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage(tt.err))
		})
	}
}
