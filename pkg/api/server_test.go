package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cbodonnell/battlecards/pkg/api/handlers"
	"github.com/cbodonnell/battlecards/pkg/game"
	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) BroadcastRequestResolved(ctx context.Context, request *types.AbilityRequest) {
	m.Called(ctx, request)
}

type fixedCounter int

func (c fixedCounter) Count() int {
	return int(c)
}

func newTestRouter(t *testing.T, broadcaster handlers.Broadcaster) (http.Handler, *game.SessionManager) {
	sm := game.NewSessionManager(game.NewSessionManagerOptions{})
	router := NewRouter(NewAPIServerOptions{
		SessionManager: sm,
		Broadcaster:    broadcaster,
		Connections:    fixedCounter(3),
	})
	return router, sm
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func seedRequest(t *testing.T, sm *game.SessionManager) *types.AbilityRequest {
	_, _, err := sm.AddPlayer("g1", "player1_a", game.AddPlayerOptions{Name: "Alice", Slot: types.SlotPlayer1})
	require.NoError(t, err)
	request, err := sm.CreateAbilityRequest("g1", "player1_a", "Fireball")
	require.NoError(t, err)
	return request
}

func TestHealth(t *testing.T) {
	router, sm := newTestRouter(t, nil)
	seedRequest(t, sm)

	rec := do(t, router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	health := &handlers.Health{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), health))
	assert.Equal(t, "OK", health.Status)
	assert.Equal(t, 1, health.Games)
	assert.Equal(t, 1, health.Players)
	assert.Equal(t, 1, health.Requests)
	assert.Equal(t, 3, health.Connections)
	assert.False(t, health.Timestamp.IsZero())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetGame(t *testing.T) {
	router, sm := newTestRouter(t, nil)
	request := seedRequest(t, sm)

	tests := []struct {
		name        string
		path        string
		wantPlayers int
		wantPending int
	}{
		{name: "existing game", path: "/games/g1", wantPlayers: 1, wantPending: 1},
		{name: "unknown game", path: "/games/nope", wantPlayers: 0, wantPending: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			snapshot := &types.Snapshot{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), snapshot))
			assert.Len(t, snapshot.Players, tt.wantPlayers)
			assert.Len(t, snapshot.PendingRequests, tt.wantPending)
		})
	}

	rec := do(t, router, http.MethodGet, "/games/g1")
	assert.Contains(t, rec.Body.String(), request.ID)
	assert.NotContains(t, rec.Body.String(), "connection")
	assert.Equal(t, 1, sm.Stats().Games, "reading an unknown game must not create it")
}

func TestListPendingRequests(t *testing.T) {
	router, sm := newTestRouter(t, nil)
	request := seedRequest(t, sm)

	rec := do(t, router, http.MethodGet, "/games/g1/requests")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []*types.AbilityRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, request.ID, pending[0].ID)

	rec = do(t, router, http.MethodGet, "/games/empty/requests")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestResolveRequest(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   types.RequestStatus
	}{
		{name: "approve", action: "approve", want: types.RequestStatusApproved},
		{name: "reject", action: "reject", want: types.RequestStatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broadcaster := &mockBroadcaster{}
			router, sm := newTestRouter(t, broadcaster)
			request := seedRequest(t, sm)
			broadcaster.On("BroadcastRequestResolved", mock.Anything, mock.MatchedBy(func(r *types.AbilityRequest) bool {
				return r.ID == request.ID && r.Status == tt.want
			})).Once()

			rec := do(t, router, http.MethodPost, "/games/g1/requests/"+request.ID+"/"+tt.action)
			require.Equal(t, http.StatusOK, rec.Code)
			resolved := &types.AbilityRequest{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resolved))
			assert.Equal(t, tt.want, resolved.Status)
			assert.Empty(t, sm.GetPendingRequests("g1"))
			broadcaster.AssertExpectations(t)

			rec = do(t, router, http.MethodPost, "/games/g1/requests/"+request.ID+"/"+tt.action)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Request already `+string(tt.want)+`"}`, rec.Body.String())
			broadcaster.AssertNumberOfCalls(t, "BroadcastRequestResolved", 1)
		})
	}
}

func TestResolveRequest_CallerGoneStillBroadcasts(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	router, sm := newTestRouter(t, broadcaster)
	request := seedRequest(t, sm)
	broadcaster.On("BroadcastRequestResolved", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/games/g1/requests/"+request.ID+"/approve", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	broadcaster.AssertExpectations(t)
}

func TestResolveUnknownRequest(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := do(t, router, http.MethodPost, "/games/g1/requests/missing/approve")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Request not found"}`, rec.Body.String())
}

func TestRouting(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{method: http.MethodGet, path: "/nowhere", want: http.StatusNotFound},
		{method: http.MethodDelete, path: "/games/g1", want: http.StatusMethodNotAllowed},
		{method: http.MethodOptions, path: "/games/g1/requests/r1/approve", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
