package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game"
	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/cbodonnell/battlecards/pkg/network"
	"github.com/cbodonnell/battlecards/pkg/version"
	"github.com/gorilla/mux"
)

// Broadcaster publishes a resolved request to the realtime room of its game.
type Broadcaster interface {
	BroadcastRequestResolved(ctx context.Context, request *types.AbilityRequest)
}

type ConnectionCounter interface {
	Count() int
}

type Health struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Games       int       `json:"games"`
	Players     int       `json:"players"`
	Requests    int       `json:"requests"`
	Connections int       `json:"connections"`
	Version     string    `json:"version"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func HandleHealth(sm *game.SessionManager, connections ConnectionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := sm.Stats()
		health := &Health{
			Status:    "OK",
			Timestamp: time.Now().UTC(),
			Games:     stats.Games,
			Players:   stats.Players,
			Requests:  stats.Requests,
			Version:   version.Get(),
		}
		if connections != nil {
			health.Connections = connections.Count()
		}
		WriteJSON(w, http.StatusOK, health)
	}
}

// HandleGetGame never 404s: an unknown game yields the snapshot of an empty game.
func HandleGetGame(sm *game.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := mux.Vars(r)["gameID"]
		WriteJSON(w, http.StatusOK, sm.GetGameSnapshot(gameID))
	}
}

func HandleListPendingRequests(sm *game.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := mux.Vars(r)["gameID"]
		WriteJSON(w, http.StatusOK, sm.GetPendingRequests(gameID))
	}
}

// HandleResolveRequest approves or rejects a request depending on resolve.
// Any failure is reported as a 500 with an error body.
func HandleResolveRequest(resolve func(requestID string) (*types.AbilityRequest, error), broadcaster Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		request, err := resolve(vars["requestID"])
		if err != nil {
			log.Warn("failed to resolve request %s: %v", vars["requestID"], err)
			WriteError(w, http.StatusInternalServerError, network.ErrorMessage(err))
			return
		}
		if request.GameID != vars["gameID"] {
			log.Warn("request %s resolved through game %s but belongs to game %s", request.ID, vars["gameID"], request.GameID)
		}
		log.Info("Request %s in game %s %s over HTTP", request.ID, request.GameID, request.Status)

		if broadcaster != nil {
			// the room is told even if the HTTP caller has already gone away
			broadcaster.BroadcastRequestResolved(context.WithoutCancel(r.Context()), request)
		}
		WriteJSON(w, http.StatusOK, request)
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, &ErrorResponse{Error: message})
}
