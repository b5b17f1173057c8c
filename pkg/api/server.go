package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/battlecards/pkg/api/handlers"
	"github.com/cbodonnell/battlecards/pkg/api/middleware"
	"github.com/cbodonnell/battlecards/pkg/game"
	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port           int
	TLS            *TLSConfig
	SessionManager *game.SessionManager
	// Broadcaster pushes REST-resolved requests to the realtime rooms. Optional.
	Broadcaster handlers.Broadcaster
	// Connections reports the number of realtime connections on /health. Optional.
	Connections handlers.ConnectionCounter
	AllowOrigin string
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// NewRouter builds the API routes.
func NewRouter(opts NewAPIServerOptions) http.Handler {
	sm := opts.SessionManager

	r := mux.NewRouter()
	r.Use(middleware.NewRecoverMiddleware())
	r.Use(middleware.NewCORSMiddleware(opts.AllowOrigin))

	r.HandleFunc("/health", handlers.HandleHealth(sm, opts.Connections)).Methods(http.MethodGet)
	r.HandleFunc("/games/{gameID}", handlers.HandleGetGame(sm)).Methods(http.MethodGet)
	r.HandleFunc("/games/{gameID}/requests", handlers.HandleListPendingRequests(sm)).Methods(http.MethodGet)
	r.HandleFunc("/games/{gameID}/requests/{requestID}/approve", handlers.HandleResolveRequest(sm.ApproveAbilityRequest, opts.Broadcaster)).Methods(http.MethodPost)
	r.HandleFunc("/games/{gameID}/requests/{requestID}/reject", handlers.HandleResolveRequest(sm.RejectAbilityRequest, opts.Broadcaster)).Methods(http.MethodPost)
	// preflight requests are answered by the CORS middleware
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// Start starts the APIServer
func (s *APIServer) Start() error {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return nil
		}
		return fmt.Errorf("api server error: %v", err)
	}
	return nil
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
