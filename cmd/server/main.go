package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cbodonnell/battlecards/pkg/api"
	"github.com/cbodonnell/battlecards/pkg/game"
	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/cbodonnell/battlecards/pkg/network"
	"github.com/cbodonnell/battlecards/pkg/queue"
	"github.com/cbodonnell/battlecards/pkg/relay"
	"github.com/cbodonnell/battlecards/pkg/repositories"
	"github.com/cbodonnell/battlecards/pkg/version"
	"github.com/cbodonnell/battlecards/pkg/workers"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 5 * time.Second

func main() {
	port := flag.Int("port", 3001, "HTTP API port to listen on")
	wsPort := flag.Int("ws-port", 3000, "WebSocket port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	requestTTL := flag.Duration("request-ttl", 0, "Prune pending ability requests older than this (0 disables)")
	reapInterval := flag.Duration("reap-interval", time.Minute, "How often to look for idle games")
	idleGameTimeout := flag.Duration("idle-game-timeout", 30*time.Minute, "Remove games without players idle for this long")
	envFile := flag.String("env-file", ".env", "Optional file of environment variables")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		panic(fmt.Sprintf("Failed to load env file %s: %v", *envFile, err))
	}

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting battlecards server version %s", version.Get())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// workers outlive ctx so they can take what the gateway emits while disconnecting clients
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	var wg sync.WaitGroup
	runWorker := func(start func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(workerCtx)
		}()
	}

	sessionManager := game.NewSessionManager(game.NewSessionManagerOptions{
		RequestTTL: *requestTTL,
	})

	var archiver network.Archiver
	var repository repositories.Repository
	if archiveURL := os.Getenv("BATTLECARDS_ARCHIVE_URL"); archiveURL != "" {
		repository, err = repositories.NewRepository(ctx, repositories.NewRepositoryOptions{
			URL:           archiveURL,
			MigrationsDir: migrationsDir(archiveURL),
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create repository: %v", err))
		}
		archiveWorker := workers.NewArchiveWorker(workers.NewArchiveWorkerOptions{
			Repository: repository,
		})
		runWorker(archiveWorker.Start)
		archiver = archiveWorker
		log.Info("Archiving resolved requests and closed games")
	}

	relays := newRelays(ctx)
	var eventQueue queue.Queue
	if len(relays) > 0 {
		eventQueue = queue.NewInMemoryQueue(queue.QueueBufferSize)
		relayWorker := workers.NewRelayWorker(workers.NewRelayWorkerOptions{
			EventQueue: eventQueue,
			Relays:     relays,
		})
		runWorker(relayWorker.Start)
	}

	if *reapInterval > 0 && *idleGameTimeout > 0 {
		reaperWorker := workers.NewReaperWorker(workers.NewReaperWorkerOptions{
			SessionManager: sessionManager,
			Interval:       *reapInterval,
			MaxIdle:        *idleGameTimeout,
		})
		runWorker(reaperWorker.Start)
	} else {
		log.Warn("Idle game reaping disabled")
	}

	var tlsConfig *network.TLSConfig
	var apiTLSConfig *api.TLSConfig
	tlsCertFile := os.Getenv("BATTLECARDS_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("BATTLECARDS_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		tlsConfig = &network.TLSConfig{CertFile: tlsCertFile, KeyFile: tlsKeyFile}
		apiTLSConfig = &api.TLSConfig{CertFile: tlsCertFile, KeyFile: tlsKeyFile}
	}

	allowOrigin := os.Getenv("BATTLECARDS_ALLOW_ORIGIN")
	networkManager := network.NewNetworkManager(network.NewNetworkManagerOptions{
		SessionManager: sessionManager,
		EventQueue:     eventQueue,
		Archiver:       archiver,
		WSPort:         *wsPort,
		WSServerTLS:    tlsConfig,
		OriginPatterns: originPatterns(allowOrigin),
	})

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:           *port,
		TLS:            apiTLSConfig,
		SessionManager: sessionManager,
		Broadcaster:    networkManager,
		Connections:    networkManager.ClientManager,
		AllowOrigin:    allowOrigin,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error("Failed to start API server: %v", err)
			stop()
		}
	}()
	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := networkManager.Start(ctx); err != nil {
			log.Error("Failed to start network manager: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}

	// every connection has been disconnected once the gateway returns
	select {
	case <-gatewayDone:
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for connections to close")
	}

	// workers flush what is still buffered once their context is done
	stopWorkers()
	wg.Wait()

	for _, r := range relays {
		if err := r.Close(); err != nil {
			log.Error("Failed to close %s relay: %v", r.Name(), err)
		}
	}
	if repository != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if err := repository.Close(closeCtx); err != nil {
			log.Error("Failed to close repository: %v", err)
		}
	}
	log.Info("Server stopped")
}

func newRelays(ctx context.Context) []relay.Relay {
	var relays []relay.Relay

	if databaseURL := os.Getenv("BATTLECARDS_FIREBASE_DATABASE_URL"); databaseURL != "" {
		firebaseRelay, err := relay.NewFirebaseRelay(ctx, relay.NewFirebaseRelayOptions{
			DatabaseURL:     databaseURL,
			CredentialsFile: os.Getenv("BATTLECARDS_FIREBASE_CREDENTIALS"),
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create Firebase relay: %v", err))
		}
		relays = append(relays, firebaseRelay)
		log.Info("Relaying room events to Firebase")
	}

	if natsURL := os.Getenv("BATTLECARDS_NATS_URL"); natsURL != "" {
		natsRelay, err := relay.NewNATSRelay(relay.NewNATSRelayOptions{
			URL:  natsURL,
			Name: "battlecards-" + version.Get(),
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create NATS relay: %v", err))
		}
		relays = append(relays, natsRelay)
		log.Info("Relaying room events to NATS")
	}

	return relays
}

func migrationsDir(archiveURL string) string {
	if strings.HasPrefix(archiveURL, "postgres") {
		if dir := os.Getenv("BATTLECARDS_POSTGRES_MIGRATIONS"); dir != "" {
			return dir
		}
		return "./migrations/postgres"
	}
	if dir := os.Getenv("BATTLECARDS_SQLITE_MIGRATIONS"); dir != "" {
		return dir
	}
	return "./migrations/sqlite"
}

// originPatterns converts the CORS origin into websocket origin patterns. "*" or empty allows any origin.
func originPatterns(allowOrigin string) []string {
	if allowOrigin == "" || allowOrigin == "*" {
		return nil
	}
	var patterns []string
	for _, origin := range strings.Split(allowOrigin, ",") {
		origin = strings.TrimSpace(origin)
		origin = strings.TrimPrefix(origin, "https://")
		origin = strings.TrimPrefix(origin, "http://")
		if origin != "" {
			patterns = append(patterns, origin)
		}
	}
	return patterns
}
