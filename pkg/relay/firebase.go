package relay

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/db"
	"google.golang.org/api/option"
)

// StateEventType marks events whose payload is a full game snapshot.
const StateEventType = "gameState"

var _ Relay = &FirebaseRelay{}

// FirebaseRelay mirrors room events into a Firebase Realtime Database.
// Events are pushed under games/<gameId>/events and snapshots are stored at games/<gameId>/state.
type FirebaseRelay struct {
	client *db.Client
}

type NewFirebaseRelayOptions struct {
	DatabaseURL     string
	CredentialsFile string
}

func NewFirebaseRelay(ctx context.Context, opts NewFirebaseRelayOptions) (*FirebaseRelay, error) {
	cfg := &firebase.Config{
		DatabaseURL: opts.DatabaseURL,
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, cfg, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %v", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Database client: %v", err)
	}

	return &FirebaseRelay{
		client: client,
	}, nil
}

func (r *FirebaseRelay) Name() string {
	return "firebase"
}

func (r *FirebaseRelay) Publish(ctx context.Context, event *Event) error {
	if event.Type == StateEventType {
		if err := r.client.NewRef(statePath(event.GameID)).Set(ctx, event.Payload); err != nil {
			return fmt.Errorf("failed to set game state: %v", err)
		}
		return nil
	}

	if _, err := r.client.NewRef(eventsPath(event.GameID)).Push(ctx, event); err != nil {
		return fmt.Errorf("failed to push event: %v", err)
	}
	return nil
}

// Close is a no-op; the database client holds no resources that need releasing.
func (r *FirebaseRelay) Close() error {
	return nil
}

func eventsPath(gameID string) string {
	return fmt.Sprintf("games/%s/events", EscapeKey(gameID))
}

func statePath(gameID string) string {
	return fmt.Sprintf("games/%s/state", EscapeKey(gameID))
}
