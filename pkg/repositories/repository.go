package repositories

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/repositories/models"
)

// Repository archives resolved ability requests and closed games.
// Live game state never reads from it.
type Repository interface {
	Close(ctx context.Context) error
	// SaveAbilityRequest inserts or replaces a request by ID.
	SaveAbilityRequest(ctx context.Context, request *types.AbilityRequest) error
	// ListAbilityRequests returns a game's archived requests oldest first.
	ListAbilityRequests(ctx context.Context, gameID string) ([]*types.AbilityRequest, error)
	// SaveGameRecord inserts or replaces the record of a game. A reused game ID keeps only its latest record.
	SaveGameRecord(ctx context.Context, record *models.GameRecord) error
	LoadGameRecord(ctx context.Context, gameID string) (*models.GameRecord, error)
}

type NewRepositoryOptions struct {
	// URL is sqlite://<path> or postgres[ql]://...
	URL string
	// MigrationsDir is applied on open
	MigrationsDir string
}

// NewRepository opens the repository matching the URL scheme.
func NewRepository(ctx context.Context, opts NewRepositoryOptions) (Repository, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository url: %v", err)
	}

	switch u.Scheme {
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(opts.URL, u.Scheme+"://")
		return NewSQLiteRepository(ctx, path, opts.MigrationsDir)
	case "postgres", "postgresql":
		return NewPostgresRepository(ctx, opts.URL, opts.MigrationsDir)
	default:
		return nil, fmt.Errorf("unsupported repository scheme %q", u.Scheme)
	}
}

// readMigrations returns the contents of every file in dir in name order.
func readMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	migrations := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(dir, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}
		migrations = append(migrations, string(migration))
	}
	return migrations, nil
}
