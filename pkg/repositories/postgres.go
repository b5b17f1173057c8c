package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/log"
	"github.com/cbodonnell/battlecards/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
)

var _ Repository = &PostgresRepository{}

// PostgresRepository holds a single connection. It is not safe for concurrent use;
// the archive worker is its only writer.
type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to the database and applies the migrations in migrations, if set.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string, migrations string) (*PostgresRepository, error) {
	conn, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if migrations != "" {
		statements, err := readMigrations(migrations)
		if err != nil {
			conn.Close(ctx)
			return nil, err
		}
		for i, statement := range statements {
			if _, err := conn.Exec(ctx, statement); err != nil {
				conn.Close(ctx)
				return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
			}
		}
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)

	return conn, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveAbilityRequest(ctx context.Context, request *types.AbilityRequest) error {
	q := `
	INSERT INTO ability_requests
	(request_id, game_id, player_id, player_name, player_slot, ability_text, status, created_at, approved_at, rejected_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (request_id) DO UPDATE SET status = $7, approved_at = $9, rejected_at = $10;
	`
	_, err := r.conn.Exec(ctx, q,
		request.ID,
		request.GameID,
		request.PlayerID,
		request.PlayerName,
		string(request.PlayerSlot),
		request.AbilityText,
		string(request.Status),
		request.CreatedAt,
		request.ApprovedAt,
		request.RejectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ability request: %v", err)
	}

	return nil
}

func (r *PostgresRepository) ListAbilityRequests(ctx context.Context, gameID string) ([]*types.AbilityRequest, error) {
	q := `
	SELECT request_id, game_id, player_id, player_name, player_slot, ability_text, status, created_at, approved_at, rejected_at
	FROM ability_requests
	WHERE game_id = $1
	ORDER BY created_at, request_id;
	`
	rows, err := r.conn.Query(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ability requests: %v", err)
	}
	defer rows.Close()

	requests := make([]*types.AbilityRequest, 0)
	for rows.Next() {
		request := &types.AbilityRequest{}
		var slot, status string
		if err := rows.Scan(
			&request.ID,
			&request.GameID,
			&request.PlayerID,
			&request.PlayerName,
			&slot,
			&request.AbilityText,
			&status,
			&request.CreatedAt,
			&request.ApprovedAt,
			&request.RejectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ability request: %v", err)
		}
		request.PlayerSlot = types.Slot(slot)
		request.Status = types.RequestStatus(status)
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ability requests: %v", err)
	}

	return requests, nil
}

func (r *PostgresRepository) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	q := `
	INSERT INTO game_records (game_id, created_at, closed_at, snapshot) VALUES ($1, $2, $3, $4)
	ON CONFLICT (game_id) DO UPDATE SET created_at = $2, closed_at = $3, snapshot = $4;
	`
	_, err := r.conn.Exec(ctx, q, record.GameID, record.CreatedAt, record.ClosedAt, record.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to insert game record: %v", err)
	}

	return nil
}

func (r *PostgresRepository) LoadGameRecord(ctx context.Context, gameID string) (*models.GameRecord, error) {
	q := `
	SELECT game_id, created_at, closed_at, snapshot FROM game_records WHERE game_id = $1;
	`
	record := &models.GameRecord{}
	if err := r.conn.QueryRow(ctx, q, gameID).Scan(&record.GameID, &record.CreatedAt, &record.ClosedAt, &record.Snapshot); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan game record: %v", err)
	}

	return record, nil
}
