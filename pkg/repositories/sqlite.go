package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game/types"
	"github.com/cbodonnell/battlecards/pkg/repositories/models"
	_ "github.com/mattn/go-sqlite3"
)

var _ Repository = &SQLiteRepository{}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string, migrations string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	statements, err := readMigrations(migrations)
	if err != nil {
		db.Close()
		return nil, err
	}
	for i, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveAbilityRequest(ctx context.Context, request *types.AbilityRequest) error {
	q := `
	INSERT OR REPLACE INTO ability_requests
	(request_id, game_id, player_id, player_name, player_slot, ability_text, status, created_at, approved_at, rejected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q,
		request.ID,
		request.GameID,
		request.PlayerID,
		request.PlayerName,
		string(request.PlayerSlot),
		request.AbilityText,
		string(request.Status),
		request.CreatedAt.UTC(),
		nullTime(request.ApprovedAt),
		nullTime(request.RejectedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ability request: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) ListAbilityRequests(ctx context.Context, gameID string) ([]*types.AbilityRequest, error) {
	q := `
	SELECT request_id, game_id, player_id, player_name, player_slot, ability_text, status, created_at, approved_at, rejected_at
	FROM ability_requests
	WHERE game_id = ?
	ORDER BY created_at, request_id;
	`
	rows, err := r.db.QueryContext(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ability requests: %v", err)
	}
	defer rows.Close()

	requests := make([]*types.AbilityRequest, 0)
	for rows.Next() {
		request := &types.AbilityRequest{}
		var approvedAt, rejectedAt sql.NullTime
		if err := rows.Scan(
			&request.ID,
			&request.GameID,
			&request.PlayerID,
			&request.PlayerName,
			&request.PlayerSlot,
			&request.AbilityText,
			&request.Status,
			&request.CreatedAt,
			&approvedAt,
			&rejectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ability request: %v", err)
		}
		request.ApprovedAt = timePtr(approvedAt)
		request.RejectedAt = timePtr(rejectedAt)
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ability requests: %v", err)
	}

	return requests, nil
}

func (r *SQLiteRepository) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	q := `
	INSERT OR REPLACE INTO game_records (game_id, created_at, closed_at, snapshot)
	VALUES (?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q, record.GameID, record.CreatedAt.UTC(), record.ClosedAt.UTC(), record.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to insert game record: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) LoadGameRecord(ctx context.Context, gameID string) (*models.GameRecord, error) {
	q := `
	SELECT game_id, created_at, closed_at, snapshot FROM game_records WHERE game_id = ?;
	`
	record := &models.GameRecord{}
	if err := r.db.QueryRowContext(ctx, q, gameID).Scan(&record.GameID, &record.CreatedAt, &record.ClosedAt, &record.Snapshot); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan game record: %v", err)
	}

	return record, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
