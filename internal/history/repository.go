// Package history archives finished sessions to Postgres for a short
// retention window. The live tree store stays the source of truth until the
// session finishes; the archive only ever sees terminal records.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cardarena/internal/models"
)

// Querier defines what the repository needs from the database layer.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ArchivedSession is one finished session as stored in the archive.
type ArchivedSession struct {
	ID         string          `json:"id"`
	GameKind   models.GameKind `json:"game_kind"`
	HostID     string          `json:"host_id"`
	PlayerIDs  []string        `json:"player_ids"`
	Winner     string          `json:"winner"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Record     json.RawMessage `json:"record"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// Repository implements archive data access.
type Repository struct {
	db Querier
}

// NewRepository creates a new history repository.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// Archive stores a finished session. A rematch finishes the same session id
// again, so the insert upserts on id.
func (r *Repository) Archive(ctx context.Context, s *models.Session) error {
	if s.Status != models.SessionStatusFinished {
		return fmt.Errorf("session %s is not finished", s.ID)
	}
	record, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	finishedAt := time.Now().UTC()
	if s.FinishedAt != nil {
		finishedAt = *s.FinishedAt
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO archived_sessions (id, game_kind, host_id, player_ids, winner, created_at, finished_at, record, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			winner = EXCLUDED.winner,
			finished_at = EXCLUDED.finished_at,
			record = EXCLUDED.record,
			archived_at = now()`,
		s.ID, s.GameKind, s.HostID, s.PlayerIDs, s.Winner, s.CreatedAt, finishedAt, record,
	)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return nil
}

// Get retrieves one archived session by id.
func (r *Repository) Get(ctx context.Context, id string) (*ArchivedSession, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, game_kind, host_id, player_ids, winner, created_at, finished_at, record, archived_at
		FROM archived_sessions WHERE id = $1`, id)

	var a ArchivedSession
	err := row.Scan(&a.ID, &a.GameKind, &a.HostID, &a.PlayerIDs, &a.Winner, &a.CreatedAt, &a.FinishedAt, &a.Record, &a.ArchivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get archived session: %w", err)
	}
	return &a, nil
}

// ListForUser returns a user's most recent finished sessions.
func (r *Repository) ListForUser(ctx context.Context, uid string, limit int) ([]ArchivedSession, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, game_kind, host_id, player_ids, winner, created_at, finished_at, record, archived_at
		FROM archived_sessions
		WHERE $1 = ANY(player_ids)
		ORDER BY finished_at DESC
		LIMIT $2`, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived sessions: %w", err)
	}
	defer rows.Close()

	var out []ArchivedSession
	for rows.Next() {
		var a ArchivedSession
		if err := rows.Scan(&a.ID, &a.GameKind, &a.HostID, &a.PlayerIDs, &a.Winner, &a.CreatedAt, &a.FinishedAt, &a.Record, &a.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived session: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune removes archive rows older than the retention window.
func (r *Repository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM archived_sessions WHERE finished_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	return tag.RowsAffected(), nil
}
