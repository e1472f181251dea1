package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateWebSession persists a browser login session.
func (s *Store) CreateWebSession(ctx context.Context, id string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO web_sessions (id, user_id, expires_at) VALUES (?, ?, ?)`,
		id, userID, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create web session: %w", err)
	}
	return nil
}

// WebSession fetches a live (non-expired) session; expired or missing
// sessions return ErrNotFound.
func (s *Store) WebSession(ctx context.Context, id string) (*WebSession, error) {
	var ws WebSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at FROM web_sessions WHERE id = ? AND expires_at > ?`,
		id, time.Now().UTC(),
	).Scan(&ws.ID, &ws.UserID, &ws.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan web session: %w", err)
	}
	return &ws, nil
}

// DeleteWebSession removes a session (logout).
func (s *Store) DeleteWebSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete web session: %w", err)
	}
	return nil
}

// DeleteExpiredWebSessions sweeps expired sessions; returns rows removed.
func (s *Store) DeleteExpiredWebSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM web_sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired web sessions: %w", err)
	}
	return res.RowsAffected()
}
