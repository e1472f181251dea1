package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateIntegration inserts a new integration record and sets its id.
func (s *Store) CreateIntegration(ctx context.Context, integ *Integration) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO integrations (user_id, type, label, url, api_key_encrypted)
		 VALUES (?, ?, ?, ?, ?)`,
		integ.UserID, integ.Type, integ.Label, integ.URL, integ.APIKeyEncrypted,
	)
	if err != nil {
		return fmt.Errorf("create integration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create integration: %w", err)
	}
	integ.ID = id
	return nil
}

// UpdateIntegration rewrites an integration's mutable fields, scoped to its
// owner.
func (s *Store) UpdateIntegration(ctx context.Context, integ *Integration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE integrations SET type = ?, label = ?, url = ?, api_key_encrypted = ?
		 WHERE id = ? AND user_id = ?`,
		integ.Type, integ.Label, integ.URL, integ.APIKeyEncrypted,
		integ.ID, integ.UserID,
	)
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	return requireRow(res)
}

// DeleteIntegration removes an integration, scoped to its owner.
func (s *Store) DeleteIntegration(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM integrations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return requireRow(res)
}

// Integration fetches one integration owned by userID.
func (s *Store) Integration(ctx context.Context, id, userID int64) (*Integration, error) {
	var integ Integration
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, label, url, api_key_encrypted, created_at
		 FROM integrations WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&integ.ID, &integ.UserID, &integ.Type, &integ.Label, &integ.URL,
			&integ.APIKeyEncrypted, &integ.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan integration: %w", err)
	}
	return &integ, nil
}

// ListIntegrations returns all integrations owned by userID.
func (s *Store) ListIntegrations(ctx context.Context, userID int64) ([]Integration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, label, url, api_key_encrypted, created_at
		 FROM integrations WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []Integration
	for rows.Next() {
		var integ Integration
		if err := rows.Scan(&integ.ID, &integ.UserID, &integ.Type, &integ.Label,
			&integ.URL, &integ.APIKeyEncrypted, &integ.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		integrations = append(integrations, integ)
	}
	return integrations, rows.Err()
}
