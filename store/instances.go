package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/s0up4200/qbitweb/qbittorrent"
)

// CreateInstance inserts a new instance record and sets its id.
func (s *Store) CreateInstance(ctx context.Context, inst *Instance) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO instances (user_id, label, url, qbt_username, qbt_password_encrypted, skip_auth)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inst.UserID, inst.Label, inst.URL,
		nullable(inst.QbtUsername), nullable(inst.QbtPasswordEncrypted), inst.SkipAuth,
	)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	inst.ID = id
	return nil
}

// UpdateInstance rewrites an instance's mutable fields, scoped to its owner.
func (s *Store) UpdateInstance(ctx context.Context, inst *Instance) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instances
		 SET label = ?, url = ?, qbt_username = ?, qbt_password_encrypted = ?, skip_auth = ?
		 WHERE id = ? AND user_id = ?`,
		inst.Label, inst.URL,
		nullable(inst.QbtUsername), nullable(inst.QbtPasswordEncrypted), inst.SkipAuth,
		inst.ID, inst.UserID,
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	return requireRow(res)
}

// DeleteInstance removes an instance, scoped to its owner.
func (s *Store) DeleteInstance(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM instances WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return requireRow(res)
}

// Instance fetches one instance owned by userID.
func (s *Store) Instance(ctx context.Context, id, userID int64) (*Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, label, url, qbt_username, qbt_password_encrypted, skip_auth, created_at
		 FROM instances WHERE id = ? AND user_id = ?`, id, userID)
	inst, err := scanInstance(row.Scan)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// ListInstances returns all instances owned by userID.
func (s *Store) ListInstances(ctx context.Context, userID int64) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, label, url, qbt_username, qbt_password_encrypted, skip_auth, created_at
		 FROM instances WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

// QbtInstances implements speedtest.InstanceSource: the user's instances as
// the read-only view the qBittorrent core consumes.
func (s *Store) QbtInstances(ctx context.Context, userID int64) ([]qbittorrent.Instance, error) {
	instances, err := s.ListInstances(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]qbittorrent.Instance, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.Qbt())
	}
	return out, nil
}

func scanInstance(scan func(...any) error) (*Instance, error) {
	var inst Instance
	var username, password sql.NullString
	err := scan(&inst.ID, &inst.UserID, &inst.Label, &inst.URL,
		&username, &password, &inst.SkipAuth, &inst.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	inst.QbtUsername = username.String
	inst.QbtPasswordEncrypted = password.String
	return &inst, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// requireRow converts a zero-row update/delete into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
