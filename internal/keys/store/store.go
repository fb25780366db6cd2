package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectKeyColumns = `
	k.id, k.org_id, k.key_id, k.name, k.is_default, k.secret, k.metadata,
	k.created_at, k.updated_at
`

func scanKey(s scanner) (*keys.Key, error) {
	var key keys.Key

	var metadata []byte

	if err := s.Scan(
		&key.ID, &key.OrgID, &key.KeyID, &key.Name, &key.Default, &key.Secret,
		&metadata, &key.CreatedAt, &key.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		// A malformed blob leaves the metadata zeroed rather than failing
		// the read.
		_ = json.Unmarshal(metadata, &key.Metadata)
	}

	return &key, nil
}

func (s *Store) ListKeys(ctx context.Context, orgID string) ([]*keys.Key, error) {
	query := `SELECT ` + selectKeyColumns + `
		FROM keys k
		WHERE k.org_id = $1
		ORDER BY k.is_default DESC, k.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var result []*keys.Key

	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}

		result = append(result, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating key rows: %w", err)
	}

	return result, nil
}

func (s *Store) GetKey(ctx context.Context, orgID, keyID string) (*keys.Key, error) {
	query := `SELECT ` + selectKeyColumns + `
		FROM keys k
		WHERE k.org_id = $1 AND k.key_id = $2`

	key, err := scanKey(s.db.QueryRowContext(ctx, query, orgID, keyID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, keys.ErrNotFound
		}

		return nil, fmt.Errorf("getting key: %w", err)
	}

	return key, nil
}
