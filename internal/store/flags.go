package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// FlagRecord is a typed record queued for human attention. Flag holds the
// type-specific payload, result the eventual human answer.
type FlagRecord struct {
	ID      string
	Type    string
	Flag    []byte
	Result  []byte
	Created float64
}

// SaveFlag upserts a flag row.
func (s *Store) SaveFlag(ctx context.Context, rec *FlagRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO flags (id, type, flag, result, created)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			flag = EXCLUDED.flag,
			result = EXCLUDED.result`,
		rec.ID, rec.Type, rec.Flag, rec.Result, rec.Created)
	return translate(err, "flag %s", rec.ID)
}

// GetFlag loads one flag row.
func (s *Store) GetFlag(ctx context.Context, id string) (*FlagRecord, error) {
	var rec FlagRecord
	err := s.q.QueryRow(ctx, `
		SELECT id, type, flag, result, created FROM flags WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Type, &rec.Flag, &rec.Result, &rec.Created)
	if err != nil {
		return nil, translate(err, "flag %s not found", id)
	}
	return &rec, nil
}

// FindFlags lists flags, optionally by type, oldest first.
func (s *Store) FindFlags(ctx context.Context, flagType string) ([]*FlagRecord, error) {
	query := `SELECT id, type, flag, result, created FROM flags`
	var args []any
	if flagType != "" {
		query += ` WHERE type = $1`
		args = append(args, flagType)
	}
	query += ` ORDER BY created`
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "flags")
	}
	defer rows.Close()
	var recs []*FlagRecord
	for rows.Next() {
		var rec FlagRecord
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Flag, &rec.Result, &rec.Created); err != nil {
			return nil, translate(err, "flags")
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "flags")
}

// SetFlagResult records the human answer on a flag.
func (s *Store) SetFlagResult(ctx context.Context, id string, result []byte) error {
	tag, err := s.q.Exec(ctx, `UPDATE flags SET result = $2 WHERE id = $1`, id, result)
	if err != nil {
		return translate(err, "flag %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "flag %s not found", id)
	}
	return nil
}

// DeleteFlag removes a flag row.
func (s *Store) DeleteFlag(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM flags WHERE id = $1`, id)
	return translate(err, "flag %s", id)
}
