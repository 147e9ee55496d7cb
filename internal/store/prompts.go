package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// PromptRecord captures one model exchange. Thread and response are stored
// as wire JSON so the prompt survives its source thread being deleted.
type PromptRecord struct {
	ID             string
	Namespace      string
	Thread         []byte
	Response       []byte
	ResponseSchema []byte
	Metadata       []byte
	Approved       bool
	Flagged        bool
	OwnerID        string
	AgentID        string
	Model          string
	Created        float64
}

const promptColumns = `id, namespace, thread, response, response_schema, metadata,
	approved, flagged, owner_id, agent_id, model, created`

// SavePrompt upserts a prompt row.
func (s *Store) SavePrompt(ctx context.Context, rec *PromptRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO prompts (`+promptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			namespace = EXCLUDED.namespace,
			thread = EXCLUDED.thread,
			response = EXCLUDED.response,
			response_schema = EXCLUDED.response_schema,
			metadata = EXCLUDED.metadata,
			approved = EXCLUDED.approved,
			flagged = EXCLUDED.flagged,
			model = EXCLUDED.model`,
		rec.ID, rec.Namespace, rec.Thread, rec.Response, rec.ResponseSchema,
		rec.Metadata, rec.Approved, rec.Flagged, rec.OwnerID, rec.AgentID,
		rec.Model, rec.Created)
	return translate(err, "prompt %s", rec.ID)
}

func scanPrompt(row pgx.Row) (*PromptRecord, error) {
	var rec PromptRecord
	err := row.Scan(&rec.ID, &rec.Namespace, &rec.Thread, &rec.Response,
		&rec.ResponseSchema, &rec.Metadata, &rec.Approved, &rec.Flagged,
		&rec.OwnerID, &rec.AgentID, &rec.Model, &rec.Created)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetPrompt loads one prompt row.
func (s *Store) GetPrompt(ctx context.Context, id string) (*PromptRecord, error) {
	rec, err := scanPrompt(s.q.QueryRow(ctx, `
		SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "prompt %s not found", id)
	}
	return rec, nil
}

// PromptsByIDs loads prompt rows preserving the requested order.
func (s *Store) PromptsByIDs(ctx context.Context, ids []string) ([]*PromptRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+promptColumns+` FROM prompts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, translate(err, "prompts")
	}
	defer rows.Close()
	byID := make(map[string]*PromptRecord, len(ids))
	for rows.Next() {
		rec, err := scanPrompt(rows)
		if err != nil {
			return nil, translate(err, "prompts")
		}
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "prompts")
	}
	ordered := make([]*PromptRecord, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered, nil
}

// SetPromptApproved marks a prompt approved or not.
func (s *Store) SetPromptApproved(ctx context.Context, id string, approved bool) error {
	tag, err := s.q.Exec(ctx, `UPDATE prompts SET approved = $2 WHERE id = $1`, id, approved)
	if err != nil {
		return translate(err, "prompt %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "prompt %s not found", id)
	}
	return nil
}

// SetPromptFlagged marks a prompt flagged or not.
func (s *Store) SetPromptFlagged(ctx context.Context, id string, flagged bool) error {
	tag, err := s.q.Exec(ctx, `UPDATE prompts SET flagged = $2 WHERE id = $1`, id, flagged)
	if err != nil {
		return translate(err, "prompt %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "prompt %s not found", id)
	}
	return nil
}

// DeletePrompt removes a prompt row.
func (s *Store) DeletePrompt(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM prompts WHERE id = $1`, id)
	return translate(err, "prompt %s", id)
}
