package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// EpisodeRecord is the episodes table row.
type EpisodeRecord struct {
	ID      string
	OwnerID string
	Created float64
}

// ActionEventRecord is one ordered entry in an episode's action log. The
// JSON columns hold the wire shapes verbatim.
type ActionEventRecord struct {
	ID         string
	EpisodeID  string
	EventOrder int64
	State      []byte
	Action     []byte
	Result     []byte
	EndState   []byte
	Tool       []byte
	Namespace  string
	PromptID   string
	Metadata   []byte
	OwnerID    string
	Model      string
	AgentID    string
	Hidden     bool
	Created    float64
}

// AnnotationRecord is a typed annotation hanging off an action event.
type AnnotationRecord struct {
	ID            string
	ActionID      string
	Key           string
	Value         []byte
	Annotator     string
	AnnotatorType string
	Created       float64
}

// CreateEpisode inserts an episode row.
func (s *Store) CreateEpisode(ctx context.Context, rec *EpisodeRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO episodes (id, owner_id, created) VALUES ($1, $2, $3)`,
		rec.ID, rec.OwnerID, rec.Created)
	return translate(err, "episode %s", rec.ID)
}

// GetEpisode loads one episode row.
func (s *Store) GetEpisode(ctx context.Context, id string) (*EpisodeRecord, error) {
	var rec EpisodeRecord
	err := s.q.QueryRow(ctx, `
		SELECT id, owner_id, created FROM episodes WHERE id = $1`, id).
		Scan(&rec.ID, &rec.OwnerID, &rec.Created)
	if err != nil {
		return nil, translate(err, "episode %s not found", id)
	}
	return &rec, nil
}

// DeleteEpisode removes an episode and, via cascade, its action events.
func (s *Store) DeleteEpisode(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM episodes WHERE id = $1`, id)
	return translate(err, "episode %s", id)
}

// NextEventOrder returns the next free slot in the episode's sequence.
// Call under the task's advisory lock so concurrent appends cannot race.
func (s *Store) NextEventOrder(ctx context.Context, episodeID string) (int64, error) {
	var next int64
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(event_order) + 1, 0) FROM action_events
		WHERE episode_id = $1`, episodeID).Scan(&next)
	if err != nil {
		return 0, translate(err, "episode %s", episodeID)
	}
	return next, nil
}

const actionEventColumns = `id, episode_id, event_order, state, action, result, end_state,
	tool, namespace, prompt_id, metadata, owner_id, model, agent_id, hidden, created`

// InsertActionEvent appends one event row.
func (s *Store) InsertActionEvent(ctx context.Context, rec *ActionEventRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO action_events (`+actionEventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.EpisodeID, rec.EventOrder, rec.State, rec.Action, rec.Result,
		rec.EndState, rec.Tool, rec.Namespace, rec.PromptID, rec.Metadata,
		rec.OwnerID, rec.Model, rec.AgentID, rec.Hidden, rec.Created)
	return translate(err, "action event %s", rec.ID)
}

func scanActionEvent(row pgx.Row) (*ActionEventRecord, error) {
	var rec ActionEventRecord
	err := row.Scan(&rec.ID, &rec.EpisodeID, &rec.EventOrder, &rec.State, &rec.Action,
		&rec.Result, &rec.EndState, &rec.Tool, &rec.Namespace, &rec.PromptID,
		&rec.Metadata, &rec.OwnerID, &rec.Model, &rec.AgentID, &rec.Hidden, &rec.Created)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetActionEvent loads one event row.
func (s *Store) GetActionEvent(ctx context.Context, id string) (*ActionEventRecord, error) {
	rec, err := scanActionEvent(s.q.QueryRow(ctx, `
		SELECT `+actionEventColumns+` FROM action_events WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "action event %s not found", id)
	}
	return rec, nil
}

// LastActionEvent returns the newest event in an episode, or nil when empty.
func (s *Store) LastActionEvent(ctx context.Context, episodeID string) (*ActionEventRecord, error) {
	rec, err := scanActionEvent(s.q.QueryRow(ctx, `
		SELECT `+actionEventColumns+` FROM action_events
		WHERE episode_id = $1 ORDER BY event_order DESC LIMIT 1`, episodeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(err, "episode %s events", episodeID)
	}
	return rec, nil
}

// EventsForEpisode loads the episode's events in sequence order.
func (s *Store) EventsForEpisode(ctx context.Context, episodeID string, includeHidden bool) ([]*ActionEventRecord, error) {
	query := `SELECT ` + actionEventColumns + ` FROM action_events WHERE episode_id = $1`
	if !includeHidden {
		query += ` AND hidden = FALSE`
	}
	query += ` ORDER BY event_order`
	rows, err := s.q.Query(ctx, query, episodeID)
	if err != nil {
		return nil, translate(err, "episode %s events", episodeID)
	}
	defer rows.Close()
	var recs []*ActionEventRecord
	for rows.Next() {
		rec, err := scanActionEvent(rows)
		if err != nil {
			return nil, translate(err, "episode %s events", episodeID)
		}
		recs = append(recs, rec)
	}
	return recs, translate(rows.Err(), "episode %s events", episodeID)
}

// SetActionEventHidden flips the hidden flag on one event.
func (s *Store) SetActionEventHidden(ctx context.Context, id string, hidden bool) error {
	tag, err := s.q.Exec(ctx, `UPDATE action_events SET hidden = $2 WHERE id = $1`, id, hidden)
	if err != nil {
		return translate(err, "action event %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "action event %s not found", id)
	}
	return nil
}

// DeleteActionEvent removes one event row.
func (s *Store) DeleteActionEvent(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM action_events WHERE id = $1`, id)
	if err != nil {
		return translate(err, "action event %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "action event %s not found", id)
	}
	return nil
}

// SaveAnnotation upserts an annotation row.
func (s *Store) SaveAnnotation(ctx context.Context, rec *AnnotationRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO annotations (id, action_id, key, value, annotator, annotator_type, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			key = EXCLUDED.key,
			value = EXCLUDED.value,
			annotator = EXCLUDED.annotator,
			annotator_type = EXCLUDED.annotator_type`,
		rec.ID, rec.ActionID, rec.Key, rec.Value, rec.Annotator, rec.AnnotatorType, rec.Created)
	return translate(err, "annotation %s", rec.ID)
}

// AnnotationsForActions batch-loads annotations keyed by action id.
func (s *Store) AnnotationsForActions(ctx context.Context, actionIDs []string) (map[string][]*AnnotationRecord, error) {
	out := make(map[string][]*AnnotationRecord, len(actionIDs))
	if len(actionIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, action_id, key, value, annotator, annotator_type, created
		FROM annotations WHERE action_id = ANY($1) ORDER BY created`, actionIDs)
	if err != nil {
		return nil, translate(err, "annotations")
	}
	defer rows.Close()
	for rows.Next() {
		var rec AnnotationRecord
		err := rows.Scan(&rec.ID, &rec.ActionID, &rec.Key, &rec.Value,
			&rec.Annotator, &rec.AnnotatorType, &rec.Created)
		if err != nil {
			return nil, translate(err, "annotations")
		}
		out[rec.ActionID] = append(out[rec.ActionID], &rec)
	}
	return out, translate(rows.Err(), "annotations")
}

// GetAnnotation loads one annotation row.
func (s *Store) GetAnnotation(ctx context.Context, id string) (*AnnotationRecord, error) {
	var rec AnnotationRecord
	err := s.q.QueryRow(ctx, `
		SELECT id, action_id, key, value, annotator, annotator_type, created
		FROM annotations WHERE id = $1`, id).
		Scan(&rec.ID, &rec.ActionID, &rec.Key, &rec.Value,
			&rec.Annotator, &rec.AnnotatorType, &rec.Created)
	if err != nil {
		return nil, translate(err, "annotation %s not found", id)
	}
	return &rec, nil
}
