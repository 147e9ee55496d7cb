package store

import (
	"context"
)

// ThreadRecord is the threads table row.
type ThreadRecord struct {
	ID       string
	OwnerID  string
	Name     string
	Public   bool
	Metadata []byte
	Created  float64
}

// MessageRecord is one message inside a thread.
type MessageRecord struct {
	ID       string
	ThreadID string
	Role     string
	Text     string
	Images   []byte
	Private  bool
	Metadata []byte
	Created  float64
}

// SaveThread upserts a thread row.
func (s *Store) SaveThread(ctx context.Context, rec *ThreadRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO threads (id, owner_id, name, public, metadata, created)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			public = EXCLUDED.public,
			metadata = EXCLUDED.metadata`,
		rec.ID, rec.OwnerID, rec.Name, rec.Public, rec.Metadata, rec.Created)
	return translate(err, "thread %s", rec.ID)
}

// GetThread loads one thread row.
func (s *Store) GetThread(ctx context.Context, id string) (*ThreadRecord, error) {
	var rec ThreadRecord
	err := s.q.QueryRow(ctx, `
		SELECT id, owner_id, name, public, metadata, created
		FROM threads WHERE id = $1`, id).
		Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.Public, &rec.Metadata, &rec.Created)
	if err != nil {
		return nil, translate(err, "thread %s not found", id)
	}
	return &rec, nil
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id)
	return translate(err, "thread %s", id)
}

// InsertMessage appends a message to a thread.
func (s *Store) InsertMessage(ctx context.Context, rec *MessageRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO messages (id, thread_id, role, text, images, private, metadata, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.ThreadID, rec.Role, rec.Text, rec.Images, rec.Private,
		rec.Metadata, rec.Created)
	return translate(err, "message %s", rec.ID)
}

// MessagesForThreads batch-loads messages keyed by thread id, oldest first.
func (s *Store) MessagesForThreads(ctx context.Context, threadIDs []string) (map[string][]*MessageRecord, error) {
	out := make(map[string][]*MessageRecord, len(threadIDs))
	if len(threadIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, thread_id, role, text, images, private, metadata, created
		FROM messages WHERE thread_id = ANY($1) ORDER BY created`, threadIDs)
	if err != nil {
		return nil, translate(err, "messages")
	}
	defer rows.Close()
	for rows.Next() {
		var rec MessageRecord
		err := rows.Scan(&rec.ID, &rec.ThreadID, &rec.Role, &rec.Text,
			&rec.Images, &rec.Private, &rec.Metadata, &rec.Created)
		if err != nil {
			return nil, translate(err, "messages")
		}
		out[rec.ThreadID] = append(out[rec.ThreadID], &rec)
	}
	return out, translate(rows.Err(), "messages")
}

// ThreadsByIDs loads thread rows preserving the requested order; ids that
// no longer resolve are skipped.
func (s *Store) ThreadsByIDs(ctx context.Context, ids []string) ([]*ThreadRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, owner_id, name, public, metadata, created
		FROM threads WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, translate(err, "threads")
	}
	defer rows.Close()
	byID := make(map[string]*ThreadRecord, len(ids))
	for rows.Next() {
		var rec ThreadRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.Public, &rec.Metadata, &rec.Created); err != nil {
			return nil, translate(err, "threads")
		}
		byID[rec.ID] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "threads")
	}
	ordered := make([]*ThreadRecord, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered, nil
}
