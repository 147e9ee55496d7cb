package store

import "context"

// TrackerRecord names a remote tracker endpoint tasks can be mirrored to.
type TrackerRecord struct {
	ID       string
	Name     string
	Endpoint string
	Created  float64
}

// SaveTracker upserts a tracker registration by name.
func (s *Store) SaveTracker(ctx context.Context, rec *TrackerRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO trackers (id, name, endpoint, created)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET endpoint = EXCLUDED.endpoint`,
		rec.ID, rec.Name, rec.Endpoint, rec.Created)
	return translate(err, "tracker %s", rec.Name)
}

// GetTrackerByName loads one tracker registration.
func (s *Store) GetTrackerByName(ctx context.Context, name string) (*TrackerRecord, error) {
	var rec TrackerRecord
	err := s.q.QueryRow(ctx, `
		SELECT id, name, endpoint, created FROM trackers WHERE name = $1`, name).
		Scan(&rec.ID, &rec.Name, &rec.Endpoint, &rec.Created)
	if err != nil {
		return nil, translate(err, "tracker %s not found", name)
	}
	return &rec, nil
}

// ListTrackers lists tracker registrations by name.
func (s *Store) ListTrackers(ctx context.Context) ([]*TrackerRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, name, endpoint, created FROM trackers ORDER BY name`)
	if err != nil {
		return nil, translate(err, "trackers")
	}
	defer rows.Close()
	var recs []*TrackerRecord
	for rows.Next() {
		var rec TrackerRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Endpoint, &rec.Created); err != nil {
			return nil, translate(err, "trackers")
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "trackers")
}

// DeleteTracker removes a tracker registration by name.
func (s *Store) DeleteTracker(ctx context.Context, name string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM trackers WHERE name = $1`, name)
	return translate(err, "tracker %s", name)
}
