package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TemplateRecord is a task shape without runtime state.
type TemplateRecord struct {
	ID           string
	OwnerID      string
	Description  string
	MaxSteps     int
	Device       []byte
	DeviceType   []byte
	ExpectSchema []byte
	Parameters   []byte
	Tags         []byte
	Labels       []byte
	Created      float64
}

// BenchmarkRecord is a named bundle of task templates.
type BenchmarkRecord struct {
	ID          string
	Name        string
	OwnerID     string
	Description string
	Public      bool
	Tags        []byte
	Labels      []byte
	Created     float64
}

// EvalRecord is one materialised benchmark run.
type EvalRecord struct {
	ID           string
	BenchmarkID  string
	OwnerID      string
	AssignedTo   string
	AssignedType string
	Created      float64
}

// SaveTemplate upserts a task template row.
func (s *Store) SaveTemplate(ctx context.Context, rec *TemplateRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO task_templates
			(id, owner_id, description, max_steps, device, device_type,
			 expect_schema, parameters, tags, labels, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			max_steps = EXCLUDED.max_steps,
			device = EXCLUDED.device,
			device_type = EXCLUDED.device_type,
			expect_schema = EXCLUDED.expect_schema,
			parameters = EXCLUDED.parameters,
			tags = EXCLUDED.tags,
			labels = EXCLUDED.labels`,
		rec.ID, rec.OwnerID, rec.Description, rec.MaxSteps, rec.Device,
		rec.DeviceType, rec.ExpectSchema, rec.Parameters, rec.Tags, rec.Labels,
		rec.Created)
	return translate(err, "task template %s", rec.ID)
}

func scanTemplates(rows pgx.Rows) ([]*TemplateRecord, error) {
	defer rows.Close()
	var recs []*TemplateRecord
	for rows.Next() {
		var rec TemplateRecord
		err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Description, &rec.MaxSteps,
			&rec.Device, &rec.DeviceType, &rec.ExpectSchema, &rec.Parameters,
			&rec.Tags, &rec.Labels, &rec.Created)
		if err != nil {
			return nil, translate(err, "task templates")
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "task templates")
}

// TemplatesForBenchmark loads a benchmark's templates, oldest first.
func (s *Store) TemplatesForBenchmark(ctx context.Context, benchmarkID string) ([]*TemplateRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT tt.id, tt.owner_id, tt.description, tt.max_steps, tt.device,
			tt.device_type, tt.expect_schema, tt.parameters, tt.tags, tt.labels, tt.created
		FROM task_templates tt
		JOIN benchmark_task_association bta ON bta.task_template_id = tt.id
		WHERE bta.benchmark_id = $1
		ORDER BY tt.created`, benchmarkID)
	if err != nil {
		return nil, translate(err, "benchmark %s templates", benchmarkID)
	}
	return scanTemplates(rows)
}

// AttachTemplate associates a template with a benchmark.
func (s *Store) AttachTemplate(ctx context.Context, benchmarkID, templateID string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO benchmark_task_association (benchmark_id, task_template_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, benchmarkID, templateID)
	return translate(err, "benchmark %s", benchmarkID)
}

// SaveBenchmark upserts a benchmark row. A duplicate name surfaces as a
// conflict.
func (s *Store) SaveBenchmark(ctx context.Context, rec *BenchmarkRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO benchmarks
			(id, name, owner_id, description, public, tags, labels, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			public = EXCLUDED.public,
			tags = EXCLUDED.tags,
			labels = EXCLUDED.labels`,
		rec.ID, rec.Name, rec.OwnerID, rec.Description, rec.Public,
		rec.Tags, rec.Labels, rec.Created)
	return translate(err, "benchmark %s", rec.ID)
}

func scanBenchmarks(rows pgx.Rows) ([]*BenchmarkRecord, error) {
	defer rows.Close()
	var recs []*BenchmarkRecord
	for rows.Next() {
		var rec BenchmarkRecord
		err := rows.Scan(&rec.ID, &rec.Name, &rec.OwnerID, &rec.Description,
			&rec.Public, &rec.Tags, &rec.Labels, &rec.Created)
		if err != nil {
			return nil, translate(err, "benchmarks")
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "benchmarks")
}

const benchmarkColumns = `id, name, owner_id, description, public, tags, labels, created`

// GetBenchmark loads one benchmark visible to the owner set, or public.
func (s *Store) GetBenchmark(ctx context.Context, id string, owners []string) (*BenchmarkRecord, error) {
	var rec BenchmarkRecord
	err := s.q.QueryRow(ctx, `
		SELECT `+benchmarkColumns+` FROM benchmarks
		WHERE id = $1 AND (public OR owner_id = ANY($2))`, id, owners).
		Scan(&rec.ID, &rec.Name, &rec.OwnerID, &rec.Description,
			&rec.Public, &rec.Tags, &rec.Labels, &rec.Created)
	if err != nil {
		return nil, translate(err, "benchmark %s not found", id)
	}
	return &rec, nil
}

// FindBenchmarks lists benchmarks owned by the owner set plus public ones,
// newest first. Name narrows to an exact match when set.
func (s *Store) FindBenchmarks(ctx context.Context, owners []string, name string) ([]*BenchmarkRecord, error) {
	query := `SELECT ` + benchmarkColumns + ` FROM benchmarks
		WHERE (public OR owner_id = ANY($1))`
	args := []any{owners}
	if name != "" {
		query += ` AND name = $2`
		args = append(args, name)
	}
	query += ` ORDER BY created DESC`
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "benchmarks")
	}
	return scanBenchmarks(rows)
}

// DeleteBenchmark removes a benchmark and its template associations.
func (s *Store) DeleteBenchmark(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM benchmarks WHERE id = $1`, id)
	if err != nil {
		return translate(err, "benchmark %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "benchmark %s not found", id)
	}
	return nil
}

// SaveEval inserts an eval row.
func (s *Store) SaveEval(ctx context.Context, rec *EvalRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO evals (id, benchmark_id, owner_id, assigned_to, assigned_type, created)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			assigned_to = EXCLUDED.assigned_to,
			assigned_type = EXCLUDED.assigned_type`,
		rec.ID, rec.BenchmarkID, rec.OwnerID, rec.AssignedTo, rec.AssignedType,
		rec.Created)
	return translate(err, "eval %s", rec.ID)
}

// GetEval loads one eval owned by the owner set.
func (s *Store) GetEval(ctx context.Context, id string, owners []string) (*EvalRecord, error) {
	var rec EvalRecord
	err := s.q.QueryRow(ctx, `
		SELECT id, benchmark_id, owner_id, assigned_to, assigned_type, created
		FROM evals WHERE id = $1 AND owner_id = ANY($2)`, id, owners).
		Scan(&rec.ID, &rec.BenchmarkID, &rec.OwnerID, &rec.AssignedTo,
			&rec.AssignedType, &rec.Created)
	if err != nil {
		return nil, translate(err, "eval %s not found", id)
	}
	return &rec, nil
}

// FindEvals lists evals owned by the owner set, newest first.
func (s *Store) FindEvals(ctx context.Context, owners []string) ([]*EvalRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, benchmark_id, owner_id, assigned_to, assigned_type, created
		FROM evals WHERE owner_id = ANY($1) ORDER BY created DESC`, owners)
	if err != nil {
		return nil, translate(err, "evals")
	}
	defer rows.Close()
	var recs []*EvalRecord
	for rows.Next() {
		var rec EvalRecord
		err := rows.Scan(&rec.ID, &rec.BenchmarkID, &rec.OwnerID, &rec.AssignedTo,
			&rec.AssignedType, &rec.Created)
		if err != nil {
			return nil, translate(err, "evals")
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "evals")
}

// AttachEvalTask associates a materialised task with an eval.
func (s *Store) AttachEvalTask(ctx context.Context, evalID, taskID string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO eval_task_association (eval_id, task_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, evalID, taskID)
	return translate(err, "eval %s", evalID)
}

// TaskIDsForEval lists the task ids attached to an eval.
func (s *Store) TaskIDsForEval(ctx context.Context, evalID string) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT eta.task_id FROM eval_task_association eta
		JOIN tasks t ON t.id = eta.task_id
		WHERE eta.eval_id = $1
		ORDER BY t.created`, evalID)
	if err != nil {
		return nil, translate(err, "eval %s tasks", evalID)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err, "eval %s tasks", evalID)
		}
		ids = append(ids, id)
	}
	return ids, translate(rows.Err(), "eval %s tasks", evalID)
}

// DeleteEval removes an eval and its task associations.
func (s *Store) DeleteEval(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM evals WHERE id = $1`, id)
	return translate(err, "eval %s", id)
}
