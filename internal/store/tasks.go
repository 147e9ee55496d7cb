package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// TaskRecord is the row shape of the tasks table. Device holds the
// encrypted descriptor; threads and prompts are child id lists.
type TaskRecord struct {
	ID           string
	OwnerID      string
	CreatedBy    string
	Description  string
	MaxSteps     int
	Device       string
	DeviceType   string
	ExpectSchema []byte
	Project      string
	Skill        string
	Status       string
	Created      float64
	Started      float64
	Completed    float64
	AssignedTo   string
	AssignedType string
	Error        string
	Output       string
	Parameters   []byte
	Version      string
	Remote       string
	ParentID     string
	Threads      []string
	Prompts      []string
	EpisodeID    string
}

// TaskFilter narrows a task search. Owners is mandatory for scoped reads;
// tags match any listed tag, labels require every listed pair.
type TaskFilter struct {
	Owners       []string
	TaskID       string
	ParentID     string
	Status       string
	AssignedTo   string
	AssignedType string
	DeviceType   string
	Skill        string
	Tags         []string
	Labels       map[string]string
}

const taskColumns = `id, owner_id, created_by, description, max_steps, device, device_type,
	expect_schema, project, skill, status, created, started, completed,
	assigned_to, assigned_type, error, output, parameters, version, remote,
	parent_id, threads, prompts, episode_id`

func toJSONBytes(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func idsJSON(ids []string) []byte {
	if ids == nil {
		ids = []string{}
	}
	data, _ := json.Marshal(ids)
	return data
}

func scanTask(row pgx.Row) (*TaskRecord, error) {
	var (
		rec              TaskRecord
		threads, prompts []byte
	)
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.CreatedBy, &rec.Description, &rec.MaxSteps,
		&rec.Device, &rec.DeviceType, &rec.ExpectSchema, &rec.Project, &rec.Skill,
		&rec.Status, &rec.Created, &rec.Started, &rec.Completed,
		&rec.AssignedTo, &rec.AssignedType, &rec.Error, &rec.Output,
		&rec.Parameters, &rec.Version, &rec.Remote, &rec.ParentID,
		&threads, &prompts, &rec.EpisodeID,
	)
	if err != nil {
		return nil, err
	}
	if len(threads) > 0 {
		if err := json.Unmarshal(threads, &rec.Threads); err != nil {
			return nil, fmt.Errorf("decode task threads: %w", err)
		}
	}
	if len(prompts) > 0 {
		if err := json.Unmarshal(prompts, &rec.Prompts); err != nil {
			return nil, fmt.Errorf("decode task prompts: %w", err)
		}
	}
	return &rec, nil
}

// SaveTask upserts a task row.
func (s *Store) SaveTask(ctx context.Context, rec *TaskRecord) error {
	params := rec.Parameters
	if len(params) == 0 {
		params = []byte(`{}`)
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			created_by = EXCLUDED.created_by,
			description = EXCLUDED.description,
			max_steps = EXCLUDED.max_steps,
			device = EXCLUDED.device,
			device_type = EXCLUDED.device_type,
			expect_schema = EXCLUDED.expect_schema,
			project = EXCLUDED.project,
			skill = EXCLUDED.skill,
			status = EXCLUDED.status,
			created = EXCLUDED.created,
			started = EXCLUDED.started,
			completed = EXCLUDED.completed,
			assigned_to = EXCLUDED.assigned_to,
			assigned_type = EXCLUDED.assigned_type,
			error = EXCLUDED.error,
			output = EXCLUDED.output,
			parameters = EXCLUDED.parameters,
			version = EXCLUDED.version,
			remote = EXCLUDED.remote,
			parent_id = EXCLUDED.parent_id,
			threads = EXCLUDED.threads,
			prompts = EXCLUDED.prompts,
			episode_id = EXCLUDED.episode_id`,
		rec.ID, rec.OwnerID, rec.CreatedBy, rec.Description, rec.MaxSteps,
		rec.Device, rec.DeviceType, rec.ExpectSchema, rec.Project, rec.Skill,
		rec.Status, rec.Created, rec.Started, rec.Completed,
		rec.AssignedTo, rec.AssignedType, rec.Error, rec.Output,
		params, rec.Version, rec.Remote, rec.ParentID,
		idsJSON(rec.Threads), idsJSON(rec.Prompts), rec.EpisodeID,
	)
	return translate(err, "task %s", rec.ID)
}

// GetTask loads one task row by id, optionally scoped to an owner set.
func (s *Store) GetTask(ctx context.Context, id string, owners []string) (*TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	args := []any{id}
	if len(owners) > 0 {
		query += ` AND owner_id = ANY($2)`
		args = append(args, owners)
	}
	rec, err := scanTask(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err, "task %s not found", id)
	}
	return rec, nil
}

// DeleteTask removes the task row. Join rows cascade.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return translate(err, "task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "task %s not found", id)
	}
	return nil
}

// FindTasks searches task rows ordered by creation time, newest first.
func (s *Store) FindTasks(ctx context.Context, filter TaskFilter) ([]*TaskRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Owners) > 0 {
		where = append(where, "t.owner_id = ANY("+arg(filter.Owners)+")")
	}
	if filter.TaskID != "" {
		where = append(where, "t.id = "+arg(filter.TaskID))
	}
	if filter.ParentID != "" {
		where = append(where, "t.parent_id = "+arg(filter.ParentID))
	}
	if filter.Status != "" {
		where = append(where, "t.status = "+arg(filter.Status))
	}
	if filter.AssignedTo != "" {
		where = append(where, "t.assigned_to = "+arg(filter.AssignedTo))
	}
	if filter.AssignedType != "" {
		where = append(where, "t.assigned_type = "+arg(filter.AssignedType))
	}
	if filter.DeviceType != "" {
		where = append(where, "t.device_type = "+arg(filter.DeviceType))
	}
	if filter.Skill != "" {
		where = append(where, "t.skill = "+arg(filter.Skill))
	}
	for _, tag := range filter.Tags {
		where = append(where, `EXISTS (
			SELECT 1 FROM task_tag_association tta
			JOIN tags tg ON tg.id = tta.tag_id
			WHERE tta.task_id = t.id AND tg.tag = `+arg(tag)+`)`)
	}
	for k, v := range filter.Labels {
		where = append(where, `EXISTS (
			SELECT 1 FROM task_label_association tla
			JOIN labels lb ON lb.id = tla.label_id
			WHERE tla.task_id = t.id AND lb.key = `+arg(k)+` AND lb.value = `+arg(v)+`)`)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks t`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.created DESC"

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "tasks")
	}
	defer rows.Close()

	var recs []*TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, translate(err, "tasks")
		}
		recs = append(recs, rec)
	}
	return recs, translate(rows.Err(), "tasks")
}

// TasksByIDs loads a batch of task rows in one query, keyed by id. Missing
// ids are simply absent from the result.
func (s *Store) TasksByIDs(ctx context.Context, ids []string, owners []string) (map[string]*TaskRecord, error) {
	out := make(map[string]*TaskRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ANY($1)`
	args := []any{ids}
	if len(owners) > 0 {
		query += ` AND owner_id = ANY($2)`
		args = append(args, owners)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "tasks")
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, translate(err, "tasks")
		}
		out[rec.ID] = rec
	}
	return out, translate(rows.Err(), "tasks")
}

// SetTaskTags replaces the task's tag set, interning tags in the dictionary.
func (s *Store) SetTaskTags(ctx context.Context, taskID string, tags []string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM task_tag_association WHERE task_id = $1`, taskID); err != nil {
		return translate(err, "task %s tags", taskID)
	}
	for _, tag := range tags {
		var tagID int64
		err := s.q.QueryRow(ctx, `
			INSERT INTO tags (tag) VALUES ($1)
			ON CONFLICT (tag) DO UPDATE SET tag = EXCLUDED.tag
			RETURNING id`, tag).Scan(&tagID)
		if err != nil {
			return translate(err, "tag %s", tag)
		}
		_, err = s.q.Exec(ctx, `
			INSERT INTO task_tag_association (task_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, taskID, tagID)
		if err != nil {
			return translate(err, "task %s tags", taskID)
		}
	}
	return nil
}

// SetTaskLabels replaces the task's label set.
func (s *Store) SetTaskLabels(ctx context.Context, taskID string, labels map[string]string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM task_label_association WHERE task_id = $1`, taskID); err != nil {
		return translate(err, "task %s labels", taskID)
	}
	for k, v := range labels {
		var labelID int64
		err := s.q.QueryRow(ctx, `
			INSERT INTO labels (key, value) VALUES ($1, $2)
			ON CONFLICT (key, value) DO UPDATE SET key = EXCLUDED.key
			RETURNING id`, k, v).Scan(&labelID)
		if err != nil {
			return translate(err, "label %s", k)
		}
		_, err = s.q.Exec(ctx, `
			INSERT INTO task_label_association (task_id, label_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, taskID, labelID)
		if err != nil {
			return translate(err, "task %s labels", taskID)
		}
	}
	return nil
}

// TaskTags loads the tag lists for a batch of tasks in one query.
func (s *Store) TaskTags(ctx context.Context, taskIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT tta.task_id, tg.tag
		FROM task_tag_association tta
		JOIN tags tg ON tg.id = tta.tag_id
		WHERE tta.task_id = ANY($1)
		ORDER BY tg.tag`, taskIDs)
	if err != nil {
		return nil, translate(err, "task tags")
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, tag string
		if err := rows.Scan(&taskID, &tag); err != nil {
			return nil, translate(err, "task tags")
		}
		out[taskID] = append(out[taskID], tag)
	}
	return out, translate(rows.Err(), "task tags")
}

// TaskLabels loads the label maps for a batch of tasks in one query.
func (s *Store) TaskLabels(ctx context.Context, taskIDs []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT tla.task_id, lb.key, lb.value
		FROM task_label_association tla
		JOIN labels lb ON lb.id = tla.label_id
		WHERE tla.task_id = ANY($1)`, taskIDs)
	if err != nil {
		return nil, translate(err, "task labels")
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, key, value string
		if err := rows.Scan(&taskID, &key, &value); err != nil {
			return nil, translate(err, "task labels")
		}
		if out[taskID] == nil {
			out[taskID] = make(map[string]string)
		}
		out[taskID][key] = value
	}
	return out, translate(rows.Err(), "task labels")
}
