package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Resource types discriminating rows in the reviews table.
const (
	ResourceTypeTask       = "task"
	ResourceTypeAction     = "action"
	ResourceTypeAnnotation = "annotation"
)

// Reviewer types.
const (
	ReviewerTypeHuman = "human"
	ReviewerTypeAgent = "agent"
)

// ReviewRecord is one party's judgement of a resource. Reviews on tasks,
// action events and annotations share the table, discriminated by
// resource_type.
type ReviewRecord struct {
	ID           string
	Reviewer     string
	ReviewerType string
	Approved     bool
	Reason       string
	Correction   string
	ResourceType string
	ResourceID   string
	Created      float64
	Updated      float64
}

// RequirementRecord declares how many of the listed parties must review
// a task before it is considered fully reviewed.
type RequirementRecord struct {
	ID             string
	TaskID         string
	NumberRequired int
	Users          []string
	Agents         []string
	Groups         []string
	Types          []string
	Created        float64
	Updated        float64
}

// PendingReviewerRecord is one row of the materialised pending projection.
// Exactly one of UserID and AgentID is set.
type PendingReviewerRecord struct {
	ID            string
	TaskID        string
	UserID        string
	AgentID       string
	RequirementID string
}

const reviewColumns = `id, reviewer, reviewer_type, approved, reason, correction,
	resource_type, resource_id, created, updated`

// SaveReview upserts a review row.
func (s *Store) SaveReview(ctx context.Context, rec *ReviewRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			reviewer = EXCLUDED.reviewer,
			reviewer_type = EXCLUDED.reviewer_type,
			approved = EXCLUDED.approved,
			reason = EXCLUDED.reason,
			correction = EXCLUDED.correction,
			updated = EXCLUDED.updated`,
		rec.ID, rec.Reviewer, rec.ReviewerType, rec.Approved, rec.Reason,
		rec.Correction, rec.ResourceType, rec.ResourceID, rec.Created, rec.Updated,
	)
	return translate(err, "review %s", rec.ID)
}

// DeleteReview removes a review row.
func (s *Store) DeleteReview(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return translate(err, "review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "review %s not found", id)
	}
	return nil
}

func scanReviews(rows pgx.Rows) ([]*ReviewRecord, error) {
	defer rows.Close()
	var recs []*ReviewRecord
	for rows.Next() {
		var rec ReviewRecord
		err := rows.Scan(&rec.ID, &rec.Reviewer, &rec.ReviewerType, &rec.Approved,
			&rec.Reason, &rec.Correction, &rec.ResourceType, &rec.ResourceID,
			&rec.Created, &rec.Updated)
		if err != nil {
			return nil, translate(err, "reviews")
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "reviews")
}

// ReviewsForResource loads the reviews on one resource, oldest first.
func (s *Store) ReviewsForResource(ctx context.Context, resourceType, resourceID string) ([]*ReviewRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created`, resourceType, resourceID)
	if err != nil {
		return nil, translate(err, "reviews")
	}
	return scanReviews(rows)
}

// ReviewsForResources batch-loads reviews for many resources of one type,
// keyed by resource id.
func (s *Store) ReviewsForResources(ctx context.Context, resourceType string, resourceIDs []string) (map[string][]*ReviewRecord, error) {
	out := make(map[string][]*ReviewRecord, len(resourceIDs))
	if len(resourceIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE resource_type = $1 AND resource_id = ANY($2)
		ORDER BY created`, resourceType, resourceIDs)
	if err != nil {
		return nil, translate(err, "reviews")
	}
	recs, err := scanReviews(rows)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[rec.ResourceID] = append(out[rec.ResourceID], rec)
	}
	return out, nil
}

func decodeStringList(data []byte, what string) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return list, nil
}

// SaveRequirement upserts a review requirement row.
func (s *Store) SaveRequirement(ctx context.Context, rec *RequirementRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO review_requirements
			(id, task_id, number_required, users, agents, groups, types, created, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			number_required = EXCLUDED.number_required,
			users = EXCLUDED.users,
			agents = EXCLUDED.agents,
			groups = EXCLUDED.groups,
			types = EXCLUDED.types,
			updated = EXCLUDED.updated`,
		rec.ID, rec.TaskID, rec.NumberRequired,
		idsJSON(rec.Users), idsJSON(rec.Agents), idsJSON(rec.Groups), idsJSON(rec.Types),
		rec.Created, rec.Updated,
	)
	return translate(err, "review requirement %s", rec.ID)
}

func scanRequirements(rows pgx.Rows) ([]*RequirementRecord, error) {
	defer rows.Close()
	var recs []*RequirementRecord
	for rows.Next() {
		var (
			rec                           RequirementRecord
			users, agents, groups, vtypes []byte
		)
		err := rows.Scan(&rec.ID, &rec.TaskID, &rec.NumberRequired,
			&users, &agents, &groups, &vtypes, &rec.Created, &rec.Updated)
		if err != nil {
			return nil, translate(err, "review requirements")
		}
		if rec.Users, err = decodeStringList(users, "requirement users"); err != nil {
			return nil, err
		}
		if rec.Agents, err = decodeStringList(agents, "requirement agents"); err != nil {
			return nil, err
		}
		if rec.Groups, err = decodeStringList(groups, "requirement groups"); err != nil {
			return nil, err
		}
		if rec.Types, err = decodeStringList(vtypes, "requirement types"); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "review requirements")
}

// RequirementsForTask loads the requirements attached to one task.
func (s *Store) RequirementsForTask(ctx context.Context, taskID string) ([]*RequirementRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, task_id, number_required, users, agents, groups, types, created, updated
		FROM review_requirements WHERE task_id = $1 ORDER BY created`, taskID)
	if err != nil {
		return nil, translate(err, "review requirements")
	}
	return scanRequirements(rows)
}

// RequirementsForTasks batch-loads requirements keyed by task id.
func (s *Store) RequirementsForTasks(ctx context.Context, taskIDs []string) (map[string][]*RequirementRecord, error) {
	out := make(map[string][]*RequirementRecord, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, task_id, number_required, users, agents, groups, types, created, updated
		FROM review_requirements WHERE task_id = ANY($1) ORDER BY created`, taskIDs)
	if err != nil {
		return nil, translate(err, "review requirements")
	}
	recs, err := scanRequirements(rows)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[rec.TaskID] = append(out[rec.TaskID], rec)
	}
	return out, nil
}

// DeleteRequirementsForTask removes a task's requirements.
func (s *Store) DeleteRequirementsForTask(ctx context.Context, taskID string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM review_requirements WHERE task_id = $1`, taskID)
	return translate(err, "review requirements for task %s", taskID)
}

// PendingReviewersForTask loads the pending projection rows for one task.
func (s *Store) PendingReviewersForTask(ctx context.Context, taskID string) ([]*PendingReviewerRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, task_id, user_id, agent_id, requirement_id
		FROM pending_reviewers WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, translate(err, "pending reviewers")
	}
	defer rows.Close()
	var recs []*PendingReviewerRecord
	for rows.Next() {
		var rec PendingReviewerRecord
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.UserID, &rec.AgentID, &rec.RequirementID); err != nil {
			return nil, translate(err, "pending reviewers")
		}
		recs = append(recs, &rec)
	}
	return recs, translate(rows.Err(), "pending reviewers")
}

// InsertPendingReviewer adds one projection row.
func (s *Store) InsertPendingReviewer(ctx context.Context, rec *PendingReviewerRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO pending_reviewers (id, task_id, user_id, agent_id, requirement_id)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.TaskID, rec.UserID, rec.AgentID, rec.RequirementID)
	return translate(err, "pending reviewer %s", rec.ID)
}

// DeletePendingReviewers removes projection rows by id.
func (s *Store) DeletePendingReviewers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q.Exec(ctx, `DELETE FROM pending_reviewers WHERE id = ANY($1)`, ids)
	return translate(err, "pending reviewers")
}

// DeletePendingReviewersForTask clears the projection for one task.
func (s *Store) DeletePendingReviewersForTask(ctx context.Context, taskID string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM pending_reviewers WHERE task_id = $1`, taskID)
	return translate(err, "pending reviewers for task %s", taskID)
}

// PendingTaskIDsForUser lists the task ids a user is pending on.
func (s *Store) PendingTaskIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return s.pendingTaskIDs(ctx, `user_id`, userID)
}

// PendingTaskIDsForAgent lists the task ids an agent is pending on.
func (s *Store) PendingTaskIDsForAgent(ctx context.Context, agentID string) ([]string, error) {
	return s.pendingTaskIDs(ctx, `agent_id`, agentID)
}

func (s *Store) pendingTaskIDs(ctx context.Context, column, party string) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT DISTINCT task_id FROM pending_reviewers WHERE `+column+` = $1
		ORDER BY task_id`, party)
	if err != nil {
		return nil, translate(err, "pending reviews")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err, "pending reviews")
		}
		ids = append(ids, id)
	}
	return ids, translate(rows.Err(), "pending reviews")
}
