// Package review implements the multi-party review engine: review upserts,
// review requirements and the materialised pending-reviewer projection.
//
// A listed party is individually satisfied once it has reviewed the task
// itself and every visible action in the task's episode. A requirement is
// met when the number of satisfied listed parties reaches number_required;
// meeting it clears every pending row for that requirement at once. Until
// then every listed party stays pending, satisfied ones included.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

// Engine recomputes the pending projection and applies review writes.
type Engine struct {
	logger logging.Logger
}

// NewEngine builds a review engine.
func NewEngine() *Engine {
	return &Engine{logger: logging.NewComponentLogger("Reviews")}
}

// UpsertParams carries one review write. Reviews are keyed by reviewer and
// reviewer type per resource: a second review from the same party replaces
// the judgement instead of stacking a new row.
type UpsertParams struct {
	ResourceType string
	ResourceID   string
	Reviewer     string
	ReviewerType string
	Approved     bool
	Reason       string
	Correction   string
}

// Upsert applies one review write, returning the stored record.
func (e *Engine) Upsert(ctx context.Context, s *store.Store, p UpsertParams) (*store.ReviewRecord, error) {
	if p.ReviewerType == "" {
		p.ReviewerType = store.ReviewerTypeHuman
	}
	existing, err := s.ReviewsForResource(ctx, p.ResourceType, p.ResourceID)
	if err != nil {
		return nil, err
	}
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	for _, rec := range existing {
		if rec.Reviewer == p.Reviewer && rec.ReviewerType == p.ReviewerType {
			rec.Approved = p.Approved
			rec.Reason = p.Reason
			rec.Correction = p.Correction
			rec.Updated = now
			if err := s.SaveReview(ctx, rec); err != nil {
				return nil, err
			}
			return rec, nil
		}
	}
	rec := &store.ReviewRecord{
		ID:           uuid.NewString(),
		Reviewer:     p.Reviewer,
		ReviewerType: p.ReviewerType,
		Approved:     p.Approved,
		Reason:       p.Reason,
		Correction:   p.Correction,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		Created:      now,
	}
	if err := s.SaveReview(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Target is one desired pending row, without an assigned id.
type Target struct {
	UserID        string
	AgentID       string
	RequirementID string
}

// Inputs is the state the pending projection derives from.
type Inputs struct {
	Requirements     []*store.RequirementRecord
	TaskReviews      []*store.ReviewRecord
	VisibleActionIDs []string
	ActionReviews    map[string][]*store.ReviewRecord
}

// TargetPending computes the exact pending set for the given state.
// Satisfaction matches on the reviewer id regardless of reviewer type: a
// party counts once it has reviewed the task and every visible action.
func TargetPending(in Inputs) []Target {
	taskReviewed := make(map[string]bool, len(in.TaskReviews))
	for _, rec := range in.TaskReviews {
		taskReviewed[rec.Reviewer] = true
	}
	actionReviewed := make(map[string]map[string]bool, len(in.ActionReviews))
	for actionID, recs := range in.ActionReviews {
		set := make(map[string]bool, len(recs))
		for _, rec := range recs {
			set[rec.Reviewer] = true
		}
		actionReviewed[actionID] = set
	}

	satisfied := func(reviewer string) bool {
		if !taskReviewed[reviewer] {
			return false
		}
		for _, actionID := range in.VisibleActionIDs {
			if !actionReviewed[actionID][reviewer] {
				return false
			}
		}
		return true
	}

	var targets []Target
	for _, req := range in.Requirements {
		type listed struct {
			id   string
			user bool
		}
		parties := make([]listed, 0, len(req.Users)+len(req.Agents))
		for _, u := range req.Users {
			parties = append(parties, listed{id: u, user: true})
		}
		for _, a := range req.Agents {
			parties = append(parties, listed{id: a})
		}
		done := 0
		for _, lp := range parties {
			if satisfied(lp.id) {
				done++
			}
		}
		if done >= req.NumberRequired {
			continue
		}
		// The requirement is unmet, so every listed party stays pending,
		// satisfied ones included.
		for _, lp := range parties {
			t := Target{RequirementID: req.ID}
			if lp.user {
				t.UserID = lp.id
			} else {
				t.AgentID = lp.id
			}
			targets = append(targets, t)
		}
	}
	return targets
}

// Recompute rebuilds the pending projection for one task inside the
// caller's transaction. It reaches a fixed point in a single pass because
// the target set is a pure function of the stored state.
func (e *Engine) Recompute(ctx context.Context, s *store.Store, taskID, episodeID string) error {
	reqs, err := s.RequirementsForTask(ctx, taskID)
	if err != nil {
		return err
	}
	taskReviews, err := s.ReviewsForResource(ctx, store.ResourceTypeTask, taskID)
	if err != nil {
		return err
	}
	var visible []string
	actionReviews := map[string][]*store.ReviewRecord{}
	if episodeID != "" {
		events, err := s.EventsForEpisode(ctx, episodeID, false)
		if err != nil {
			return err
		}
		visible = make([]string, 0, len(events))
		for _, ev := range events {
			visible = append(visible, ev.ID)
		}
		actionReviews, err = s.ReviewsForResources(ctx, store.ResourceTypeAction, visible)
		if err != nil {
			return err
		}
	}

	targets := TargetPending(Inputs{
		Requirements:     reqs,
		TaskReviews:      taskReviews,
		VisibleActionIDs: visible,
		ActionReviews:    actionReviews,
	})

	existing, err := s.PendingReviewersForTask(ctx, taskID)
	if err != nil {
		return err
	}

	wanted := make(map[Target]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}
	var stale []string
	have := make(map[Target]bool, len(existing))
	for _, row := range existing {
		t := Target{UserID: row.UserID, AgentID: row.AgentID, RequirementID: row.RequirementID}
		if !wanted[t] || have[t] {
			stale = append(stale, row.ID)
			continue
		}
		have[t] = true
	}
	if err := s.DeletePendingReviewers(ctx, stale); err != nil {
		return err
	}
	for _, t := range targets {
		if have[t] {
			continue
		}
		err := s.InsertPendingReviewer(ctx, &store.PendingReviewerRecord{
			ID:            uuid.NewString(),
			TaskID:        taskID,
			UserID:        t.UserID,
			AgentID:       t.AgentID,
			RequirementID: t.RequirementID,
		})
		if err != nil {
			return err
		}
	}
	e.logger.Debug("recomputed pending reviewers for task %s: %d rows", taskID, len(targets))
	return nil
}

// PendingReviewers returns the distinct parties still owing a review on a
// task.
func (e *Engine) PendingReviewers(ctx context.Context, s *store.Store, taskID string) (*types.V1PendingReviewers, error) {
	rows, err := s.PendingReviewersForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := &types.V1PendingReviewers{TaskID: taskID, Users: []string{}, Agents: []string{}}
	seenUsers := map[string]bool{}
	seenAgents := map[string]bool{}
	for _, row := range rows {
		if row.UserID != "" && !seenUsers[row.UserID] {
			seenUsers[row.UserID] = true
			out.Users = append(out.Users, row.UserID)
		}
		if row.AgentID != "" && !seenAgents[row.AgentID] {
			seenAgents[row.AgentID] = true
			out.Agents = append(out.Agents, row.AgentID)
		}
	}
	return out, nil
}

// PendingReviews lists the task ids a party is pending on. Exactly one of
// user and agent should be set; with neither set the result is empty.
func (e *Engine) PendingReviews(ctx context.Context, s *store.Store, user, agent string) (*types.V1PendingReviews, error) {
	out := &types.V1PendingReviews{Tasks: []string{}}
	var (
		ids []string
		err error
	)
	switch {
	case user != "":
		ids, err = s.PendingTaskIDsForUser(ctx, user)
	case agent != "":
		ids, err = s.PendingTaskIDsForAgent(ctx, agent)
	}
	if err != nil {
		return nil, err
	}
	out.Tasks = append(out.Tasks, ids...)
	return out, nil
}
