// Package episode manages the append-only action log of a task: ordered
// action events, per-action reviews, annotations and visibility.
package episode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/review"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Create inserts an empty episode.
func Create(ctx context.Context, s *store.Store, ownerID string) (*types.V1Episode, error) {
	rec := &store.EpisodeRecord{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Created: now(),
	}
	if err := s.CreateEpisode(ctx, rec); err != nil {
		return nil, err
	}
	return &types.V1Episode{ID: rec.ID, Actions: []types.V1ActionEvent{}, Created: rec.Created}, nil
}

// Get loads an episode with its visible events, per-event reviews and
// annotations.
func Get(ctx context.Context, s *store.Store, id string) (*types.V1Episode, error) {
	rec, err := s.GetEpisode(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := Events(ctx, s, id, false)
	if err != nil {
		return nil, err
	}
	return &types.V1Episode{ID: rec.ID, Actions: events, Created: rec.Created}, nil
}

// Events loads the episode's events in sequence order, decorated with
// reviews and annotations in one batch per relation.
func Events(ctx context.Context, s *store.Store, episodeID string, includeHidden bool) ([]types.V1ActionEvent, error) {
	recs, err := s.EventsForEpisode(ctx, episodeID, includeHidden)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	reviews, err := s.ReviewsForResources(ctx, store.ResourceTypeAction, ids)
	if err != nil {
		return nil, err
	}
	annotations, err := s.AnnotationsForActions(ctx, ids)
	if err != nil {
		return nil, err
	}
	annotationIDs := make([]string, 0)
	for _, list := range annotations {
		for _, a := range list {
			annotationIDs = append(annotationIDs, a.ID)
		}
	}
	annotationReviews, err := s.ReviewsForResources(ctx, store.ResourceTypeAnnotation, annotationIDs)
	if err != nil {
		return nil, err
	}

	out := make([]types.V1ActionEvent, 0, len(recs))
	for _, rec := range recs {
		ev, err := EventToV1(rec)
		if err != nil {
			return nil, err
		}
		for _, r := range reviews[rec.ID] {
			ev.Reviews = append(ev.Reviews, ReviewToV1(r))
		}
		for _, a := range annotations[rec.ID] {
			av := types.V1AnnotationReviewable{
				ID:            a.ID,
				Key:           a.Key,
				Annotator:     a.Annotator,
				AnnotatorType: a.AnnotatorType,
				Created:       a.Created,
			}
			if len(a.Value) > 0 {
				_ = json.Unmarshal(a.Value, &av.Value)
			}
			for _, r := range annotationReviews[a.ID] {
				av.Reviews = append(av.Reviews, ReviewToV1(r))
			}
			ev.Reviewables = append(ev.Reviewables, av)
		}
		out = append(out, *ev)
	}
	return out, nil
}

// Append writes one event at the next free slot. Call inside a transaction
// holding the task's advisory lock.
func Append(ctx context.Context, s *store.Store, episodeID string, ev types.V1ActionEvent) (*types.V1ActionEvent, error) {
	order, err := s.NextEventOrder(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Namespace == "" {
		ev.Namespace = "default"
	}
	if ev.Created == 0 {
		ev.Created = now()
	}
	ev.EventOrder = order
	rec, err := eventToRecord(episodeID, ev)
	if err != nil {
		return nil, err
	}
	if err := s.InsertActionEvent(ctx, rec); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Last returns the newest event in the episode, or nil when empty.
func Last(ctx context.Context, s *store.Store, episodeID string) (*types.V1ActionEvent, error) {
	rec, err := s.LastActionEvent(ctx, episodeID)
	if err != nil || rec == nil {
		return nil, err
	}
	return EventToV1(rec)
}

// ReviewAction upserts a review on one action.
func ReviewAction(ctx context.Context, s *store.Store, eng *review.Engine, actionID string, p review.UpsertParams) (*store.ReviewRecord, error) {
	if _, err := s.GetActionEvent(ctx, actionID); err != nil {
		return nil, err
	}
	p.ResourceType = store.ResourceTypeAction
	p.ResourceID = actionID
	return eng.Upsert(ctx, s, p)
}

// ApprovePrior approves the named action and every visible action before
// it in sequence order.
func ApprovePrior(ctx context.Context, s *store.Store, eng *review.Engine, episodeID, actionID string, p review.UpsertParams) error {
	recs, err := s.EventsForEpisode(ctx, episodeID, false)
	if err != nil {
		return err
	}
	idx := -1
	for i, rec := range recs {
		if rec.ID == actionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.NotFound("action %s not found in episode %s", actionID, episodeID)
	}
	p.Approved = true
	for i := 0; i <= idx; i++ {
		p.ResourceType = store.ResourceTypeAction
		p.ResourceID = recs[i].ID
		if _, err := eng.Upsert(ctx, s, p); err != nil {
			return err
		}
	}
	return nil
}

// ReviewAll applies one judgement across the episode's actions. Hidden
// actions are included only when asked.
func ReviewAll(ctx context.Context, s *store.Store, eng *review.Engine, episodeID string, p review.UpsertParams, includeHidden bool) error {
	recs, err := s.EventsForEpisode(ctx, episodeID, includeHidden)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		p.ResourceType = store.ResourceTypeAction
		p.ResourceID = rec.ID
		if _, err := eng.Upsert(ctx, s, p); err != nil {
			return err
		}
	}
	return nil
}

// Hide flips the hidden flag on one action.
func Hide(ctx context.Context, s *store.Store, actionID string, hidden bool) error {
	return s.SetActionEventHidden(ctx, actionID, hidden)
}

// DeleteAction removes one action from the log.
func DeleteAction(ctx context.Context, s *store.Store, actionID string) error {
	return s.DeleteActionEvent(ctx, actionID)
}

// DeleteAllActions clears the episode's log.
func DeleteAllActions(ctx context.Context, s *store.Store, episodeID string) error {
	recs, err := s.EventsForEpisode(ctx, episodeID, true)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.DeleteActionEvent(ctx, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

// Annotate attaches a reviewable annotation to an action.
func Annotate(ctx context.Context, s *store.Store, actionID string, a types.V1AnnotationReviewable) (*types.V1AnnotationReviewable, error) {
	if _, err := s.GetActionEvent(ctx, actionID); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Created == 0 {
		a.Created = now()
	}
	rec := &store.AnnotationRecord{
		ID:            a.ID,
		ActionID:      actionID,
		Key:           a.Key,
		Annotator:     a.Annotator,
		AnnotatorType: a.AnnotatorType,
		Created:       a.Created,
	}
	if a.Value != nil {
		data, err := json.Marshal(a.Value)
		if err != nil {
			return nil, fmt.Errorf("encode annotation value: %w", err)
		}
		rec.Value = data
	}
	if err := s.SaveAnnotation(ctx, rec); err != nil {
		return nil, err
	}
	return &a, nil
}

// ReviewAnnotation upserts a review on one annotation.
func ReviewAnnotation(ctx context.Context, s *store.Store, eng *review.Engine, annotationID string, p review.UpsertParams) (*store.ReviewRecord, error) {
	if _, err := s.GetAnnotation(ctx, annotationID); err != nil {
		return nil, err
	}
	p.ResourceType = store.ResourceTypeAnnotation
	p.ResourceID = annotationID
	return eng.Upsert(ctx, s, p)
}

// ReviewToV1 converts a review row to its wire shape.
func ReviewToV1(rec *store.ReviewRecord) types.V1Review {
	return types.V1Review{
		ID:           rec.ID,
		Reviewer:     rec.Reviewer,
		ReviewerType: rec.ReviewerType,
		Approved:     rec.Approved,
		Reason:       rec.Reason,
		Correction:   rec.Correction,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Created:      rec.Created,
		Updated:      rec.Updated,
	}
}

// EventToV1 converts an event row to its wire shape, without reviews or
// annotations.
func EventToV1(rec *store.ActionEventRecord) (*types.V1ActionEvent, error) {
	ev := &types.V1ActionEvent{
		ID:         rec.ID,
		Namespace:  rec.Namespace,
		Prompt:     rec.PromptID,
		OwnerID:    rec.OwnerID,
		Model:      rec.Model,
		AgentID:    rec.AgentID,
		Hidden:     rec.Hidden,
		EventOrder: rec.EventOrder,
		Created:    rec.Created,
	}
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &ev.State); err != nil {
			return nil, fmt.Errorf("decode event state: %w", err)
		}
	}
	if err := json.Unmarshal(rec.Action, &ev.Action); err != nil {
		return nil, fmt.Errorf("decode event action: %w", err)
	}
	if len(rec.Result) > 0 {
		if err := json.Unmarshal(rec.Result, &ev.Result); err != nil {
			return nil, fmt.Errorf("decode event result: %w", err)
		}
	}
	if len(rec.EndState) > 0 {
		if err := json.Unmarshal(rec.EndState, &ev.EndState); err != nil {
			return nil, fmt.Errorf("decode event end state: %w", err)
		}
	}
	if len(rec.Tool) > 0 {
		if err := json.Unmarshal(rec.Tool, &ev.Tool); err != nil {
			return nil, fmt.Errorf("decode event tool: %w", err)
		}
	}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata: %w", err)
		}
	}
	return ev, nil
}

func eventToRecord(episodeID string, ev types.V1ActionEvent) (*store.ActionEventRecord, error) {
	actionData, err := json.Marshal(ev.Action)
	if err != nil {
		return nil, fmt.Errorf("encode event action: %w", err)
	}
	rec := &store.ActionEventRecord{
		ID:         ev.ID,
		EpisodeID:  episodeID,
		EventOrder: ev.EventOrder,
		Action:     actionData,
		Namespace:  ev.Namespace,
		PromptID:   ev.Prompt,
		OwnerID:    ev.OwnerID,
		Model:      ev.Model,
		AgentID:    ev.AgentID,
		Hidden:     ev.Hidden,
		Created:    ev.Created,
	}
	if rec.State, err = json.Marshal(ev.State); err != nil {
		return nil, fmt.Errorf("encode event state: %w", err)
	}
	if ev.Result != nil {
		if rec.Result, err = json.Marshal(ev.Result); err != nil {
			return nil, fmt.Errorf("encode event result: %w", err)
		}
	}
	if ev.EndState != nil {
		if rec.EndState, err = json.Marshal(ev.EndState); err != nil {
			return nil, fmt.Errorf("encode event end state: %w", err)
		}
	}
	if rec.Tool, err = json.Marshal(ev.Tool); err != nil {
		return nil, fmt.Errorf("encode event tool: %w", err)
	}
	if ev.Metadata != nil {
		if rec.Metadata, err = json.Marshal(ev.Metadata); err != nil {
			return nil, fmt.Errorf("encode event metadata: %w", err)
		}
	}
	return rec, nil
}
