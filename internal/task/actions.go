package task

import (
	"context"
	"sync"
	"time"

	"github.com/agentsea/taskara/internal/episode"
	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/events"
	"github.com/agentsea/taskara/internal/review"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

// ActionEnd is the action name closing an episode. Recording anything
// after an end is a no-op.
const ActionEnd = "end"

// ActionMouseMove is dropped when an end immediately follows it.
const ActionMouseMove = "mouse_move"

// RecordActionEvent appends an action to the task's episode under the
// task's lock, applying the end rules, converting images first and
// publishing the recorded envelope after commit.
func (s *Service) RecordActionEvent(ctx context.Context, owners []string, taskID string, ev types.V1ActionEvent) (*types.V1ActionEvent, error) {
	if err := s.convertEventImages(&ev); err != nil {
		return nil, err
	}

	var (
		recorded *types.V1ActionEvent
		prev     *types.V1ActionEvent
		snapshot *types.V1Task
	)
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, taskID, owners)
		if err != nil {
			return err
		}
		if rec.EpisodeID == "" {
			return errs.Precondition("task %s has no episode", taskID)
		}
		if err := tx.LockTask(ctx, taskID); err != nil {
			return err
		}
		last, err := episode.Last(ctx, tx, rec.EpisodeID)
		if err != nil {
			return err
		}
		if last != nil && last.Action.Name == ActionEnd {
			return nil
		}
		if ev.Action.Name == ActionEnd && last != nil && last.Action.Name == ActionMouseMove {
			if err := tx.DeleteActionEvent(ctx, last.ID); err != nil {
				return err
			}
			last, err = episode.Last(ctx, tx, rec.EpisodeID)
			if err != nil {
				return err
			}
		}
		appended, err := episode.Append(ctx, tx, rec.EpisodeID, ev)
		if err != nil {
			return err
		}
		if err := s.engine.Recompute(ctx, tx, taskID, rec.EpisodeID); err != nil {
			return err
		}
		full, err := s.loadV1(ctx, tx, rec)
		if err != nil {
			return err
		}
		recorded, prev, snapshot = appended, last, full
		return nil
	})
	if err != nil {
		return nil, err
	}
	if recorded == nil {
		// Episode already ended.
		return nil, nil
	}
	s.publisher.PublishActionRecorded(ctx, events.ActionRecorded{
		TaskID:      taskID,
		PrevAction:  prev,
		Action:      *recorded,
		EventNumber: recorded.EventOrder,
		Task:        *snapshot,
	})
	return recorded, nil
}

// convertEventImages normalises the state and end-state image references,
// running the two conversions concurrently.
func (s *Service) convertEventImages(ev *types.V1ActionEvent) error {
	var (
		wg               sync.WaitGroup
		stateErr, endErr error
	)
	if len(ev.State.Images) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev.State.Images, stateErr = s.converter.ConvertImages(ev.State.Images)
		}()
	}
	if ev.EndState != nil && len(ev.EndState.Images) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev.EndState.Images, endErr = s.converter.ConvertImages(ev.EndState.Images)
		}()
	}
	wg.Wait()
	if stateErr != nil {
		return stateErr
	}
	return endErr
}

// Actions lists the task's visible action events in episode order.
func (s *Service) Actions(ctx context.Context, owners []string, taskID string) ([]types.V1ActionEvent, error) {
	rec, err := s.store.GetTask(ctx, taskID, owners)
	if err != nil {
		return nil, err
	}
	if rec.EpisodeID == "" {
		return []types.V1ActionEvent{}, nil
	}
	return episode.Events(ctx, s.store, rec.EpisodeID, false)
}

// Episode loads the task's episode.
func (s *Service) Episode(ctx context.Context, owners []string, taskID string) (*types.V1Episode, error) {
	rec, err := s.store.GetTask(ctx, taskID, owners)
	if err != nil {
		return nil, err
	}
	if rec.EpisodeID == "" {
		return nil, errs.Precondition("task %s has no episode", taskID)
	}
	return episode.Get(ctx, s.store, rec.EpisodeID)
}

// ReviewTask upserts a task-level review and recomputes the pending
// projection in the same transaction.
func (s *Service) ReviewTask(ctx context.Context, owners []string, taskID string, p review.UpsertParams) (*types.V1Task, error) {
	var out *types.V1Task
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, taskID, owners)
		if err != nil {
			return err
		}
		if err := tx.LockTask(ctx, taskID); err != nil {
			return err
		}
		p.ResourceType = store.ResourceTypeTask
		p.ResourceID = taskID
		if _, err := s.engine.Upsert(ctx, tx, p); err != nil {
			return err
		}
		if err := s.engine.Recompute(ctx, tx, taskID, rec.EpisodeID); err != nil {
			return err
		}
		out, err = s.loadV1(ctx, tx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReviewAction upserts a review on one action and recomputes pending.
func (s *Service) ReviewAction(ctx context.Context, owners []string, taskID, actionID string, p review.UpsertParams) error {
	return s.withEpisodeTx(ctx, owners, taskID, func(tx *store.Store, episodeID string) error {
		_, err := episode.ReviewAction(ctx, tx, s.engine, actionID, p)
		return err
	})
}

// ApprovePriorActions approves the named action and all visible actions
// before it.
func (s *Service) ApprovePriorActions(ctx context.Context, owners []string, taskID, actionID string, p review.UpsertParams) error {
	return s.withEpisodeTx(ctx, owners, taskID, func(tx *store.Store, episodeID string) error {
		return episode.ApprovePrior(ctx, tx, s.engine, episodeID, actionID, p)
	})
}

// ReviewAllActions bulk-applies one judgement across the episode.
func (s *Service) ReviewAllActions(ctx context.Context, owners []string, taskID string, p review.UpsertParams, includeHidden bool) error {
	return s.withEpisodeTx(ctx, owners, taskID, func(tx *store.Store, episodeID string) error {
		return episode.ReviewAll(ctx, tx, s.engine, episodeID, p, includeHidden)
	})
}

// HideAction flips an action's hidden flag.
func (s *Service) HideAction(ctx context.Context, owners []string, taskID, actionID string, hidden bool) error {
	return s.withEpisodeTx(ctx, owners, taskID, func(tx *store.Store, episodeID string) error {
		return episode.Hide(ctx, tx, actionID, hidden)
	})
}

// DeleteAction removes one action from the episode.
func (s *Service) DeleteAction(ctx context.Context, owners []string, taskID, actionID string) error {
	return s.withEpisodeTx(ctx, owners, taskID, func(tx *store.Store, episodeID string) error {
		return episode.DeleteAction(ctx, tx, actionID)
	})
}

// DeleteAllActions clears the episode's log.
func (s *Service) DeleteAllActions(ctx context.Context, owners []string, taskID string) error {
	return s.withEpisodeTx(ctx, owners, taskID, func(tx *store.Store, episodeID string) error {
		return episode.DeleteAllActions(ctx, tx, episodeID)
	})
}

// Annotate attaches an annotation to one of the task's actions.
func (s *Service) Annotate(ctx context.Context, owners []string, taskID, actionID string, a types.V1AnnotationReviewable) (string, error) {
	if _, err := s.store.GetTask(ctx, taskID, owners); err != nil {
		return "", err
	}
	stored, err := episode.Annotate(ctx, s.store, actionID, a)
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}

// ReviewAnnotation upserts a review on an annotation.
func (s *Service) ReviewAnnotation(ctx context.Context, annotationID string, p review.UpsertParams) error {
	_, err := episode.ReviewAnnotation(ctx, s.store, s.engine, annotationID, p)
	return err
}

// withEpisodeTx runs fn in a transaction holding the task lock, then
// recomputes the pending projection.
func (s *Service) withEpisodeTx(ctx context.Context, owners []string, taskID string, fn func(tx *store.Store, episodeID string) error) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, taskID, owners)
		if err != nil {
			return err
		}
		if rec.EpisodeID == "" {
			return errs.Precondition("task %s has no episode", taskID)
		}
		if err := tx.LockTask(ctx, taskID); err != nil {
			return err
		}
		if err := fn(tx, rec.EpisodeID); err != nil {
			return err
		}
		return s.engine.Recompute(ctx, tx, taskID, rec.EpisodeID)
	})
}

// PendingReviewers lists the parties still owing a review on a task.
func (s *Service) PendingReviewers(ctx context.Context, owners []string, taskID string) (*types.V1PendingReviewers, error) {
	if _, err := s.store.GetTask(ctx, taskID, owners); err != nil {
		return nil, err
	}
	return s.engine.PendingReviewers(ctx, s.store, taskID)
}

// PendingReviews lists the task ids a party is pending on.
func (s *Service) PendingReviews(ctx context.Context, user, agent string) (*types.V1PendingReviews, error) {
	return s.engine.PendingReviews(ctx, s.store, user, agent)
}

// WaitForDone polls the task until it reaches a terminal status, failing
// with Timeout at the deadline.
func (s *Service) WaitForDone(ctx context.Context, owners []string, taskID string, timeout, interval time.Duration) (*types.V1Task, error) {
	deadline := time.Now().Add(timeout)
	for {
		v1, err := s.Get(ctx, owners, taskID)
		if err != nil {
			return nil, err
		}
		if Status(v1.Status).IsDone() {
			return v1, nil
		}
		if time.Now().After(deadline) {
			return nil, errs.Timeout("task %s did not complete within %s", taskID, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, errs.Timeout("task %s wait canceled", taskID)
		case <-time.After(interval):
		}
	}
}
