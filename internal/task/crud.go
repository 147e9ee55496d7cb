package task

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentsea/taskara/internal/episode"
	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/thread"
	"github.com/agentsea/taskara/internal/types"
)

// Create validates and persists a new task: the feed thread, an empty
// episode, the requested review requirements, tags and labels, and the
// pending projection all come up together.
func (s *Service) Create(ctx context.Context, ownerID string, v1 types.V1Task) (*types.V1Task, error) {
	if v1.Description == "" && v1.Remote == "" {
		return nil, errs.Validation("a task needs a description or a remote endpoint")
	}
	if v1.OwnerID == "" {
		v1.OwnerID = ownerID
	}
	if v1.ID == "" {
		v1.ID = uuid.NewString()
	}
	if v1.Status == "" {
		v1.Status = string(StatusDefined)
	}
	if !Status(v1.Status).Valid() {
		return nil, errs.Validation("unknown task status %q", v1.Status)
	}
	if v1.Created == 0 {
		v1.Created = now()
	}
	if v1.MaxSteps == 0 {
		v1.MaxSteps = 30
	}

	var out *types.V1Task
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if v1.EpisodeID == "" {
			ep, err := episode.Create(ctx, tx, v1.OwnerID)
			if err != nil {
				return err
			}
			v1.EpisodeID = ep.ID
		}
		feed, err := thread.Create(ctx, tx, v1.OwnerID, types.V1AddThread{Name: FeedThreadName})
		if err != nil {
			return err
		}
		v1.Threads = append([]types.V1RoleThread{*feed}, v1.Threads...)

		rec, err := recordFromV1(&v1)
		if err != nil {
			return err
		}
		rec.CreatedBy = ownerID
		if err := tx.SaveTask(ctx, rec); err != nil {
			return err
		}
		if err := tx.SetTaskTags(ctx, v1.ID, v1.Tags); err != nil {
			return err
		}
		if err := tx.SetTaskLabels(ctx, v1.ID, v1.Labels); err != nil {
			return err
		}
		for _, req := range v1.ReviewRequirements {
			reqRec := &store.RequirementRecord{
				ID:             req.ID,
				TaskID:         v1.ID,
				NumberRequired: req.NumberRequired,
				Users:          req.Users,
				Agents:         req.Agents,
				Groups:         req.Groups,
				Types:          req.Types,
				Created:        now(),
			}
			if reqRec.ID == "" {
				reqRec.ID = uuid.NewString()
			}
			if err := tx.SaveRequirement(ctx, reqRec); err != nil {
				return err
			}
		}
		if err := s.engine.Recompute(ctx, tx, v1.ID, v1.EpisodeID); err != nil {
			return err
		}
		full, err := s.loadV1(ctx, tx, rec)
		if err != nil {
			return err
		}
		version, err := VersionHash(*full)
		if err != nil {
			return err
		}
		rec.Version = version
		full.Version = version
		if err := tx.SaveTask(ctx, rec); err != nil {
			return err
		}
		out = full
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("created task %s for %s", out.ID, out.OwnerID)
	return out, nil
}

// Get returns the task iff its owner is inside the caller's resolved set.
// Tasks outside the set read as absent.
func (s *Service) Get(ctx context.Context, owners []string, id string) (*types.V1Task, error) {
	rec, err := s.store.GetTask(ctx, id, owners)
	if err != nil {
		return nil, err
	}
	return s.loadV1(ctx, s.store, rec)
}

// Find searches tasks for the caller, newest first. An explicit device
// filter matches the decrypted device name.
func (s *Service) Find(ctx context.Context, owners []string, search types.V1SearchTask) ([]types.V1Task, error) {
	recs, err := s.store.FindTasks(ctx, store.TaskFilter{
		Owners:       owners,
		TaskID:       search.TaskID,
		ParentID:     search.ParentID,
		Status:       search.Status,
		AssignedTo:   search.AssignedTo,
		AssignedType: search.AssignedType,
		DeviceType:   search.DeviceType,
		Skill:        search.Skill,
		Tags:         search.Tags,
		Labels:       search.Labels,
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.V1Task, 0, len(recs))
	for _, rec := range recs {
		v1, err := s.loadV1(ctx, s.store, rec)
		if err != nil {
			return nil, err
		}
		if search.Device != "" && (v1.Device == nil || v1.Device.Name != search.Device) {
			continue
		}
		out = append(out, *v1)
	}
	return out, nil
}

// FindManyLite batch-loads a set of tasks with parameters, reviews and
// review requirements populated, in a constant number of store round
// trips. Ids that do not resolve are absent from the result.
func (s *Service) FindManyLite(ctx context.Context, owners []string, ids []string) ([]types.V1Task, error) {
	recs, err := s.store.TasksByIDs(ctx, ids, owners)
	if err != nil {
		return nil, err
	}
	present := make([]string, 0, len(recs))
	for _, id := range ids {
		if _, ok := recs[id]; ok {
			present = append(present, id)
		}
	}
	reviews, err := s.store.ReviewsForResources(ctx, store.ResourceTypeTask, present)
	if err != nil {
		return nil, err
	}
	reqs, err := s.store.RequirementsForTasks(ctx, present)
	if err != nil {
		return nil, err
	}
	out := make([]types.V1Task, 0, len(present))
	for _, id := range present {
		v1, err := baseV1(recs[id])
		if err != nil {
			return nil, err
		}
		for _, r := range reviews[id] {
			v1.Reviews = append(v1.Reviews, episode.ReviewToV1(r))
		}
		for _, req := range reqs[id] {
			v1.ReviewRequirements = append(v1.ReviewRequirements, requirementToV1(req))
		}
		out = append(out, *v1)
	}
	return out, nil
}

// Update applies an explicit patch. Only fields present are touched;
// set_labels merges at key level. The version hash is recomputed iff an
// observable field changed.
func (s *Service) Update(ctx context.Context, owners []string, id string, patch types.V1TaskUpdate) (*types.V1Task, error) {
	if patch.Status != nil && !Status(*patch.Status).Valid() {
		return nil, errs.Validation("unknown task status %q", *patch.Status)
	}
	var out *types.V1Task
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, id, owners)
		if err != nil {
			return err
		}
		applyPatch(rec, patch)
		if len(patch.SetLabels) > 0 {
			labels, err := tx.TaskLabels(ctx, []string{id})
			if err != nil {
				return err
			}
			merged := labels[id]
			if merged == nil {
				merged = map[string]string{}
			}
			for k, v := range patch.SetLabels {
				merged[k] = v
			}
			if err := tx.SetTaskLabels(ctx, id, merged); err != nil {
				return err
			}
		}
		if err := tx.SaveTask(ctx, rec); err != nil {
			return err
		}
		full, err := s.loadV1(ctx, tx, rec)
		if err != nil {
			return err
		}
		version, err := VersionHash(*full)
		if err != nil {
			return err
		}
		if version != rec.Version {
			rec.Version = version
			full.Version = version
			if err := tx.SaveTask(ctx, rec); err != nil {
				return err
			}
		}
		if err := s.engine.Recompute(ctx, tx, id, rec.EpisodeID); err != nil {
			return err
		}
		out = full
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyPatch(rec *store.TaskRecord, patch types.V1TaskUpdate) {
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.MaxSteps != nil {
		rec.MaxSteps = *patch.MaxSteps
	}
	if patch.Error != nil {
		rec.Error = *patch.Error
	}
	if patch.Output != nil {
		rec.Output = *patch.Output
	}
	if patch.AssignedTo != nil {
		rec.AssignedTo = *patch.AssignedTo
	}
	if patch.AssignedType != nil {
		rec.AssignedType = *patch.AssignedType
	}
	if patch.Started != nil {
		rec.Started = *patch.Started
	}
	if patch.Completed != nil {
		rec.Completed = *patch.Completed
	}
	if patch.Project != nil {
		rec.Project = *patch.Project
	}
	if patch.Skill != nil {
		rec.Skill = *patch.Skill
	}
	if patch.Version != nil {
		rec.Version = *patch.Version
	}
}

// Delete removes a task and everything hanging off it: episode, threads,
// prompts, reviews, requirements and the pending projection.
func (s *Service) Delete(ctx context.Context, owners []string, id string) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, id, owners)
		if err != nil {
			return err
		}
		if rec.EpisodeID != "" {
			events, err := tx.EventsForEpisode(ctx, rec.EpisodeID, true)
			if err != nil {
				return err
			}
			eventIDs := make([]string, 0, len(events))
			for _, ev := range events {
				eventIDs = append(eventIDs, ev.ID)
			}
			annotations, err := tx.AnnotationsForActions(ctx, eventIDs)
			if err != nil {
				return err
			}
			for _, ev := range events {
				reviews, err := tx.ReviewsForResource(ctx, store.ResourceTypeAction, ev.ID)
				if err != nil {
					return err
				}
				for _, r := range reviews {
					if err := tx.DeleteReview(ctx, r.ID); err != nil {
						return err
					}
				}
				for _, a := range annotations[ev.ID] {
					reviews, err := tx.ReviewsForResource(ctx, store.ResourceTypeAnnotation, a.ID)
					if err != nil {
						return err
					}
					for _, r := range reviews {
						if err := tx.DeleteReview(ctx, r.ID); err != nil {
							return err
						}
					}
				}
			}
			if err := tx.DeleteEpisode(ctx, rec.EpisodeID); err != nil {
				return err
			}
		}
		for _, threadID := range rec.Threads {
			if err := tx.DeleteThread(ctx, threadID); err != nil {
				return err
			}
		}
		for _, promptID := range rec.Prompts {
			if err := tx.DeletePrompt(ctx, promptID); err != nil {
				return err
			}
		}
		reviews, err := tx.ReviewsForResource(ctx, store.ResourceTypeTask, id)
		if err != nil {
			return err
		}
		for _, r := range reviews {
			if err := tx.DeleteReview(ctx, r.ID); err != nil {
				return err
			}
		}
		if err := tx.DeletePendingReviewersForTask(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteRequirementsForTask(ctx, id); err != nil {
			return err
		}
		return tx.DeleteTask(ctx, id)
	})
}

// Copy clones a task: fresh id, reset timestamps, defined status, a new
// feed thread and a new empty episode. No mutable child is shared with
// the source.
func (s *Service) Copy(ctx context.Context, owners []string, id string) (*types.V1Task, error) {
	src, err := s.Get(ctx, owners, id)
	if err != nil {
		return nil, err
	}
	clone := types.V1Task{
		Description:  src.Description,
		MaxSteps:     src.MaxSteps,
		Device:       cloneDevice(src.Device),
		DeviceType:   cloneDeviceType(src.DeviceType),
		ExpectSchema: cloneMap(src.ExpectSchema),
		Parameters:   cloneMap(src.Parameters),
		AssignedTo:   src.AssignedTo,
		AssignedType: src.AssignedType,
		OwnerID:      src.OwnerID,
		ParentID:     src.ParentID,
		Project:      src.Project,
		Skill:        src.Skill,
		Remote:       src.Remote,
		Tags:         append([]string(nil), src.Tags...),
		Labels:       cloneStringMap(src.Labels),
		Status:       string(StatusDefined),
	}
	for _, req := range src.ReviewRequirements {
		clone.ReviewRequirements = append(clone.ReviewRequirements, types.V1ReviewRequirement{
			NumberRequired: req.NumberRequired,
			Users:          append([]string(nil), req.Users...),
			Agents:         append([]string(nil), req.Agents...),
			Groups:         append([]string(nil), req.Groups...),
			Types:          append([]string(nil), req.Types...),
		})
	}
	return s.Create(ctx, src.OwnerID, clone)
}

func cloneDevice(d *types.V1Device) *types.V1Device {
	if d == nil {
		return nil
	}
	out := &types.V1Device{Name: d.Name, Config: cloneMap(d.Config)}
	return out
}

func cloneDeviceType(dt *types.V1DeviceType) *types.V1DeviceType {
	if dt == nil {
		return nil
	}
	out := *dt
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
