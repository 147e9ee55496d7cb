package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentsea/taskara/internal/episode"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/thread"
	"github.com/agentsea/taskara/internal/types"
	"github.com/agentsea/taskara/internal/vault"
)

// recordFromV1 maps the wire shape onto a task row, encrypting the device
// descriptor.
func recordFromV1(v1 *types.V1Task) (*store.TaskRecord, error) {
	rec := &store.TaskRecord{
		ID:           v1.ID,
		OwnerID:      v1.OwnerID,
		Description:  v1.Description,
		MaxSteps:     v1.MaxSteps,
		Project:      v1.Project,
		Skill:        v1.Skill,
		Status:       v1.Status,
		Created:      v1.Created,
		Started:      v1.Started,
		Completed:    v1.Completed,
		AssignedTo:   v1.AssignedTo,
		AssignedType: v1.AssignedType,
		Error:        v1.Error,
		Output:       v1.Output,
		Version:      v1.Version,
		Remote:       v1.Remote,
		ParentID:     v1.ParentID,
		Threads:      threadIDs(v1.Threads),
		Prompts:      v1.Prompts,
		EpisodeID:    v1.EpisodeID,
	}
	if v1.Device != nil {
		encrypted, err := vault.EncryptJSON(v1.Device)
		if err != nil {
			return nil, fmt.Errorf("encrypt device: %w", err)
		}
		rec.Device = encrypted
	}
	if v1.DeviceType != nil {
		rec.DeviceType = v1.DeviceType.Name
	}
	if v1.ExpectSchema != nil {
		data, err := json.Marshal(v1.ExpectSchema)
		if err != nil {
			return nil, fmt.Errorf("encode expect schema: %w", err)
		}
		rec.ExpectSchema = data
	}
	if v1.Parameters != nil {
		data, err := json.Marshal(v1.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode parameters: %w", err)
		}
		rec.Parameters = data
	}
	return rec, nil
}

// loadV1 assembles the full wire projection for one task row: decrypted
// device, threads with messages, reviews, requirements, tags and labels.
func (s *Service) loadV1(ctx context.Context, st *store.Store, rec *store.TaskRecord) (*types.V1Task, error) {
	v1, err := baseV1(rec)
	if err != nil {
		return nil, err
	}
	v1.Threads, err = thread.LoadMany(ctx, st, rec.Threads)
	if err != nil {
		return nil, err
	}
	reviews, err := st.ReviewsForResource(ctx, store.ResourceTypeTask, rec.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		v1.Reviews = append(v1.Reviews, episode.ReviewToV1(r))
	}
	reqs, err := st.RequirementsForTask(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		v1.ReviewRequirements = append(v1.ReviewRequirements, requirementToV1(req))
	}
	tags, err := st.TaskTags(ctx, []string{rec.ID})
	if err != nil {
		return nil, err
	}
	v1.Tags = tags[rec.ID]
	labels, err := st.TaskLabels(ctx, []string{rec.ID})
	if err != nil {
		return nil, err
	}
	v1.Labels = labels[rec.ID]
	return v1, nil
}

// baseV1 maps a task row onto the wire shape without loading relations.
func baseV1(rec *store.TaskRecord) (*types.V1Task, error) {
	v1 := &types.V1Task{
		ID:           rec.ID,
		Description:  rec.Description,
		MaxSteps:     rec.MaxSteps,
		Status:       rec.Status,
		Created:      rec.Created,
		Started:      rec.Started,
		Completed:    rec.Completed,
		AssignedTo:   rec.AssignedTo,
		AssignedType: rec.AssignedType,
		Error:        rec.Error,
		Output:       rec.Output,
		Version:      rec.Version,
		Remote:       rec.Remote,
		OwnerID:      rec.OwnerID,
		ParentID:     rec.ParentID,
		Project:      rec.Project,
		Skill:        rec.Skill,
		Prompts:      rec.Prompts,
		EpisodeID:    rec.EpisodeID,
	}
	if rec.Device != "" {
		var device types.V1Device
		if err := vault.DecryptJSON(rec.Device, &device); err != nil {
			return nil, fmt.Errorf("decrypt device for task %s: %w", rec.ID, err)
		}
		v1.Device = &device
	}
	if rec.DeviceType != "" {
		v1.DeviceType = &types.V1DeviceType{Name: rec.DeviceType}
	}
	if len(rec.ExpectSchema) > 0 {
		if err := json.Unmarshal(rec.ExpectSchema, &v1.ExpectSchema); err != nil {
			return nil, fmt.Errorf("decode expect schema for task %s: %w", rec.ID, err)
		}
	}
	if len(rec.Parameters) > 0 {
		if err := json.Unmarshal(rec.Parameters, &v1.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters for task %s: %w", rec.ID, err)
		}
	}
	return v1, nil
}

func threadIDs(threads []types.V1RoleThread) []string {
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.ID)
	}
	return ids
}

func requirementToV1(rec *store.RequirementRecord) types.V1ReviewRequirement {
	return types.V1ReviewRequirement{
		ID:             rec.ID,
		TaskID:         rec.TaskID,
		NumberRequired: rec.NumberRequired,
		Users:          rec.Users,
		Agents:         rec.Agents,
		Groups:         rec.Groups,
		Types:          rec.Types,
		Created:        rec.Created,
		Updated:        rec.Updated,
	}
}
