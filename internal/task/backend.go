package task

import (
	"context"
	"net/http"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/remote"
	"github.com/agentsea/taskara/internal/types"
)

// Backend abstracts where a task lives. A local task goes through the
// Service and its store; a task carrying a remote endpoint mirrors every
// operation to the peer tracker. The variant is fixed at construction.
type Backend interface {
	Save(ctx context.Context, t *types.V1Task) error
	Refresh(ctx context.Context, t *types.V1Task) error
	Delete(ctx context.Context, taskID string) error
	RecordAction(ctx context.Context, taskID string, ev types.V1ActionEvent) error
	PostMessage(ctx context.Context, taskID string, msg types.V1PostMessage) error
}

// BackendFor picks the backend variant for a task.
func BackendFor(svc *Service, owners []string, t *types.V1Task) Backend {
	if t.Remote != "" {
		return NewRemoteBackend(remote.NewClient(t.Remote, t.AuthToken))
	}
	return &LocalBackend{svc: svc, owners: owners}
}

// LocalBackend applies operations through the local service.
type LocalBackend struct {
	svc    *Service
	owners []string
}

// Save upserts the task locally, creating it when absent.
func (b *LocalBackend) Save(ctx context.Context, t *types.V1Task) error {
	_, err := b.svc.Get(ctx, b.owners, t.ID)
	if errs.IsNotFound(err) {
		created, cerr := b.svc.Create(ctx, t.OwnerID, *t)
		if cerr != nil {
			return cerr
		}
		*t = *created
		return nil
	}
	if err != nil {
		return err
	}
	updated, err := b.svc.Update(ctx, b.owners, t.ID, patchFromV1(t))
	if err != nil {
		return err
	}
	*t = *updated
	return nil
}

// Refresh reloads the task from the local store.
func (b *LocalBackend) Refresh(ctx context.Context, t *types.V1Task) error {
	fresh, err := b.svc.Get(ctx, b.owners, t.ID)
	if err != nil {
		return err
	}
	*t = *fresh
	return nil
}

// Delete removes the task locally.
func (b *LocalBackend) Delete(ctx context.Context, taskID string) error {
	return b.svc.Delete(ctx, b.owners, taskID)
}

// RecordAction appends to the local episode.
func (b *LocalBackend) RecordAction(ctx context.Context, taskID string, ev types.V1ActionEvent) error {
	_, err := b.svc.RecordActionEvent(ctx, b.owners, taskID, ev)
	return err
}

// PostMessage posts to a local task thread.
func (b *LocalBackend) PostMessage(ctx context.Context, taskID string, msg types.V1PostMessage) error {
	return b.svc.PostMessage(ctx, b.owners, taskID, msg)
}

// RemoteBackend mirrors operations to a peer tracker over HTTP.
type RemoteBackend struct {
	client *remote.Client
	logger logging.Logger
}

// NewRemoteBackend wraps a remote client.
func NewRemoteBackend(client *remote.Client) *RemoteBackend {
	return &RemoteBackend{client: client, logger: logging.NewComponentLogger("RemoteTask")}
}

// Save probes the peer for the task and updates or creates accordingly.
// A 404 on the probe selects create; the remote's version is advisory,
// divergence is logged and tolerated.
func (b *RemoteBackend) Save(ctx context.Context, t *types.V1Task) error {
	var existing types.V1Task
	err := b.client.Do(ctx, http.MethodGet, "/v1/tasks/"+t.ID, nil, &existing)
	switch {
	case err == nil:
		if existing.Version != "" && t.Version != "" && existing.Version != t.Version {
			b.logger.Debug("task %s version diverged from remote (%s != %s)",
				t.ID, t.Version, existing.Version)
		}
		return b.client.Do(ctx, http.MethodPut, "/v1/tasks/"+t.ID, t, t)
	case errs.IsRemoteNotFound(err):
		return b.client.Do(ctx, http.MethodPost, "/v1/tasks", t, t)
	default:
		return err
	}
}

// Refresh issues a GET and overwrites the local fields.
func (b *RemoteBackend) Refresh(ctx context.Context, t *types.V1Task) error {
	remoteAddr, token := t.Remote, t.AuthToken
	var fresh types.V1Task
	if err := b.client.Do(ctx, http.MethodGet, "/v1/tasks/"+t.ID, nil, &fresh); err != nil {
		return err
	}
	fresh.Remote = remoteAddr
	fresh.AuthToken = token
	*t = fresh
	return nil
}

// Delete removes the task on the peer.
func (b *RemoteBackend) Delete(ctx context.Context, taskID string) error {
	return b.client.Do(ctx, http.MethodDelete, "/v1/tasks/"+taskID, nil, nil)
}

// RecordAction forwards the action to the peer.
func (b *RemoteBackend) RecordAction(ctx context.Context, taskID string, ev types.V1ActionEvent) error {
	return b.client.Do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/actions", ev, nil)
}

// PostMessage forwards the message to the peer.
func (b *RemoteBackend) PostMessage(ctx context.Context, taskID string, msg types.V1PostMessage) error {
	return b.client.Do(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/msg", msg, nil)
}

// patchFromV1 projects the full wire shape onto an explicit patch.
func patchFromV1(t *types.V1Task) types.V1TaskUpdate {
	return types.V1TaskUpdate{
		Description:  &t.Description,
		Status:       &t.Status,
		MaxSteps:     &t.MaxSteps,
		Error:        &t.Error,
		Output:       &t.Output,
		AssignedTo:   &t.AssignedTo,
		AssignedType: &t.AssignedType,
		Started:      &t.Started,
		Completed:    &t.Completed,
		Project:      &t.Project,
		Skill:        &t.Skill,
		SetLabels:    t.Labels,
	}
}
