package task

import (
	"context"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/prompt"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/thread"
	"github.com/agentsea/taskara/internal/types"
)

// Threads lists a task's threads with messages.
func (s *Service) Threads(ctx context.Context, owners []string, taskID string) ([]types.V1RoleThread, error) {
	rec, err := s.store.GetTask(ctx, taskID, owners)
	if err != nil {
		return nil, err
	}
	return thread.LoadMany(ctx, s.store, rec.Threads)
}

// CreateThread adds a thread to a task.
func (s *Service) CreateThread(ctx context.Context, owners []string, taskID string, req types.V1AddThread) (*types.V1RoleThread, error) {
	var out *types.V1RoleThread
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, taskID, owners)
		if err != nil {
			return err
		}
		created, err := thread.Create(ctx, tx, rec.OwnerID, req)
		if err != nil {
			return err
		}
		rec.Threads = append(rec.Threads, created.ID)
		out = created
		return tx.SaveTask(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureThread creates the named thread only when no thread with that
// name is attached yet.
func (s *Service) EnsureThread(ctx context.Context, owners []string, taskID, name string) (*types.V1RoleThread, error) {
	threads, err := s.Threads(ctx, owners, taskID)
	if err != nil {
		return nil, err
	}
	for i := range threads {
		if threads[i].Name == name {
			return &threads[i], nil
		}
	}
	return s.CreateThread(ctx, owners, taskID, types.V1AddThread{Name: name})
}

// RemoveThread detaches and deletes a thread.
func (s *Service) RemoveThread(ctx context.Context, owners []string, taskID, threadID string) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, taskID, owners)
		if err != nil {
			return err
		}
		kept := rec.Threads[:0]
		found := false
		for _, id := range rec.Threads {
			if id == threadID {
				found = true
				continue
			}
			kept = append(kept, id)
		}
		if !found {
			return errs.NotFound("thread %s not found on task %s", threadID, taskID)
		}
		rec.Threads = kept
		if err := thread.Delete(ctx, tx, threadID); err != nil {
			return err
		}
		return tx.SaveTask(ctx, rec)
	})
}

// PostMessage appends a message to one of the task's threads, addressed
// by name or id. An empty address means the feed thread.
func (s *Service) PostMessage(ctx context.Context, owners []string, taskID string, msg types.V1PostMessage) error {
	threads, err := s.Threads(ctx, owners, taskID)
	if err != nil {
		return err
	}
	target := msg.Thread
	if target == "" {
		target = FeedThreadName
	}
	for _, t := range threads {
		if t.Name == target || t.ID == target {
			_, err := thread.Post(ctx, s.store, t.ID, types.V1RoleMessage{
				Role:   msg.Role,
				Text:   msg.Msg,
				Images: msg.Images,
			})
			return err
		}
	}
	return errs.DependencyMissing("thread %s not found on task %s", target, taskID)
}

// Prompts lists the task's stored prompts in attachment order.
func (s *Service) Prompts(ctx context.Context, owners []string, taskID string) ([]types.V1Prompt, error) {
	rec, err := s.store.GetTask(ctx, taskID, owners)
	if err != nil {
		return nil, err
	}
	return prompt.LoadMany(ctx, s.store, rec.Prompts)
}

// StorePrompt persists a prompt and appends its id to the task.
func (s *Service) StorePrompt(ctx context.Context, owners []string, taskID string, p types.V1Prompt) (string, error) {
	var id string
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, taskID, owners)
		if err != nil {
			return err
		}
		stored, err := prompt.Save(ctx, tx, rec.OwnerID, p)
		if err != nil {
			return err
		}
		rec.Prompts = append(rec.Prompts, stored.ID)
		id = stored.ID
		return tx.SaveTask(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddPrompt attaches an existing prompt id to the task.
func (s *Service) AddPrompt(ctx context.Context, owners []string, taskID, promptID string) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetTask(ctx, taskID, owners)
		if err != nil {
			return err
		}
		if _, err := tx.GetPrompt(ctx, promptID); err != nil {
			return errs.DependencyMissing("prompt %s not found", promptID)
		}
		for _, id := range rec.Prompts {
			if id == promptID {
				return nil
			}
		}
		rec.Prompts = append(rec.Prompts, promptID)
		return tx.SaveTask(ctx, rec)
	})
}

// ApprovePrompt approves one prompt, or every prompt on the task when
// promptID is the literal "all".
func (s *Service) ApprovePrompt(ctx context.Context, owners []string, taskID, promptID string) error {
	rec, err := s.store.GetTask(ctx, taskID, owners)
	if err != nil {
		return err
	}
	if promptID == "all" {
		for _, id := range rec.Prompts {
			if err := prompt.Approve(ctx, s.store, id); err != nil {
				return err
			}
		}
		return nil
	}
	if !containsString(rec.Prompts, promptID) {
		return errs.NotFound("prompt %s not found on task %s", promptID, taskID)
	}
	return prompt.Approve(ctx, s.store, promptID)
}

// FailPrompt flags one of the task's prompts as a bad exchange.
func (s *Service) FailPrompt(ctx context.Context, owners []string, taskID, promptID string) error {
	rec, err := s.store.GetTask(ctx, taskID, owners)
	if err != nil {
		return err
	}
	if !containsString(rec.Prompts, promptID) {
		return errs.NotFound("prompt %s not found on task %s", promptID, taskID)
	}
	return prompt.Fail(ctx, s.store, promptID)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
