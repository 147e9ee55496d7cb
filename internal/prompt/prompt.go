// Package prompt stores model exchanges captured during task execution.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Save persists a prompt, assigning an id when absent, and returns it.
func Save(ctx context.Context, s *store.Store, ownerID string, p types.V1Prompt) (*types.V1Prompt, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Namespace == "" {
		p.Namespace = "default"
	}
	if p.OwnerID == "" {
		p.OwnerID = ownerID
	}
	if p.Created == 0 {
		p.Created = now()
	}
	rec, err := toRecord(p)
	if err != nil {
		return nil, err
	}
	if err := s.SavePrompt(ctx, rec); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get loads one prompt.
func Get(ctx context.Context, s *store.Store, id string) (*types.V1Prompt, error) {
	rec, err := s.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// LoadMany resolves prompt ids preserving order, skipping missing ids.
func LoadMany(ctx context.Context, s *store.Store, ids []string) ([]types.V1Prompt, error) {
	recs, err := s.PromptsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]types.V1Prompt, 0, len(recs))
	for _, rec := range recs {
		p, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// Approve marks a prompt approved.
func Approve(ctx context.Context, s *store.Store, id string) error {
	return s.SetPromptApproved(ctx, id, true)
}

// Fail flags a prompt as a bad exchange.
func Fail(ctx context.Context, s *store.Store, id string) error {
	return s.SetPromptFlagged(ctx, id, true)
}

func toRecord(p types.V1Prompt) (*store.PromptRecord, error) {
	threadData, err := json.Marshal(p.Thread)
	if err != nil {
		return nil, fmt.Errorf("encode prompt thread: %w", err)
	}
	respData, err := json.Marshal(p.Response)
	if err != nil {
		return nil, fmt.Errorf("encode prompt response: %w", err)
	}
	rec := &store.PromptRecord{
		ID:        p.ID,
		Namespace: p.Namespace,
		Thread:    threadData,
		Response:  respData,
		Approved:  p.Approved,
		Flagged:   p.Flagged,
		OwnerID:   p.OwnerID,
		AgentID:   p.AgentID,
		Model:     p.Model,
		Created:   p.Created,
	}
	if p.ResponseSchema != nil {
		if rec.ResponseSchema, err = json.Marshal(p.ResponseSchema); err != nil {
			return nil, fmt.Errorf("encode prompt response schema: %w", err)
		}
	}
	if p.Metadata != nil {
		if rec.Metadata, err = json.Marshal(p.Metadata); err != nil {
			return nil, fmt.Errorf("encode prompt metadata: %w", err)
		}
	}
	return rec, nil
}

func fromRecord(rec *store.PromptRecord) (*types.V1Prompt, error) {
	p := types.V1Prompt{
		ID:        rec.ID,
		Namespace: rec.Namespace,
		Approved:  rec.Approved,
		Flagged:   rec.Flagged,
		OwnerID:   rec.OwnerID,
		AgentID:   rec.AgentID,
		Model:     rec.Model,
		Created:   rec.Created,
	}
	if err := json.Unmarshal(rec.Thread, &p.Thread); err != nil {
		return nil, fmt.Errorf("decode prompt thread: %w", err)
	}
	if err := json.Unmarshal(rec.Response, &p.Response); err != nil {
		return nil, fmt.Errorf("decode prompt response: %w", err)
	}
	if len(rec.ResponseSchema) > 0 {
		if err := json.Unmarshal(rec.ResponseSchema, &p.ResponseSchema); err != nil {
			return nil, fmt.Errorf("decode prompt response schema: %w", err)
		}
	}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode prompt metadata: %w", err)
		}
	}
	return &p, nil
}
