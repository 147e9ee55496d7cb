// Package thread manages the role threads attached to tasks.
package thread

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Create inserts a thread. An explicit id is honoured so remote mirrors
// can keep ids aligned.
func Create(ctx context.Context, s *store.Store, ownerID string, req types.V1AddThread) (*types.V1RoleThread, error) {
	rec := &store.ThreadRecord{
		ID:       req.ID,
		OwnerID:  ownerID,
		Name:     req.Name,
		Public:   req.Public,
		Metadata: metadataJSON(req.Metadata),
		Created:  now(),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.SaveThread(ctx, rec); err != nil {
		return nil, err
	}
	v1 := toV1(rec, nil)
	return &v1, nil
}

// Get loads a thread with its messages.
func Get(ctx context.Context, s *store.Store, id string) (*types.V1RoleThread, error) {
	rec, err := s.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.MessagesForThreads(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	v1 := toV1(rec, msgs[id])
	return &v1, nil
}

// Post appends a message to a thread.
func Post(ctx context.Context, s *store.Store, threadID string, msg types.V1RoleMessage) (*types.V1RoleMessage, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	rec := &store.MessageRecord{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		Role:     msg.Role,
		Text:     msg.Text,
		Images:   metadataJSON(msg.Images),
		Private:  msg.Private,
		Metadata: metadataJSON(msg.Metadata),
		Created:  now(),
	}
	if err := s.InsertMessage(ctx, rec); err != nil {
		return nil, err
	}
	out := msg
	out.ID = rec.ID
	out.ThreadID = threadID
	out.Created = rec.Created
	return &out, nil
}

// Delete removes a thread and its messages.
func Delete(ctx context.Context, s *store.Store, id string) error {
	return s.DeleteThread(ctx, id)
}

// LoadMany resolves thread ids to wire threads with messages, preserving
// order and skipping ids that no longer resolve.
func LoadMany(ctx context.Context, s *store.Store, ids []string) ([]types.V1RoleThread, error) {
	recs, err := s.ThreadsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	threadIDs := make([]string, 0, len(recs))
	for _, rec := range recs {
		threadIDs = append(threadIDs, rec.ID)
	}
	msgs, err := s.MessagesForThreads(ctx, threadIDs)
	if err != nil {
		return nil, err
	}
	out := make([]types.V1RoleThread, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toV1(rec, msgs[rec.ID]))
	}
	return out, nil
}

func metadataJSON(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func toV1(rec *store.ThreadRecord, msgs []*store.MessageRecord) types.V1RoleThread {
	v1 := types.V1RoleThread{
		ID:      rec.ID,
		Name:    rec.Name,
		Public:  rec.Public,
		OwnerID: rec.OwnerID,
		Created: rec.Created,
	}
	if len(rec.Metadata) > 0 {
		_ = json.Unmarshal(rec.Metadata, &v1.Metadata)
	}
	for _, m := range msgs {
		mv := types.V1RoleMessage{
			ID:       m.ID,
			ThreadID: m.ThreadID,
			Role:     m.Role,
			Text:     m.Text,
			Private:  m.Private,
			Created:  m.Created,
		}
		if len(m.Images) > 0 {
			_ = json.Unmarshal(m.Images, &mv.Images)
		}
		if len(m.Metadata) > 0 {
			_ = json.Unmarshal(m.Metadata, &mv.Metadata)
		}
		v1.Messages = append(v1.Messages, mv)
	}
	return v1
}
