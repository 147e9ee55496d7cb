// Package flag stores typed records awaiting human attention, such as a
// bounding box to verify on a screenshot.
package flag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

// TypeBoundingBox asks a human to verify a bounding box on an image.
const TypeBoundingBox = "bounding_box"

// Create persists a flag, validating typed payloads where the type is
// known. Unknown types pass through with their payload untouched.
func Create(ctx context.Context, s *store.Store, v1 types.V1Flag) (*types.V1Flag, error) {
	if v1.Type == "" {
		return nil, errs.Validation("flag type is required")
	}
	if err := validatePayload(v1); err != nil {
		return nil, err
	}
	if v1.ID == "" {
		v1.ID = uuid.NewString()
	}
	if v1.Created == 0 {
		v1.Created = float64(time.Now().UnixNano()) / 1e9
	}
	rec := &store.FlagRecord{
		ID:      v1.ID,
		Type:    v1.Type,
		Created: v1.Created,
	}
	var err error
	if rec.Flag, err = json.Marshal(v1.Flag); err != nil {
		return nil, fmt.Errorf("encode flag payload: %w", err)
	}
	if v1.Result != nil {
		if rec.Result, err = json.Marshal(v1.Result); err != nil {
			return nil, fmt.Errorf("encode flag result: %w", err)
		}
	}
	if err := s.SaveFlag(ctx, rec); err != nil {
		return nil, err
	}
	return &v1, nil
}

func validatePayload(v1 types.V1Flag) error {
	if v1.Type != TypeBoundingBox {
		return nil
	}
	data, err := json.Marshal(v1.Flag)
	if err != nil {
		return fmt.Errorf("encode flag payload: %w", err)
	}
	var bb types.V1BoundingBoxFlag
	if err := json.Unmarshal(data, &bb); err != nil {
		return errs.Validation("bounding box flag payload is malformed")
	}
	if bb.Img == "" || bb.Target == "" {
		return errs.Validation("bounding box flag needs img and target")
	}
	return nil
}

// Get loads one flag.
func Get(ctx context.Context, s *store.Store, id string) (*types.V1Flag, error) {
	rec, err := s.GetFlag(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns flags, optionally filtered by type, oldest first.
func List(ctx context.Context, s *store.Store, flagType string) ([]types.V1Flag, error) {
	recs, err := s.FindFlags(ctx, flagType)
	if err != nil {
		return nil, err
	}
	out := make([]types.V1Flag, 0, len(recs))
	for _, rec := range recs {
		v1, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *v1)
	}
	return out, nil
}

// SetResult records the human answer on a flag.
func SetResult(ctx context.Context, s *store.Store, id string, result map[string]any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode flag result: %w", err)
	}
	return s.SetFlagResult(ctx, id, data)
}

// Delete removes a flag.
func Delete(ctx context.Context, s *store.Store, id string) error {
	return s.DeleteFlag(ctx, id)
}

func fromRecord(rec *store.FlagRecord) (*types.V1Flag, error) {
	v1 := &types.V1Flag{
		ID:      rec.ID,
		Type:    rec.Type,
		Created: rec.Created,
	}
	if len(rec.Flag) > 0 {
		if err := json.Unmarshal(rec.Flag, &v1.Flag); err != nil {
			return nil, fmt.Errorf("decode flag payload: %w", err)
		}
	}
	if len(rec.Result) > 0 {
		if err := json.Unmarshal(rec.Result, &v1.Result); err != nil {
			return nil, fmt.Errorf("decode flag result: %w", err)
		}
	}
	return v1, nil
}
