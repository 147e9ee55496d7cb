package episode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

func TestEventRecordRoundTrip(t *testing.T) {
	ev := types.V1ActionEvent{
		ID: "act-1",
		State: types.V1EnvState{
			Images: []string{"https://storage.agentsea.ai/before.png"},
		},
		Action: types.V1Action{
			Name:       "click",
			Parameters: map[string]any{"x": float64(120), "y": float64(48)},
		},
		Result: map[string]any{"clicked": true},
		EndState: &types.V1EnvState{
			Images: []string{"https://storage.agentsea.ai/after.png"},
		},
		Tool:       types.V1ToolRef{Module: "desktop", Type: "mouse"},
		Namespace:  "default",
		Metadata:   map[string]any{"latency_ms": float64(113)},
		OwnerID:    "tom@myspace.com",
		Model:      "nav-3",
		AgentID:    "agent1",
		EventOrder: 4,
		Created:    1700000000,
	}

	rec, err := eventToRecord("ep-1", ev)
	require.NoError(t, err)
	require.Equal(t, "ep-1", rec.EpisodeID)
	require.Equal(t, int64(4), rec.EventOrder)

	got, err := EventToV1(rec)
	require.NoError(t, err)
	require.Equal(t, &ev, got)
}

func TestEventToV1MinimalRecord(t *testing.T) {
	rec := &store.ActionEventRecord{
		ID:        "act-2",
		EpisodeID: "ep-1",
		Action:    []byte(`{"name": "open"}`),
		Namespace: "default",
		Created:   1700000000,
	}
	got, err := EventToV1(rec)
	require.NoError(t, err)
	require.Equal(t, "open", got.Action.Name)
	require.Nil(t, got.EndState)
	require.Nil(t, got.Result)
	require.Nil(t, got.Metadata)
}

func TestReviewToV1(t *testing.T) {
	rec := &store.ReviewRecord{
		ID:           "rev-1",
		Reviewer:     "tom@myspace.com",
		ReviewerType: store.ReviewerTypeHuman,
		Approved:     true,
		Reason:       "looks right",
		ResourceType: store.ResourceTypeAction,
		ResourceID:   "act-1",
		Created:      1700000000,
		Updated:      1700000100,
	}
	v1 := ReviewToV1(rec)
	require.Equal(t, rec.ID, v1.ID)
	require.Equal(t, rec.Reviewer, v1.Reviewer)
	require.True(t, v1.Approved)
	require.Equal(t, rec.ResourceType, v1.ResourceType)
	require.Equal(t, rec.Updated, v1.Updated)
}
