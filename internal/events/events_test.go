package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/types"
)

func TestRedisPublisherAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewWithClient(client)
	defer p.Close()

	event := ActionRecorded{
		TaskID: "task-1",
		Action: types.V1ActionEvent{
			ID:         "act-2",
			Action:     types.V1Action{Name: "click"},
			EventOrder: 1,
		},
		PrevAction: &types.V1ActionEvent{
			ID:         "act-1",
			Action:     types.V1Action{Name: "open"},
			EventOrder: 0,
		},
		EventNumber: 1,
		Task:        types.V1Task{ID: "task-1", Description: "Search for french ducks"},
	}
	p.PublishActionRecorded(context.Background(), event)

	entries, err := client.XRange(context.Background(), StreamActionRecorded, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, ok := entries[0].Values["data"].(string)
	require.True(t, ok)

	var got ActionRecorded
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	require.Equal(t, "task-1", got.TaskID)
	require.Equal(t, int64(1), got.EventNumber)
	require.Equal(t, "click", got.Action.Action.Name)
	require.NotNil(t, got.PrevAction)
	require.Equal(t, "open", got.PrevAction.Action.Name)
	require.Equal(t, "Search for french ducks", got.Task.Description)
}

func TestRedisPublisherSwallowsFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewWithClient(client)
	mr.Close()

	// Publishing after the backend is gone must not panic or error out.
	p.PublishActionRecorded(context.Background(), ActionRecorded{TaskID: "task-1"})
}

func TestNewRedisPublisherEmptyURL(t *testing.T) {
	p, err := NewRedisPublisher("")
	require.NoError(t, err)
	require.IsType(t, NopPublisher{}, p)
	require.NoError(t, p.Close())
}

func TestNewRedisPublisherBadURL(t *testing.T) {
	_, err := NewRedisPublisher("not-a-url")
	require.Error(t, err)
}
