// Package events publishes action-recorded notifications onto a redis
// stream. Publishing is best effort: failures are logged and never
// surfaced to the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/types"
)

// StreamActionRecorded is the stream every recorded action is appended to.
const StreamActionRecorded = "events:action_recorded"

// ActionRecorded is the envelope published for each recorded action.
type ActionRecorded struct {
	TaskID      string               `json:"task_id"`
	PrevAction  *types.V1ActionEvent `json:"prev_action,omitempty"`
	Action      types.V1ActionEvent  `json:"action"`
	EventNumber int64                `json:"event_number"`
	Task        types.V1Task         `json:"task"`
}

// Publisher emits tracker events.
type Publisher interface {
	PublishActionRecorded(ctx context.Context, event ActionRecorded)
	Close() error
}

// NopPublisher drops every event. Used when no redis URL is configured.
type NopPublisher struct{}

func (NopPublisher) PublishActionRecorded(context.Context, ActionRecorded) {}
func (NopPublisher) Close() error                                          { return nil }

// RedisPublisher appends events to a redis stream.
type RedisPublisher struct {
	client *redis.Client
	logger logging.Logger
}

// NewRedisPublisher connects to the redis URL. An empty URL yields a nop
// publisher so callers never branch on configuration.
func NewRedisPublisher(redisURL string) (Publisher, error) {
	if redisURL == "" {
		return NopPublisher{}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisPublisher{
		client: redis.NewClient(opts),
		logger: logging.NewComponentLogger("Events"),
	}, nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logging.NewComponentLogger("Events")}
}

// PublishActionRecorded appends the envelope to the action stream.
func (p *RedisPublisher) PublishActionRecorded(ctx context.Context, event ActionRecorded) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("encode action event for task %s: %v", event.TaskID, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamActionRecorded,
		Values: map[string]any{"data": data},
	}).Err()
	if err != nil {
		p.logger.Warn("publish action event for task %s: %v", event.TaskID, err)
	}
}

// Close releases the redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
