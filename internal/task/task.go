// Package task implements the task aggregate: lifecycle operations over
// tasks, their threads, prompts, episodes and reviews.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentsea/taskara/internal/events"
	"github.com/agentsea/taskara/internal/img"
	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/review"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

// Status is the lifecycle state of a task. Transitions are free-form;
// terminal statuses only matter for IsDone.
type Status string

const (
	StatusDefined    Status = "defined"
	StatusCreated    Status = "created"
	StatusInProgress Status = "in progress"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
	StatusError      Status = "error"
	StatusWaiting    Status = "waiting"
	StatusCanceling  Status = "canceling"
	StatusCanceled   Status = "canceled"
	StatusTimedOut   Status = "timed out"
)

var validStatuses = map[Status]bool{
	StatusDefined: true, StatusCreated: true, StatusInProgress: true,
	StatusFinished: true, StatusFailed: true, StatusError: true,
	StatusWaiting: true, StatusCanceling: true, StatusCanceled: true,
	StatusTimedOut: true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return validStatuses[s] }

var finalStatuses = map[Status]bool{
	StatusFailed:    true,
	StatusError:     true,
	StatusCanceled:  true,
	StatusCanceling: true,
	StatusTimedOut:  true,
}

// IsDone reports whether the status is terminal.
func (s Status) IsDone() bool { return finalStatuses[s] }

// FeedThreadName is the default thread created with every task.
const FeedThreadName = "feed"

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Service is the local task engine. All operations are owner-scoped:
// callers pass the owner sets already resolved for the principal.
type Service struct {
	store     *store.Store
	engine    *review.Engine
	publisher events.Publisher
	converter img.Converter
	logger    logging.Logger
}

// Option tunes a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithConverter sets the image conversion collaborator.
func WithConverter(c img.Converter) Option {
	return func(s *Service) { s.converter = c }
}

// NewService builds the task engine over a store.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		engine:    review.NewEngine(),
		publisher: events.NopPublisher{},
		converter: img.Passthrough{},
		logger:    logging.NewComponentLogger("Tasks"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the review engine for callers that review other
// resources.
func (s *Service) Engine() *review.Engine { return s.engine }

// InTx returns a view of the service bound to the transactional store, so
// task operations can join a caller's unit of work.
func (s *Service) InTx(tx *store.Store) *Service {
	c := *s
	c.store = tx
	return &c
}

// Store exposes the underlying store.
func (s *Service) Store() *store.Store { return s.store }

// VersionHash computes the task's content hash: SHA-256 over the canonical
// JSON of the wire projection with version and auth_token cleared, so the
// hash never depends on itself or on credentials.
func VersionHash(v1 types.V1Task) (string, error) {
	v1.Version = ""
	v1.AuthToken = ""
	data, err := json.Marshal(v1)
	if err != nil {
		return "", fmt.Errorf("encode task for hashing: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("decode task for hashing: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("canonicalise task for hashing: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
