// Package store is the relational persistence layer for the tracker. It is
// backed by Postgres through pgx and owns the full schema: tasks with
// normalised tag/label join tables, episodes and action events, reviews and
// the materialised pending_reviewers projection, benchmarks, evals, flags
// and the tracker registry.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/logging"
)

// Querier is the subset of pgx satisfied by both a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps a pgx pool. Inside WithTx every method runs on the transaction.
type Store struct {
	pool   *pgxpool.Pool
	q      Querier
	inTx   bool
	logger logging.Logger
}

// New constructs a store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		q:      pool,
		logger: logging.NewComponentLogger("Store"),
	}
}

// Connect opens a pool against the database URL and verifies connectivity.
func Connect(ctx context.Context, dbURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Transient(err)
	}
	return New(pool), nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithTx runs fn inside a transaction, committing on success. Nested calls
// reuse the enclosing transaction so a mutation and its pending-reviewer
// recompute share one unit of work.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Transient(err)
	}
	scoped := &Store{pool: s.pool, q: tx, inTx: true, logger: s.logger}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Transient(err)
	}
	return nil
}

// LockTask takes a transaction-scoped advisory lock on the task id so
// episode appends and review recomputes serialise per task.
func (s *Store) LockTask(ctx context.Context, taskID string) error {
	if !s.inTx {
		return errs.Precondition("task lock requires a transaction")
	}
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, taskID)
	if err != nil {
		return errs.Transient(err)
	}
	return nil
}

// translate maps low-level pg errors onto tracker error kinds.
func translate(err error, notFound string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NotFound(notFound, args...)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errs.Wrap(errs.KindConflict, err, "already exists")
	}
	return errs.Transient(err)
}

// EnsureSchema creates the tracker tables and indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.q.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    created_by TEXT,
    description TEXT,
    max_steps INTEGER NOT NULL DEFAULT 30,
    device TEXT,
    device_type TEXT,
    expect_schema JSONB,
    project TEXT,
    skill TEXT,
    status TEXT NOT NULL,
    created DOUBLE PRECISION NOT NULL,
    started DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed DOUBLE PRECISION NOT NULL DEFAULT 0,
    assigned_to TEXT,
    assigned_type TEXT,
    error TEXT,
    output TEXT,
    parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
    version TEXT,
    remote TEXT,
    parent_id TEXT,
    threads JSONB NOT NULL DEFAULT '[]'::jsonb,
    prompts JSONB NOT NULL DEFAULT '[]'::jsonb,
    episode_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks (owner_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_skill ON tasks (owner_id, skill);
CREATE INDEX IF NOT EXISTS idx_tasks_skill_assigned ON tasks (skill, assigned_type, completed);

CREATE TABLE IF NOT EXISTS tags (
    id BIGSERIAL PRIMARY KEY,
    tag TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags (tag);

CREATE TABLE IF NOT EXISTS labels (
    id BIGSERIAL PRIMARY KEY,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    UNIQUE (key, value)
);
CREATE INDEX IF NOT EXISTS idx_labels_key_value ON labels (key, value);

CREATE TABLE IF NOT EXISTS task_tag_association (
    task_id TEXT NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
    tag_id BIGINT NOT NULL REFERENCES tags (id),
    PRIMARY KEY (task_id, tag_id)
);

CREATE TABLE IF NOT EXISTS task_label_association (
    task_id TEXT NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
    label_id BIGINT NOT NULL REFERENCES labels (id),
    PRIMARY KEY (task_id, label_id)
);

CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    reviewer TEXT NOT NULL,
    reviewer_type TEXT NOT NULL DEFAULT 'human',
    approved BOOLEAN NOT NULL,
    reason TEXT,
    correction TEXT,
    resource_type TEXT NOT NULL,
    resource_id TEXT NOT NULL,
    created DOUBLE PRECISION NOT NULL,
    updated DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_reviews_resource ON reviews (resource_type, resource_id);

CREATE TABLE IF NOT EXISTS review_requirements (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    number_required INTEGER NOT NULL,
    users JSONB NOT NULL DEFAULT '[]'::jsonb,
    agents JSONB NOT NULL DEFAULT '[]'::jsonb,
    groups JSONB NOT NULL DEFAULT '[]'::jsonb,
    types JSONB NOT NULL DEFAULT '[]'::jsonb,
    created DOUBLE PRECISION NOT NULL,
    updated DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_review_requirements_task ON review_requirements (task_id);

CREATE TABLE IF NOT EXISTS pending_reviewers (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    user_id TEXT,
    agent_id TEXT,
    requirement_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_pending_reviewers_task ON pending_reviewers (task_id);
CREATE INDEX IF NOT EXISTS idx_pending_reviewers_user ON pending_reviewers (user_id);
CREATE INDEX IF NOT EXISTS idx_pending_reviewers_agent ON pending_reviewers (agent_id);

CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    owner_id TEXT,
    created DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS action_events (
    id TEXT PRIMARY KEY,
    episode_id TEXT NOT NULL REFERENCES episodes (id) ON DELETE CASCADE,
    event_order BIGINT NOT NULL,
    state JSONB,
    action JSONB NOT NULL,
    result JSONB,
    end_state JSONB,
    tool JSONB,
    namespace TEXT NOT NULL DEFAULT 'default',
    prompt_id TEXT,
    metadata JSONB,
    owner_id TEXT,
    model TEXT,
    agent_id TEXT,
    hidden BOOLEAN NOT NULL DEFAULT FALSE,
    created DOUBLE PRECISION NOT NULL,
    UNIQUE (episode_id, event_order)
);
CREATE INDEX IF NOT EXISTS idx_action_events_episode ON action_events (episode_id);

CREATE TABLE IF NOT EXISTS annotations (
    id TEXT PRIMARY KEY,
    action_id TEXT NOT NULL REFERENCES action_events (id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    value JSONB,
    annotator TEXT,
    annotator_type TEXT,
    created DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_action ON annotations (action_id);

CREATE TABLE IF NOT EXISTS threads (
    id TEXT PRIMARY KEY,
    owner_id TEXT,
    name TEXT,
    public BOOLEAN NOT NULL DEFAULT FALSE,
    metadata JSONB,
    created DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    thread_id TEXT NOT NULL REFERENCES threads (id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    images JSONB,
    private BOOLEAN NOT NULL DEFAULT FALSE,
    metadata JSONB,
    created DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages (thread_id);

CREATE TABLE IF NOT EXISTS prompts (
    id TEXT PRIMARY KEY,
    namespace TEXT NOT NULL DEFAULT 'default',
    thread JSONB NOT NULL,
    response JSONB NOT NULL,
    response_schema JSONB,
    metadata JSONB,
    approved BOOLEAN NOT NULL DEFAULT FALSE,
    flagged BOOLEAN NOT NULL DEFAULT FALSE,
    owner_id TEXT,
    agent_id TEXT,
    model TEXT,
    created DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS task_templates (
    id TEXT PRIMARY KEY,
    owner_id TEXT,
    description TEXT,
    max_steps INTEGER NOT NULL DEFAULT 30,
    device JSONB,
    device_type JSONB,
    expect_schema JSONB,
    parameters JSONB,
    tags JSONB NOT NULL DEFAULT '[]'::jsonb,
    labels JSONB NOT NULL DEFAULT '{}'::jsonb,
    created DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS benchmarks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    owner_id TEXT,
    description TEXT,
    public BOOLEAN NOT NULL DEFAULT FALSE,
    tags JSONB NOT NULL DEFAULT '[]'::jsonb,
    labels JSONB NOT NULL DEFAULT '{}'::jsonb,
    created DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS benchmark_task_association (
    benchmark_id TEXT NOT NULL REFERENCES benchmarks (id) ON DELETE CASCADE,
    task_template_id TEXT NOT NULL REFERENCES task_templates (id),
    PRIMARY KEY (benchmark_id, task_template_id)
);

CREATE TABLE IF NOT EXISTS evals (
    id TEXT PRIMARY KEY,
    benchmark_id TEXT REFERENCES benchmarks (id),
    owner_id TEXT,
    assigned_to TEXT,
    assigned_type TEXT,
    created DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS eval_task_association (
    eval_id TEXT NOT NULL REFERENCES evals (id) ON DELETE CASCADE,
    task_id TEXT NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
    PRIMARY KEY (eval_id, task_id)
);

CREATE TABLE IF NOT EXISTS flags (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    flag JSONB NOT NULL,
    result JSONB,
    created DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flags_type ON flags (type);

CREATE TABLE IF NOT EXISTS trackers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    endpoint TEXT NOT NULL,
    created DOUBLE PRECISION NOT NULL
);
`
