package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

// GetThread loads a thread row.
func (q *Queries) GetThread(ctx context.Context, id string) (*model.Thread, error) {
	var (
		t     model.Thread
		admin sql.NullString
		last  sql.NullTime
	)
	err := q.queryRow(ctx, `SELECT id, assigned_admin_id, needs_attention, last_activity_at FROM threads WHERE id = ?`, id).
		Scan(&t.ID, &admin, &t.NeedsAttention, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	t.AssignedAdminID = admin.String
	t.LastActivityAt = last.Time.UTC()
	return &t, nil
}

// UpsertThread creates or replaces the assignment of a thread. Thread rows
// are owned by the conversation service; the engine only mirrors them.
func (q *Queries) UpsertThread(ctx context.Context, t *model.Thread) error {
	_, err := q.exec(ctx,
		`INSERT INTO threads (id, assigned_admin_id, needs_attention, last_activity_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET assigned_admin_id = excluded.assigned_admin_id, last_activity_at = excluded.last_activity_at`,
		t.ID, nilIfEmpty(t.AssignedAdminID), t.NeedsAttention, ts(t.LastActivityAt),
	)
	return wrapWrite("upsert thread", err)
}

// MarkThreadAttention sets the attention flag and bumps the activity time,
// creating the thread row when the engine has not seen it before.
func (q *Queries) MarkThreadAttention(ctx context.Context, threadID string, at time.Time) error {
	_, err := q.exec(ctx,
		`INSERT INTO threads (id, needs_attention, last_activity_at) VALUES (?, TRUE, ?)
		 ON CONFLICT (id) DO UPDATE SET needs_attention = TRUE, last_activity_at = excluded.last_activity_at`,
		threadID, ts(at),
	)
	return wrapWrite("mark thread attention", err)
}

// ClearThreadAttention clears the attention flag.
func (q *Queries) ClearThreadAttention(ctx context.Context, threadID string, at time.Time) error {
	_, err := q.exec(ctx, `UPDATE threads SET needs_attention = FALSE, last_activity_at = ? WHERE id = ?`, ts(at), threadID)
	return wrapWrite("clear thread attention", err)
}

// SetThreadContext stores one interpolation variable for a thread.
func (q *Queries) SetThreadContext(ctx context.Context, threadID, name, value string, at time.Time) error {
	_, err := q.exec(ctx,
		`INSERT INTO thread_context (thread_id, name, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (thread_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		threadID, name, value, ts(at),
	)
	return wrapWrite("set thread context", err)
}

// ThreadContext returns every interpolation variable stored for a thread.
func (q *Queries) ThreadContext(ctx context.Context, threadID string) (map[string]string, error) {
	rows, err := q.query(ctx, `SELECT name, value FROM thread_context WHERE thread_id = ?`, threadID)
	if err != nil {
		return nil, fmt.Errorf("thread context: %w", err)
	}
	defer rows.Close()

	vars := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan thread context: %w", err)
		}
		vars[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("thread context: %w", err)
	}
	return vars, nil
}

// Lookup reads the interpolation variables of a thread. It lets the store
// serve as the engine's context provider.
func (s *Store) Lookup(ctx context.Context, threadID string) (map[string]string, error) {
	return s.Queries().ThreadContext(ctx, threadID)
}

// InsertContinuation records a flow continuation.
func (q *Queries) InsertContinuation(ctx context.Context, c *model.FlowContinuation) error {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	_, err := q.exec(ctx,
		`INSERT INTO flow_continuations (id, thread_id, from_session_id, to_session_id, continued_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ThreadID, c.FromSessionID, c.ToSessionID, ts(c.ContinuedAt),
	)
	return wrapWrite("insert continuation", err)
}

// ListContinuations returns a thread's continuations, oldest first.
func (q *Queries) ListContinuations(ctx context.Context, threadID string) ([]*model.FlowContinuation, error) {
	rows, err := q.query(ctx,
		`SELECT id, thread_id, from_session_id, to_session_id, continued_at FROM flow_continuations WHERE thread_id = ? ORDER BY continued_at, id`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("list continuations: %w", err)
	}
	defer rows.Close()

	var out []*model.FlowContinuation
	for rows.Next() {
		var (
			c  model.FlowContinuation
			at sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.ThreadID, &c.FromSessionID, &c.ToSessionID, &at); err != nil {
			return nil, fmt.Errorf("scan continuation: %w", err)
		}
		c.ContinuedAt = at.Time.UTC()
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list continuations: %w", err)
	}
	return out, nil
}
