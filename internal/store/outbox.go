package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

const outboxColumns = `id, kind, subject, payload, status, attempts, next_attempt_at, last_error, created_at`

// EnqueueOutbox inserts a queued message due immediately.
func (q *Queries) EnqueueOutbox(ctx context.Context, kind model.OutboxKind, subject string, payload []byte, now time.Time) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	now = ts(now)
	_, err := q.exec(ctx,
		`INSERT INTO outbox_messages (id, kind, subject, payload, status, attempts, next_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, string(kind), subject, string(payload), now, now, now,
	)
	if err != nil {
		return "", wrapWrite("enqueue outbox message", err)
	}
	return id, nil
}

// ClaimDueOutbox marks up to limit due queued messages as sending and
// returns them, oldest first.
func (s *Store) ClaimDueOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxMessage, error) {
	var msgs []model.OutboxMessage
	err := s.InTx(ctx, func(q *Queries) error {
		query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE status = 'queued' AND next_attempt_at <= ?
			ORDER BY next_attempt_at, id LIMIT ?`
		if q.d.postgres {
			query += ` FOR UPDATE SKIP LOCKED`
		}
		rows, err := q.query(ctx, query, ts(now), limit)
		if err != nil {
			return fmt.Errorf("claim due outbox messages: %w", err)
		}
		for rows.Next() {
			m, err := scanOutbox(rows)
			if err != nil {
				rows.Close()
				return err
			}
			msgs = append(msgs, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("claim due outbox messages: %w", err)
		}
		rows.Close()

		for i := range msgs {
			_, err := q.exec(ctx,
				`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
				ts(now), ts(now), msgs[i].ID)
			if err != nil {
				return fmt.Errorf("mark outbox sending: %w", err)
			}
			msgs[i].Status = model.OutboxSending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkOutboxSent marks a message delivered.
func (s *Store) MarkOutboxSent(ctx context.Context, id string, now time.Time) error {
	_, err := s.Queries().exec(ctx,
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`, ts(now), id)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// FailOutbox records a failed attempt and reschedules the message.
func (s *Store) FailOutbox(ctx context.Context, id, errMsg string, nextAttemptAt, now time.Time) error {
	_, err := s.Queries().exec(ctx,
		`UPDATE outbox_messages SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		 WHERE id = ?`,
		errMsg, ts(nextAttemptAt), ts(now), id)
	if err != nil {
		return fmt.Errorf("fail outbox message: %w", err)
	}
	return nil
}

// RequeueStaleOutbox returns messages stuck in sending since before
// staleBefore to the queue.
func (s *Store) RequeueStaleOutbox(ctx context.Context, staleBefore, now time.Time) (int, error) {
	res, err := s.Queries().exec(ctx,
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		ts(now), ts(staleBefore))
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListOutbox returns messages in a status, oldest first. Used by tests and
// the admin CLI.
func (q *Queries) ListOutbox(ctx context.Context, status model.OutboxStatus) ([]model.OutboxMessage, error) {
	rows, err := q.query(ctx,
		`SELECT `+outboxColumns+` FROM outbox_messages WHERE status = ? ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []model.OutboxMessage
	for rows.Next() {
		m, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return out, nil
}

func scanOutbox(sc scanner) (model.OutboxMessage, error) {
	var (
		m             model.OutboxMessage
		kind, status  string
		payload       string
		lastError     sql.NullString
		next, created sql.NullTime
	)
	err := sc.Scan(&m.ID, &kind, &m.Subject, &payload, &status, &m.Attempts, &next, &lastError, &created)
	if err != nil {
		return m, fmt.Errorf("scan outbox message: %w", err)
	}
	m.Kind = model.OutboxKind(kind)
	m.Status = model.OutboxStatus(status)
	m.Payload = []byte(payload)
	m.LastError = lastError.String
	m.NextAttemptAt = next.Time.UTC()
	m.CreatedAt = created.Time.UTC()
	return m, nil
}
