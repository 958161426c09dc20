package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

const escalationColumns = `id, thread_id, session_id, escalation_type, triggered_by_node, context_data, status, assigned_admin_id, queue, notes, created_at, acknowledged_at, resolved_at`

// InsertEscalation records a new escalation.
func (q *Queries) InsertEscalation(ctx context.Context, e *model.EscalationRecord) error {
	data, err := json.Marshal(e.ContextData)
	if err != nil {
		return fmt.Errorf("encode escalation context: %w", err)
	}
	_, err = q.exec(ctx,
		`INSERT INTO escalations (`+escalationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ThreadID, e.SessionID, e.EscalationType, e.TriggeredByNode, string(data), string(e.Status),
		nilIfEmpty(e.AssignedAdminID), nilIfEmpty(e.Queue), nilIfEmpty(e.Notes),
		ts(e.CreatedAt), nullTime(e.AcknowledgedAt), nullTime(e.ResolvedAt),
	)
	return wrapWrite("insert escalation", err)
}

// LatestOpenEscalation returns the most recent unresolved escalation of a thread.
func (q *Queries) LatestOpenEscalation(ctx context.Context, threadID string) (*model.EscalationRecord, error) {
	row := q.queryRow(ctx, q.forUpdate(
		`SELECT `+escalationColumns+` FROM escalations WHERE thread_id = ? AND status <> 'resolved'
		 ORDER BY created_at DESC, id DESC LIMIT 1`), threadID)
	e, err := scanEscalation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open escalation on thread %s: %w", threadID, ErrNotFound)
	}
	return e, err
}

// UpdateEscalation writes the admin-controlled fields of an escalation.
func (q *Queries) UpdateEscalation(ctx context.Context, e *model.EscalationRecord) error {
	res, err := q.exec(ctx,
		`UPDATE escalations SET status = ?, assigned_admin_id = ?, notes = ?, acknowledged_at = ?, resolved_at = ? WHERE id = ?`,
		string(e.Status), nilIfEmpty(e.AssignedAdminID), nilIfEmpty(e.Notes),
		nullTime(e.AcknowledgedAt), nullTime(e.ResolvedAt), e.ID,
	)
	if err != nil {
		return wrapWrite("update escalation", err)
	}
	return requireOneRow(res, "update escalation")
}

// ListEscalations returns a thread's escalations, newest first.
func (q *Queries) ListEscalations(ctx context.Context, threadID string) ([]*model.EscalationRecord, error) {
	rows, err := q.query(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE thread_id = ? ORDER BY created_at DESC, id DESC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []*model.EscalationRecord
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	return out, nil
}

// CountOpenEscalations counts a thread's unresolved escalations.
func (q *Queries) CountOpenEscalations(ctx context.Context, threadID string) (int, error) {
	var n int
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM escalations WHERE thread_id = ? AND status <> 'resolved'`, threadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open escalations: %w", err)
	}
	return n, nil
}

func scanEscalation(sc scanner) (*model.EscalationRecord, error) {
	var (
		e                      model.EscalationRecord
		data, status           string
		admin, queue, notes    sql.NullString
		created, acked, closed sql.NullTime
	)
	err := sc.Scan(&e.ID, &e.ThreadID, &e.SessionID, &e.EscalationType, &e.TriggeredByNode, &data, &status,
		&admin, &queue, &notes, &created, &acked, &closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan escalation: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &e.ContextData); err != nil {
		return nil, fmt.Errorf("decode context of escalation %s: %w", e.ID, err)
	}
	e.Status = model.EscalationStatus(status)
	e.AssignedAdminID = admin.String
	e.Queue = queue.String
	e.Notes = notes.String
	e.CreatedAt = created.Time.UTC()
	e.AcknowledgedAt = timePtr(acked)
	e.ResolvedAt = timePtr(closed)
	return &e, nil
}
