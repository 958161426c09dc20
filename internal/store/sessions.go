package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

const sessionColumns = `id, thread_id, flow_id, flow_version, category, current_node_id, responses, attachments, status, pause_reason, started_at, updated_at, completed_at`

// InsertSession creates a session. A live session already holding the
// thread+category slot surfaces as ErrDuplicate.
func (q *Queries) InsertSession(ctx context.Context, s *model.FlowSession) error {
	responses, attachments, err := encodeSessionState(s)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx,
		`INSERT INTO flow_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ThreadID, s.FlowID, s.FlowVersion, s.Category, s.CurrentNodeID,
		responses, attachments, string(s.Status), nilIfEmpty(s.PauseReason),
		ts(s.StartedAt), ts(s.UpdatedAt), nullTime(s.CompletedAt),
	)
	return wrapWrite("insert session", err)
}

// GetSession loads a session. Inside a Postgres transaction the row is locked.
func (q *Queries) GetSession(ctx context.Context, id string) (*model.FlowSession, error) {
	row := q.queryRow(ctx, q.forUpdate(`SELECT `+sessionColumns+` FROM flow_sessions WHERE id = ?`), id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

// UpdateSession writes the mutable session state.
func (q *Queries) UpdateSession(ctx context.Context, s *model.FlowSession) error {
	responses, attachments, err := encodeSessionState(s)
	if err != nil {
		return err
	}
	res, err := q.exec(ctx,
		`UPDATE flow_sessions SET current_node_id = ?, responses = ?, attachments = ?, status = ?, pause_reason = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		s.CurrentNodeID, responses, attachments, string(s.Status), nilIfEmpty(s.PauseReason),
		ts(s.UpdatedAt), nullTime(s.CompletedAt), s.ID,
	)
	if err != nil {
		return wrapWrite("update session", err)
	}
	return requireOneRow(res, "update session")
}

// ListSessionsByThread returns a thread's sessions, oldest first.
func (q *Queries) ListSessionsByThread(ctx context.Context, threadID string) ([]*model.FlowSession, error) {
	rows, err := q.query(ctx, `SELECT `+sessionColumns+` FROM flow_sessions WHERE thread_id = ? ORDER BY started_at, id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.FlowSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// FindLiveSession returns the active or paused session for thread+category.
func (q *Queries) FindLiveSession(ctx context.Context, threadID, category string) (*model.FlowSession, error) {
	row := q.queryRow(ctx,
		`SELECT `+sessionColumns+` FROM flow_sessions WHERE thread_id = ? AND category = ? AND status IN ('active', 'paused')`,
		threadID, category,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("live %s session on thread %s: %w", category, threadID, ErrNotFound)
	}
	return s, err
}

func encodeSessionState(s *model.FlowSession) (string, string, error) {
	responses := s.Responses
	if responses == nil {
		responses = model.Responses{}
	}
	r, err := json.Marshal(responses)
	if err != nil {
		return "", "", fmt.Errorf("encode responses: %w", err)
	}
	attachments := s.Attachments
	if attachments == nil {
		attachments = map[string][]model.File{}
	}
	a, err := json.Marshal(attachments)
	if err != nil {
		return "", "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(r), string(a), nil
}

func scanSession(sc scanner) (*model.FlowSession, error) {
	var (
		s                      model.FlowSession
		status                 string
		responses, attachments string
		pauseReason            sql.NullString
		started, updated       sql.NullTime
		completed              sql.NullTime
	)
	err := sc.Scan(&s.ID, &s.ThreadID, &s.FlowID, &s.FlowVersion, &s.Category, &s.CurrentNodeID,
		&responses, &attachments, &status, &pauseReason, &started, &updated, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if err := json.Unmarshal([]byte(responses), &s.Responses); err != nil {
		return nil, fmt.Errorf("decode responses of session %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(attachments), &s.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments of session %s: %w", s.ID, err)
	}
	s.Status = model.SessionStatus(status)
	s.PauseReason = pauseReason.String
	s.StartedAt = started.Time.UTC()
	s.UpdatedAt = updated.Time.UTC()
	s.CompletedAt = timePtr(completed)
	return &s, nil
}
