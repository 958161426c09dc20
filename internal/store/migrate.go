package store

import (
	"context"
	"fmt"
	"strings"
)

// schema is shared by both dialects; {{time}} expands to the dialect's
// timestamp type.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS flow_definitions (
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		category TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		start_node_id TEXT NOT NULL,
		graph TEXT NOT NULL,
		created_at {{time}} NOT NULL,
		PRIMARY KEY (id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flow_definitions_category ON flow_definitions(category, id, version)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_flow_definitions_active_category ON flow_definitions(category) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		assigned_admin_id TEXT,
		needs_attention BOOLEAN NOT NULL DEFAULT FALSE,
		last_activity_at {{time}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS thread_context (
		thread_id TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at {{time}} NOT NULL,
		PRIMARY KEY (thread_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS flow_sessions (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		flow_id TEXT NOT NULL,
		flow_version INTEGER NOT NULL,
		category TEXT NOT NULL,
		current_node_id TEXT NOT NULL,
		responses TEXT NOT NULL,
		attachments TEXT NOT NULL,
		status TEXT NOT NULL,
		pause_reason TEXT,
		started_at {{time}} NOT NULL,
		updated_at {{time}} NOT NULL,
		completed_at {{time}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flow_sessions_thread ON flow_sessions(thread_id, started_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_flow_sessions_live ON flow_sessions(thread_id, category) WHERE status IN ('active', 'paused')`,

	`CREATE TABLE IF NOT EXISTS escalations (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		escalation_type TEXT NOT NULL,
		triggered_by_node TEXT NOT NULL,
		context_data TEXT NOT NULL,
		status TEXT NOT NULL,
		assigned_admin_id TEXT,
		queue TEXT,
		notes TEXT,
		created_at {{time}} NOT NULL,
		acknowledged_at {{time}},
		resolved_at {{time}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_escalations_thread_status ON escalations(thread_id, status, created_at)`,

	`CREATE TABLE IF NOT EXISTS flow_continuations (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		from_session_id TEXT NOT NULL,
		to_session_id TEXT NOT NULL,
		continued_at {{time}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flow_continuations_thread ON flow_continuations(thread_id, continued_at)`,

	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at {{time}} NOT NULL,
		locked_at {{time}},
		last_error TEXT,
		created_at {{time}} NOT NULL,
		updated_at {{time}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_messages_due ON outbox_messages(status, next_attempt_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range schema {
		stmt = strings.ReplaceAll(stmt, "{{time}}", s.d.timeType)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
