package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

const flowColumns = `id, version, category, name, is_active, start_node_id, graph, created_at`

// NextFlowVersion returns one past the highest registered version of flowID.
func (q *Queries) NextFlowVersion(ctx context.Context, flowID string) (int, error) {
	var maxVersion sql.NullInt64
	err := q.queryRow(ctx, `SELECT MAX(version) FROM flow_definitions WHERE id = ?`, flowID).Scan(&maxVersion)
	if err != nil {
		return 0, fmt.Errorf("next flow version: %w", err)
	}
	return int(maxVersion.Int64) + 1, nil
}

// FlowCategory returns the category any version of flowID was registered under.
func (q *Queries) FlowCategory(ctx context.Context, flowID string) (string, error) {
	var category string
	err := q.queryRow(ctx, `SELECT category FROM flow_definitions WHERE id = ? ORDER BY version DESC LIMIT 1`, flowID).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("flow %s: %w", flowID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("flow category: %w", err)
	}
	return category, nil
}

// InsertFlowDefinition stores one immutable version of a definition.
func (q *Queries) InsertFlowDefinition(ctx context.Context, def *model.FlowDefinition) error {
	graph, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode flow graph: %w", err)
	}
	_, err = q.exec(ctx,
		`INSERT INTO flow_definitions (`+flowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.Version, def.Category, def.Name, def.IsActive, def.StartNodeID, string(graph), ts(def.CreatedAt),
	)
	return wrapWrite("insert flow definition", err)
}

// GetFlowDefinition loads one version of a flow.
func (q *Queries) GetFlowDefinition(ctx context.Context, flowID string, version int) (*model.FlowDefinition, error) {
	row := q.queryRow(ctx, `SELECT `+flowColumns+` FROM flow_definitions WHERE id = ? AND version = ?`, flowID, version)
	def, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flow %s version %d: %w", flowID, version, ErrNotFound)
	}
	return def, err
}

// GetActiveFlow loads the active version for a category.
func (q *Queries) GetActiveFlow(ctx context.Context, category string) (*model.FlowDefinition, error) {
	row := q.queryRow(ctx, `SELECT `+flowColumns+` FROM flow_definitions WHERE category = ? AND is_active`, category)
	def, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active flow for %s: %w", category, ErrNotFound)
	}
	return def, err
}

// GetActiveVersion returns the active version number of flowID.
func (q *Queries) GetActiveVersion(ctx context.Context, flowID string) (int, error) {
	var version int
	err := q.queryRow(ctx, `SELECT version FROM flow_definitions WHERE id = ? AND is_active`, flowID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("active version of flow %s: %w", flowID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("active version: %w", err)
	}
	return version, nil
}

// ListFlowSummaries lists every version, optionally filtered by category.
func (q *Queries) ListFlowSummaries(ctx context.Context, category string) ([]model.FlowSummary, error) {
	query := `SELECT ` + flowColumns + ` FROM flow_definitions`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category, id, version`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var out []model.FlowSummary
	for rows.Next() {
		def, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	return out, nil
}

// ListActiveFlows returns the active version of every category.
func (q *Queries) ListActiveFlows(ctx context.Context) ([]model.FlowSummary, error) {
	rows, err := q.query(ctx, `SELECT `+flowColumns+` FROM flow_definitions WHERE is_active ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list active flows: %w", err)
	}
	defer rows.Close()

	var out []model.FlowSummary
	for rows.Next() {
		def, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active flows: %w", err)
	}
	return out, nil
}

// DeactivateCategory clears the active flag on every version of a category.
func (q *Queries) DeactivateCategory(ctx context.Context, category string) error {
	_, err := q.exec(ctx, `UPDATE flow_definitions SET is_active = FALSE WHERE category = ? AND is_active`, category)
	return wrapWrite("deactivate category", err)
}

// ActivateFlow marks one version active.
func (q *Queries) ActivateFlow(ctx context.Context, flowID string, version int) error {
	res, err := q.exec(ctx, `UPDATE flow_definitions SET is_active = TRUE WHERE id = ? AND version = ?`, flowID, version)
	if err != nil {
		return wrapWrite("activate flow", err)
	}
	return requireOneRow(res, "activate flow")
}

func scanFlow(s scanner) (*model.FlowDefinition, error) {
	var (
		id, category, name, start, graph string
		version                          int
		active                           bool
		created                          sql.NullTime
	)
	if err := s.Scan(&id, &version, &category, &name, &active, &start, &graph, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan flow definition: %w", err)
	}

	var def model.FlowDefinition
	if err := json.Unmarshal([]byte(graph), &def); err != nil {
		return nil, fmt.Errorf("decode flow %s v%d: %w", id, version, err)
	}
	def.ID = id
	def.Version = version
	def.Category = category
	def.Name = name
	def.IsActive = active
	def.StartNodeID = start
	if created.Valid {
		def.CreatedAt = created.Time.UTC()
	}
	return &def, nil
}
