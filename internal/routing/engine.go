// Package routing picks the admin queue for escalations on threads that have
// no assigned admin, using an OPA policy.
package routing

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// DefaultQueue is used when the policy yields nothing usable.
const DefaultQueue = "unassigned"

// Input is the document the policy is evaluated against.
type Input struct {
	EscalationType string
	Category       string
	NodeID         string
	ThreadID       string
}

func (in Input) document() map[string]any {
	return map[string]any{
		"escalation_type": in.EscalationType,
		"category":        in.Category,
		"node_id":         in.NodeID,
		"thread_id":       in.ThreadID,
	}
}

// Engine is the OPA routing engine.
type Engine struct {
	query    rego.PreparedEvalQuery
	fallback string
}

// NewEngine compiles policyContent. The policy must define
// data.escalation_routing.queue.
func NewEngine(ctx context.Context, policyContent, fallback string) (*Engine, error) {
	if fallback == "" {
		fallback = DefaultQueue
	}
	r := rego.New(
		rego.Query("data.escalation_routing.queue"),
		rego.Module("escalation_routing.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query, fallback: fallback}, nil
}

// NewEngineFromFile compiles the policy at path, or DefaultPolicy when path
// is empty.
func NewEngineFromFile(ctx context.Context, path, fallback string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy, fallback)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return NewEngine(ctx, string(content), fallback)
}

// Queue evaluates the policy and returns the target queue.
func (e *Engine) Queue(ctx context.Context, in Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in.document()))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return e.fallback, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok && s != "" {
		return s, nil
	}
	return e.fallback, nil
}

// DefaultPolicy is the built-in routing policy.
const DefaultPolicy = `
package escalation_routing

default queue = "unassigned"

queue = "claims" {
	input.escalation_type == "carrier_claim"
}

queue = "fulfillment" {
	input.escalation_type == "replacement_order"
}

queue = "quality" {
	input.escalation_type == "factory_review"
}

queue = "refunds" {
	input.escalation_type == "refund_approval"
}

queue = "returns" {
	input.escalation_type == ""
	input.category == "returns"
}
`
