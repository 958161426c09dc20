package engine

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

// Validate checks that def is a closed, well-typed graph. The first defect
// found is returned as a *ValidationError naming the node and edge.
func Validate(def *model.FlowDefinition) error {
	if def == nil {
		return &ValidationError{Reason: "definition is empty"}
	}
	if def.Category == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	if len(def.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Reason: "at least one node is required"}
	}

	byID := make(map[string]model.Node, len(def.Nodes))
	for i, n := range def.Nodes {
		id := n.NodeID()
		if id == "" {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].id", i), Reason: "is required"}
		}
		if _, dup := byID[id]; dup {
			return &ValidationError{NodeID: id, Reason: "duplicate node id"}
		}
		byID[id] = n
	}

	if def.StartNodeID == "" {
		return &ValidationError{Field: "startNodeId", Reason: "is required"}
	}
	if _, ok := byID[def.StartNodeID]; !ok {
		return &ValidationError{Field: "startNodeId", Reason: fmt.Sprintf("references unknown node %q", def.StartNodeID)}
	}

	for _, n := range def.Nodes {
		if err := validateNode(n, byID); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(n model.Node, byID map[string]model.Node) error {
	id := n.NodeID()
	edges := n.Base().Edges

	if n.Type() == model.NodeTypeCompletion {
		if !edges.Empty() {
			return &ValidationError{NodeID: id, Reason: "completion nodes cannot have outgoing edges"}
		}
	} else {
		if edges.Next != "" && len(edges.Conditional) > 0 {
			return &ValidationError{NodeID: id, Reason: "set either nextNodeId or conditionalNext, not both"}
		}
		if edges.Empty() {
			return &ValidationError{NodeID: id, Reason: "non-completion node has no outgoing edge"}
		}
	}

	if edges.Next != "" {
		if _, ok := byID[edges.Next]; !ok {
			return &ValidationError{NodeID: id, Field: "nextNodeId", Reason: fmt.Sprintf("references unknown node %q", edges.Next)}
		}
	}
	for i, rule := range edges.Conditional {
		field := fmt.Sprintf("conditionalNext[%d]", i)
		if _, ok := byID[rule.NodeID]; !ok {
			return &ValidationError{NodeID: id, Field: field + ".nodeId", Reason: fmt.Sprintf("references unknown node %q", rule.NodeID)}
		}
		for j, c := range rule.Conditions {
			if err := validateCondition(c, byID); err != nil {
				var ve *ValidationError
				if errors.As(err, &ve) {
					ve.NodeID = id
					ve.Field = fmt.Sprintf("%s.conditions[%d]", field, j)
				}
				return err
			}
		}
	}

	switch t := n.(type) {
	case *model.QuestionNode:
		return validateQuestion(t)
	case *model.AttachmentNode:
		return validateAttachmentConfig(t)
	}
	return nil
}

func validateCondition(c model.Condition, byID map[string]model.Node) error {
	if !c.Operator.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown operator %q", c.Operator)}
	}
	target, ok := byID[c.Field]
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("field references unknown node %q", c.Field)}
	}
	if tt := target.Type(); tt != model.NodeTypeQuestion && tt != model.NodeTypeAttachment {
		return &ValidationError{Reason: fmt.Sprintf("field %q is a %s node and never holds a response", c.Field, tt)}
	}
	switch {
	case c.Operator.Numeric():
		if _, ok := toFloat(c.Value); !ok {
			return &ValidationError{Reason: fmt.Sprintf("%s requires a numeric value, got %v", c.Operator, c.Value)}
		}
	case c.Operator == model.OpIn:
		if c.Value == nil {
			return &ValidationError{Reason: "in requires a list value"}
		}
		if k := reflect.TypeOf(c.Value).Kind(); k != reflect.Slice && k != reflect.Array {
			return &ValidationError{Reason: fmt.Sprintf("in requires a list value, got %v", c.Value)}
		}
	}
	return nil
}

func validateQuestion(q *model.QuestionNode) error {
	if q.ResponseType != model.ResponseSingleChoice {
		return nil
	}
	if len(q.Options) == 0 {
		return &ValidationError{NodeID: q.ID, Field: "options", Reason: "single_choice requires at least one option"}
	}
	seen := make(map[string]struct{}, len(q.Options))
	for i, opt := range q.Options {
		key := fmt.Sprint(normalize(opt.Value))
		if opt.Value == nil {
			return &ValidationError{NodeID: q.ID, Field: fmt.Sprintf("options[%d].value", i), Reason: "is required"}
		}
		if _, dup := seen[key]; dup {
			return &ValidationError{NodeID: q.ID, Field: fmt.Sprintf("options[%d].value", i), Reason: fmt.Sprintf("duplicate option value %v", opt.Value)}
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validateAttachmentConfig(a *model.AttachmentNode) error {
	cfg := a.Config
	switch {
	case cfg.MinFiles < 0:
		return &ValidationError{NodeID: a.ID, Field: "attachmentConfig.minFiles", Reason: "cannot be negative"}
	case cfg.MaxFiles <= 0:
		return &ValidationError{NodeID: a.ID, Field: "attachmentConfig.maxFiles", Reason: "must be positive"}
	case cfg.MinFiles > cfg.MaxFiles:
		return &ValidationError{NodeID: a.ID, Field: "attachmentConfig", Reason: fmt.Sprintf("minFiles %d exceeds maxFiles %d", cfg.MinFiles, cfg.MaxFiles)}
	case len(cfg.AcceptedTypes) == 0:
		return &ValidationError{NodeID: a.ID, Field: "attachmentConfig.acceptedTypes", Reason: "at least one type is required"}
	}
	return nil
}

// ParseDefinition decodes a JSON or YAML flow document and validates it.
// Decode failures are reported as *ValidationError.
func ParseDefinition(data []byte, filename string) (*model.FlowDefinition, error) {
	def, err := model.ParseFlowDefinition(data, filename)
	if err != nil {
		var de *model.DecodeError
		if errors.As(err, &de) {
			return nil, &ValidationError{NodeID: de.NodeID, Reason: de.Reason}
		}
		return nil, &ValidationError{Reason: err.Error()}
	}
	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}
