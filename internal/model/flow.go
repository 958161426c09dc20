// Package model defines data structures for the guided resolution engine.
package model

import (
	"time"
)

// NodeType identifies the input contract of a node.
type NodeType string

const (
	NodeTypeInfo       NodeType = "info"
	NodeTypeQuestion   NodeType = "question"
	NodeTypeAttachment NodeType = "attachment"
	NodeTypeCompletion NodeType = "completion"
)

// ResponseType is the input kind of a question node.
type ResponseType string

const (
	ResponseSingleChoice ResponseType = "single_choice"
	ResponseTextInput    ResponseType = "text_input"
)

// Operator is a condition comparison operator. The set is closed.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpIn          Operator = "in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Valid reports whether o is one of the supported operators.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpIn, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Numeric reports whether o compares operands as numbers.
func (o Operator) Numeric() bool {
	return o == OpGreaterThan || o == OpLessThan
}

// Condition tests the most recent response submitted for Field.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Rule routes to NodeID when all of its conditions hold.
type Rule struct {
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	NodeID     string      `json:"nodeId" yaml:"nodeId"`
}

// Edges holds the outgoing edges of a node: an unconditional Next or an
// ordered list of conditional rules. Completion nodes have neither.
type Edges struct {
	Next        string
	Conditional []Rule
}

// Targets returns every node id referenced by the edges, in declaration order.
func (e Edges) Targets() []string {
	if e.Next != "" {
		return []string{e.Next}
	}
	targets := make([]string, 0, len(e.Conditional))
	for _, r := range e.Conditional {
		targets = append(targets, r.NodeID)
	}
	return targets
}

// Empty reports whether the node has no outgoing edges.
func (e Edges) Empty() bool {
	return e.Next == "" && len(e.Conditional) == 0
}

// Option is one selectable answer of a single choice question.
type Option struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// AttachmentConfig constrains the files accepted by an attachment node.
type AttachmentConfig struct {
	MinFiles      int      `json:"minFiles" yaml:"minFiles"`
	MaxFiles      int      `json:"maxFiles" yaml:"maxFiles"`
	AcceptedTypes []string `json:"acceptedTypes" yaml:"acceptedTypes"`
}

// Metadata carries side-effect flags and display hints for a node.
type Metadata struct {
	RequiresAgentAction bool     `json:"requiresAgentAction,omitempty" yaml:"requiresAgentAction,omitempty"`
	EscalationType      string   `json:"escalationType,omitempty" yaml:"escalationType,omitempty"`
	TemplateSuggestions []string `json:"templateSuggestions,omitempty" yaml:"templateSuggestions,omitempty"`
	PauseReason         string   `json:"pauseReason,omitempty" yaml:"pauseReason,omitempty"`
}

// Node is one step of a flow. The concrete types are *InfoNode,
// *QuestionNode, *AttachmentNode and *CompletionNode.
type Node interface {
	NodeID() string
	Type() NodeType
	Base() *NodeBase
}

// NodeBase holds the fields shared by every node type.
type NodeBase struct {
	ID       string
	Content  string
	Edges    Edges
	Metadata Metadata
}

// NodeID returns the node id.
func (b *NodeBase) NodeID() string { return b.ID }

// Base returns the shared node fields.
func (b *NodeBase) Base() *NodeBase { return b }

// InfoNode displays content and waits for an explicit advance.
type InfoNode struct {
	NodeBase
}

// Type implements Node.
func (*InfoNode) Type() NodeType { return NodeTypeInfo }

// QuestionNode collects a single choice or free text response.
type QuestionNode struct {
	NodeBase
	ResponseType ResponseType
	Options      []Option
}

// Type implements Node.
func (*QuestionNode) Type() NodeType { return NodeTypeQuestion }

// AttachmentNode gates progress on uploaded files.
type AttachmentNode struct {
	NodeBase
	Config AttachmentConfig
}

// Type implements Node.
func (*AttachmentNode) Type() NodeType { return NodeTypeAttachment }

// CompletionNode terminates the session.
type CompletionNode struct {
	NodeBase
}

// Type implements Node.
func (*CompletionNode) Type() NodeType { return NodeTypeCompletion }

// FlowDefinition is one version of a named decision tree for a category.
// Versions are immutable once registered; edits register a new version.
type FlowDefinition struct {
	ID          string
	Category    string
	Name        string
	Version     int
	IsActive    bool
	StartNodeID string
	Nodes       []Node
	CreatedAt   time.Time

	index map[string]Node
}

// Node looks up a node by id. Definitions built by the decoders carry an
// index; hand-built ones fall back to a scan so lookups never write.
func (d *FlowDefinition) Node(id string) (Node, bool) {
	if d.index != nil {
		n, ok := d.index[id]
		return n, ok
	}
	for _, n := range d.Nodes {
		if n.NodeID() == id {
			return n, true
		}
	}
	return nil, false
}

// Reindex rebuilds the node lookup index. Call it after mutating Nodes and
// before sharing the definition between goroutines.
func (d *FlowDefinition) Reindex() {
	d.index = make(map[string]Node, len(d.Nodes))
	for _, n := range d.Nodes {
		if _, dup := d.index[n.NodeID()]; !dup {
			d.index[n.NodeID()] = n
		}
	}
}

// FlowSummary is the listing view of a definition without its graph.
type FlowSummary struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	IsActive  bool      `json:"is_active"`
	NodeCount int       `json:"node_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary returns the listing view of d.
func (d *FlowDefinition) Summary() FlowSummary {
	return FlowSummary{
		ID:        d.ID,
		Category:  d.Category,
		Name:      d.Name,
		Version:   d.Version,
		IsActive:  d.IsActive,
		NodeCount: len(d.Nodes),
		CreatedAt: d.CreatedAt,
	}
}
