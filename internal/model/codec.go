package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DecodeError reports a flow document that cannot be mapped onto the typed
// node union (unknown node type, operator or response type).
type DecodeError struct {
	NodeID string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.NodeID == "" {
		return "invalid flow document: " + e.Reason
	}
	return fmt.Sprintf("invalid flow document: node %q: %s", e.NodeID, e.Reason)
}

// flowDoc is the authored wire shape of a flow definition.
type flowDoc struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Category    string     `json:"category" yaml:"category"`
	Name        string     `json:"name" yaml:"name"`
	Version     int        `json:"version,omitempty" yaml:"version,omitempty"`
	IsActive    bool       `json:"isActive,omitempty" yaml:"-"`
	StartNodeID string     `json:"startNodeId" yaml:"startNodeId"`
	Nodes       []nodeDoc  `json:"nodes" yaml:"nodes"`
	CreatedAt   *time.Time `json:"createdAt,omitempty" yaml:"-"`
}

type nodeDoc struct {
	ID              string       `json:"id" yaml:"id"`
	Type            NodeType     `json:"type" yaml:"type"`
	Content         string       `json:"content" yaml:"content"`
	ResponseType    ResponseType `json:"responseType,omitempty" yaml:"responseType,omitempty"`
	Options         []Option     `json:"options,omitempty" yaml:"options,omitempty"`
	NextNodeID      string       `json:"nextNodeId,omitempty" yaml:"nextNodeId,omitempty"`
	ConditionalNext []Rule       `json:"conditionalNext,omitempty" yaml:"conditionalNext,omitempty"`
	Metadata        *metadataDoc `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type metadataDoc struct {
	Metadata         `yaml:",inline"`
	AttachmentConfig *AttachmentConfig `json:"attachmentConfig,omitempty" yaml:"attachmentConfig,omitempty"`
}

// UnmarshalJSON decodes the authored JSON shape into the typed node union.
func (d *FlowDefinition) UnmarshalJSON(data []byte) error {
	var doc flowDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return d.fromDoc(doc)
}

// MarshalJSON encodes d in the authored JSON shape.
func (d FlowDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toDoc())
}

// UnmarshalYAML decodes the authored YAML shape into the typed node union.
func (d *FlowDefinition) UnmarshalYAML(value *yaml.Node) error {
	var doc flowDoc
	if err := value.Decode(&doc); err != nil {
		return err
	}
	return d.fromDoc(doc)
}

// MarshalYAML encodes d in the authored YAML shape.
func (d FlowDefinition) MarshalYAML() (any, error) {
	return d.toDoc(), nil
}

// ParseFlowDefinition decodes a JSON or YAML flow document. The format is
// taken from the file name extension when given, otherwise sniffed.
func ParseFlowDefinition(data []byte, filename string) (*FlowDefinition, error) {
	var def FlowDefinition
	switch ext := strings.ToLower(filepath.Ext(filename)); {
	case ext == ".json", ext == "" && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")):
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, err
		}
	}
	return &def, nil
}

func (d *FlowDefinition) fromDoc(doc flowDoc) error {
	nodes := make([]Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		n, err := nd.toNode()
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}

	*d = FlowDefinition{
		ID:          doc.ID,
		Category:    doc.Category,
		Name:        doc.Name,
		Version:     doc.Version,
		IsActive:    doc.IsActive,
		StartNodeID: doc.StartNodeID,
		Nodes:       nodes,
	}
	if doc.CreatedAt != nil {
		d.CreatedAt = *doc.CreatedAt
	}
	d.Reindex()
	return nil
}

func (d FlowDefinition) toDoc() flowDoc {
	doc := flowDoc{
		ID:          d.ID,
		Category:    d.Category,
		Name:        d.Name,
		Version:     d.Version,
		IsActive:    d.IsActive,
		StartNodeID: d.StartNodeID,
		Nodes:       make([]nodeDoc, 0, len(d.Nodes)),
	}
	if !d.CreatedAt.IsZero() {
		created := d.CreatedAt
		doc.CreatedAt = &created
	}
	for _, n := range d.Nodes {
		doc.Nodes = append(doc.Nodes, docFromNode(n))
	}
	return doc
}

func (nd nodeDoc) toNode() (Node, error) {
	base := NodeBase{
		ID:      nd.ID,
		Content: nd.Content,
		Edges: Edges{
			Next:        nd.NextNodeID,
			Conditional: nd.ConditionalNext,
		},
	}
	var attachment *AttachmentConfig
	if nd.Metadata != nil {
		base.Metadata = nd.Metadata.Metadata
		attachment = nd.Metadata.AttachmentConfig
	}

	for i, rule := range nd.ConditionalNext {
		for _, c := range rule.Conditions {
			if !c.Operator.Valid() {
				return nil, &DecodeError{NodeID: nd.ID, Reason: fmt.Sprintf("conditionalNext[%d]: unknown operator %q", i, c.Operator)}
			}
		}
	}

	if attachment != nil && nd.Type != NodeTypeAttachment {
		return nil, &DecodeError{NodeID: nd.ID, Reason: "attachmentConfig is only valid on attachment nodes"}
	}

	switch nd.Type {
	case NodeTypeInfo:
		return &InfoNode{NodeBase: base}, nil
	case NodeTypeQuestion:
		rt := nd.ResponseType
		if rt == "" {
			rt = ResponseTextInput
			if len(nd.Options) > 0 {
				rt = ResponseSingleChoice
			}
		}
		if rt != ResponseSingleChoice && rt != ResponseTextInput {
			return nil, &DecodeError{NodeID: nd.ID, Reason: fmt.Sprintf("unknown responseType %q", nd.ResponseType)}
		}
		return &QuestionNode{NodeBase: base, ResponseType: rt, Options: nd.Options}, nil
	case NodeTypeAttachment:
		if attachment == nil {
			return nil, &DecodeError{NodeID: nd.ID, Reason: "attachment node requires metadata.attachmentConfig"}
		}
		return &AttachmentNode{NodeBase: base, Config: *attachment}, nil
	case NodeTypeCompletion:
		return &CompletionNode{NodeBase: base}, nil
	default:
		return nil, &DecodeError{NodeID: nd.ID, Reason: fmt.Sprintf("unknown node type %q", nd.Type)}
	}
}

func docFromNode(n Node) nodeDoc {
	b := n.Base()
	nd := nodeDoc{
		ID:              b.ID,
		Type:            n.Type(),
		Content:         b.Content,
		NextNodeID:      b.Edges.Next,
		ConditionalNext: b.Edges.Conditional,
	}
	meta := &metadataDoc{Metadata: b.Metadata}
	switch t := n.(type) {
	case *QuestionNode:
		nd.ResponseType = t.ResponseType
		nd.Options = t.Options
	case *AttachmentNode:
		cfg := t.Config
		meta.AttachmentConfig = &cfg
	}
	if meta.AttachmentConfig != nil || !meta.Metadata.isZero() {
		nd.Metadata = meta
	}
	return nd
}

func (m Metadata) isZero() bool {
	return !m.RequiresAgentAction && m.EscalationType == "" && len(m.TemplateSuggestions) == 0 && m.PauseReason == ""
}
