package engine

import (
	"context"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

// ContextProvider is the read-only view of order, customer and product
// fields used to fill {{variable}} placeholders.
type ContextProvider interface {
	Lookup(ctx context.Context, threadID string) (map[string]string, error)
}

// StaticContext is a fixed ContextProvider.
type StaticContext map[string]string

// Lookup implements ContextProvider.
func (s StaticContext) Lookup(context.Context, string) (map[string]string, error) {
	return s, nil
}

// Interpolate replaces {{name}} placeholders with values from vars.
// Unknown names render as the empty string.
func Interpolate(content string, vars map[string]string) string {
	if !strings.Contains(content, "{{") {
		return content
	}
	out, err := fasttemplate.ExecuteFuncStringWithErr(content, "{{", "}}", func(w io.Writer, tag string) (int, error) {
		return w.Write([]byte(vars[strings.TrimSpace(tag)]))
	})
	if err != nil {
		return content
	}
	return out
}

// RenderNode builds the display view of node with placeholders filled.
func RenderNode(node model.Node, vars map[string]string) *model.NodeView {
	b := node.Base()
	view := &model.NodeView{
		NodeID:      b.ID,
		Type:        node.Type(),
		Content:     Interpolate(b.Content, vars),
		PauseReason: b.Metadata.PauseReason,
	}
	for _, s := range b.Metadata.TemplateSuggestions {
		view.TemplateSuggestions = append(view.TemplateSuggestions, Interpolate(s, vars))
	}
	switch t := node.(type) {
	case *model.QuestionNode:
		view.ResponseType = t.ResponseType
		view.Options = make([]model.Option, len(t.Options))
		for i, opt := range t.Options {
			opt.Label = Interpolate(opt.Label, vars)
			view.Options[i] = opt
		}
	case *model.AttachmentNode:
		cfg := t.Config
		view.Attachment = &cfg
	}
	return view
}
