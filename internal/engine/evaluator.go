package engine

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

// ValidateResponse checks value against a question node's input contract and
// returns the value to store. A single choice may be given as the option
// value or the option id; the stored form is always the option value.
func ValidateResponse(node model.Node, value any) (any, error) {
	q, ok := node.(*model.QuestionNode)
	if !ok {
		return nil, &ValidationError{NodeID: node.NodeID(), Reason: fmt.Sprintf("%s nodes do not accept responses", node.Type())}
	}

	switch q.ResponseType {
	case model.ResponseSingleChoice:
		for _, opt := range q.Options {
			if equal(value, opt.Value) {
				return opt.Value, nil
			}
		}
		if s, isString := value.(string); isString {
			for _, opt := range q.Options {
				if opt.ID == s {
					return opt.Value, nil
				}
			}
		}
		return nil, &ValidationError{NodeID: q.ID, Field: "value", Reason: fmt.Sprintf("%v is not one of the node's options", value)}
	case model.ResponseTextInput:
		s, isString := value.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return nil, &ValidationError{NodeID: q.ID, Field: "value", Reason: "text_input requires a non-empty string"}
		}
		return s, nil
	default:
		return nil, &ValidationError{NodeID: q.ID, Reason: fmt.Sprintf("unknown responseType %q", q.ResponseType)}
	}
}

// ValidateAttachments checks files against an attachment node's contract.
// A disallowed type fails regardless of count.
func ValidateAttachments(node model.Node, files []model.File) error {
	a, ok := node.(*model.AttachmentNode)
	if !ok {
		return &ValidationError{NodeID: node.NodeID(), Reason: fmt.Sprintf("%s nodes do not accept attachments", node.Type())}
	}

	for i, f := range files {
		if !acceptsType(a.Config.AcceptedTypes, f.MimeType) {
			return &ValidationError{NodeID: a.ID, Field: fmt.Sprintf("files[%d].mime_type", i), Reason: fmt.Sprintf("%q is not an accepted type", f.MimeType)}
		}
	}
	if n := len(files); n < a.Config.MinFiles {
		return &ValidationError{NodeID: a.ID, Field: "files", Reason: fmt.Sprintf("at least %d files required, got %d", a.Config.MinFiles, n)}
	}
	if n := len(files); n > a.Config.MaxFiles {
		return &ValidationError{NodeID: a.ID, Field: "files", Reason: fmt.Sprintf("at most %d files allowed, got %d", a.Config.MaxFiles, n)}
	}
	return nil
}

// acceptsType matches a MIME type exactly or against a "type/*" wildcard.
func acceptsType(accepted []string, mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" {
		return false
	}
	for _, a := range accepted {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == mt || a == "*/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mt, prefix+"/") {
			return true
		}
	}
	return false
}
