package llm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/pkg/logger"
	"github.com/capitalize-ai/guided-resolution/pkg/metrics"
)

// Draft sources.
const (
	SourceLLM      = "llm"
	SourceTemplate = "template"
)

// DraftRequest describes the node an operator is replying from.
type DraftRequest struct {
	Category    string
	NodeContent string
	Suggestions []string
	Responses   map[string]any
	Instruction string
}

// Draft is a proposed customer reply.
type Draft struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Model  string `json:"model,omitempty"`
}

// Drafter turns a node's rendered content and template suggestions into a
// reply draft. Without a client, or when the client fails, the first
// template suggestion is returned as is.
type Drafter struct {
	client Client
	model  string
	logger *logger.Logger
}

// NewDrafter creates a drafter. client may be nil.
func NewDrafter(client Client, model string, log *logger.Logger) *Drafter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Drafter{client: client, model: model, logger: log.Named("drafter")}
}

// Draft produces a reply draft.
func (d *Drafter) Draft(ctx context.Context, req DraftRequest) (*Draft, error) {
	fallback := templateDraft(req)
	if d == nil || d.client == nil {
		metrics.RecordDraft(SourceTemplate, "", "ok", 0)
		return fallback, nil
	}

	start := time.Now()
	resp, err := d.client.Complete(ctx, &CompletionRequest{
		Model:       d.model,
		System:      draftSystemPrompt,
		Prompt:      buildPrompt(req),
		MaxTokens:   400,
		Temperature: 0.3,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		d.logger.Warn("LLM draft failed, using template",
			zap.String("provider", d.client.Name()),
			zap.String("category", req.Category),
			zap.Error(err),
		)
		metrics.RecordDraft(SourceLLM, d.model, "error", elapsed)
		return fallback, nil
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		metrics.RecordDraft(SourceLLM, resp.Model, "empty", elapsed)
		return fallback, nil
	}
	metrics.RecordDraft(SourceLLM, resp.Model, "ok", elapsed)
	d.logger.Debug("LLM draft generated",
		zap.String("provider", d.client.Name()),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Duration("latency", resp.Latency),
	)
	return &Draft{Text: text, Source: SourceLLM, Model: resp.Model}, nil
}

func templateDraft(req DraftRequest) *Draft {
	if len(req.Suggestions) > 0 {
		return &Draft{Text: req.Suggestions[0], Source: SourceTemplate}
	}
	return &Draft{Text: "", Source: SourceTemplate}
}

const draftSystemPrompt = "You help customer service operators write replies. Output only the reply text."

func buildPrompt(req DraftRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case category: %s\n", req.Category)
	fmt.Fprintf(&b, "Current guidance step: %s\n", req.NodeContent)
	if len(req.Responses) > 0 {
		b.WriteString("Answers collected so far:\n")
		for _, k := range slices.Sorted(maps.Keys(req.Responses)) {
			fmt.Fprintf(&b, "- %s: %v\n", k, req.Responses[k])
		}
	}
	if len(req.Suggestions) > 0 {
		b.WriteString("Approved reply templates:\n")
		for _, s := range req.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if req.Instruction != "" {
		fmt.Fprintf(&b, "Operator note: %s\n", req.Instruction)
	}
	b.WriteString("Write one short, friendly reply to the customer. Stay close to the approved templates and do not promise anything they do not.")

	return b.String()
}
