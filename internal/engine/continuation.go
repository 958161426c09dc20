package engine

import (
	"github.com/capitalize-ai/guided-resolution/internal/model"
)

// MaxSuggestions caps the number of follow-on flows suggested at once.
const MaxSuggestions = 3

// AdjacencyTable maps a category to the categories that commonly follow it,
// in preference order.
type AdjacencyTable map[string][]string

// DefaultAdjacency is the built-in category adjacency.
var DefaultAdjacency = AdjacencyTable{
	"shipping":      {"damage", "wrong_item", "missing_items"},
	"damage":        {"refund", "replacement", "returns"},
	"returns":       {"refund", "exchange"},
	"wrong_item":    {"returns", "refund", "exchange"},
	"missing_items": {"refund", "shipping"},
	"refund":        {"returns"},
}

// CompletedCategories returns the set of categories with a completed session.
func CompletedCategories(sessions []*model.FlowSession) map[string]bool {
	done := make(map[string]bool)
	for _, s := range sessions {
		if s.Status == model.SessionCompleted {
			done[s.Category] = true
		}
	}
	return done
}

// Candidates returns the categories adjacent to category that are not in
// completed, in table order. The source category itself is always excluded.
func (t AdjacencyTable) Candidates(category string, completed map[string]bool) []string {
	var out []string
	for _, c := range t[category] {
		if c == category || completed[c] {
			continue
		}
		out = append(out, c)
	}
	return out
}
