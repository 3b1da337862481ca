package agent

import (
	"context"

	"github.com/kus-aws/backend-go/internal/logger"
	"github.com/kus-aws/backend-go/internal/prompt"
)

// Suggest asks the model for up to n follow-up questions for the given
// major/sub-field. It never consults or mutates persisted history. The
// returned list has no blank entries, preserves the model's line order,
// and is at most n long; it is never padded.
func (o *Orchestrator) Suggest(ctx context.Context, major, subField string, n int) ([]string, error) {
	if n < 0 {
		return nil, &ValidationError{Field: "suggestCount", Message: "must not be negative"}
	}
	if n == 0 {
		return []string{}, nil
	}

	raw, err := o.llmClient.Generate(ctx, prompt.Suggestions(major, subField, n), o.maxTokens)
	if err != nil {
		return nil, err
	}

	suggestions := prompt.SplitSuggestions(raw, n)
	logger.L.Debug("suggestions generated",
		"sub_field", subField, "requested", n, "returned", len(suggestions))
	return suggestions, nil
}
