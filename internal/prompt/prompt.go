// Package prompt assembles model input text from conversation history.
// Everything here is pure: no network, no persistence.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kus-aws/backend-go/internal/store"
)

// ErrMalformedHistory indicates a persisted turn is missing its role or
// content and cannot be rendered.
var ErrMalformedHistory = errors.New("malformed history turn")

const preamble = "You are an expert AI tutor teaching %s within the field of %s. " +
	"Explain concisely and clearly, answer the question, and encourage " +
	"follow-up questions that help the student learn. Tailor the level of " +
	"detail to the question."

// Build renders the full model input: a fixed instructional preamble
// naming the major and sub-field, each prior turn as "Human:" or
// "Assistant:" in original order, the new question, and a trailing
// "Assistant:" cue.
func Build(major, subField string, history []store.Turn, question string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, preamble, subField, major)
	b.WriteString("\n\n")

	for i, turn := range history {
		if turn.Role == "" || turn.Content == "" {
			return "", fmt.Errorf("%w: turn %d of %s", ErrMalformedHistory, i, turn.ConversationID)
		}
		switch turn.Role {
		case store.RoleUser:
			b.WriteString("Human: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}

	b.WriteString("Human: ")
	b.WriteString(question)
	b.WriteString("\nAssistant:")
	return b.String(), nil
}

// Suggestions renders the prompt asking the model for n line-separated
// follow-up questions about the sub-field.
func Suggestions(major, subField string, n int) string {
	return fmt.Sprintf("Suggest exactly %d short follow-up questions a student "+
		"learning %s within %s might ask next. Write one question per line "+
		"with no numbering and no extra commentary.", n, subField, major)
}

// SplitSuggestions splits raw model output into discrete suggestions:
// one per line, trimmed, blanks dropped, truncated to at most n entries.
// Fewer than n is fine; the list is never padded.
func SplitSuggestions(raw string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	out := make([]string, 0, n)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
