package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kus-aws/backend-go/internal/agent"
	"github.com/kus-aws/backend-go/internal/logger"
)

// handleChatStream runs a normal chat turn, then replays the answer to
// the caller word by word with a fixed inter-chunk delay to simulate
// progressive delivery. The provider itself is invoked synchronously;
// no incremental generation is assumed.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	question := q.Get("question")
	if question == "" {
		writeError(w, r, &agent.ValidationError{Field: "question", Message: "must not be empty"})
		return
	}

	result, err := s.chatter.Chat(r.Context(), agent.ChatRequest{
		UserQuestion: question,
		Major:        q.Get("major"),
		SubField:     q.Get("sub_field"),
		FollowupMode: agent.FollowupNever,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	words := strings.Fields(result.Answer)
	for i, word := range words {
		select {
		case <-r.Context().Done():
			// The stream is already open; end with an error marker rather
			// than cutting the body off mid-word.
			fmt.Fprint(w, " [error: stream interrupted]")
			logger.L.Warn("chat stream interrupted",
				"conversation_id", result.ConversationID, "words_sent", i)
			return
		default:
		}

		if i > 0 {
			fmt.Fprint(w, " ")
		}
		if _, err := fmt.Fprint(w, word); err != nil {
			logger.L.Warn("chat stream write failed",
				"conversation_id", result.ConversationID, "words_sent", i, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if s.StreamDelay > 0 && i < len(words)-1 {
			time.Sleep(s.StreamDelay)
		}
	}
}
