package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kus-aws/backend-go/internal/agent"
	"github.com/kus-aws/backend-go/internal/llm"
	"github.com/kus-aws/backend-go/internal/logger"
	"github.com/kus-aws/backend-go/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.L.Error("failed to encode response body", "error", err)
	}
}

// writeError maps an internal error onto the HTTP contract. Internal
// detail and provider payloads are logged server-side, never surfaced.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *agent.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, llm.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "model is throttling requests, retry later",
		})
	case errors.Is(err, llm.ErrUpstreamTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{
			"error": "upstream generation timed out",
			"kind":  "model",
		})
	default:
		logger.L.Error("request failed",
			"path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err,
			"persistence", errors.Is(err, store.ErrPersistence))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}
