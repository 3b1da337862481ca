// Package server exposes the gateway's HTTP surface: health, echo,
// chat, suggestions, streaming chat and FAQ lookup.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kus-aws/backend-go/internal/agent"
	"github.com/kus-aws/backend-go/internal/config"
	"github.com/kus-aws/backend-go/internal/logger"
	"github.com/kus-aws/backend-go/internal/store"
)

// Chatter drives conversational turns and suggestion generation;
// satisfied by *agent.Orchestrator and faked in tests.
type Chatter interface {
	Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResult, error)
	Suggest(ctx context.Context, major, subField string, n int) ([]string, error)
}

// FAQStore is the read-only FAQ lookup; satisfied by *store.Store.
type FAQStore interface {
	FAQs(ctx context.Context, subField string) ([]store.FAQ, error)
}

// Server wires the handlers to their collaborators. StreamDelay is the
// inter-word pause of the streaming responder; tests set it to zero.
type Server struct {
	chatter     Chatter
	faqs        FAQStore
	cors        corsPolicy
	validate    *validator.Validate
	StreamDelay time.Duration
}

// New builds the HTTP server surface around the injected collaborators.
func New(chatter Chatter, faqs FAQStore, corsCfg config.CORSConfig) *Server {
	v := validator.New()
	// Report violations by their JSON field names, not Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		chatter:     chatter,
		faqs:        faqs,
		cors:        newCORSPolicy(corsCfg),
		validate:    v,
		StreamDelay: 30 * time.Millisecond,
	}
}

// Handler returns the fully wired route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/echo", s.handleEcho)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /suggestions", s.handleSuggestions)
	mux.HandleFunc("GET /chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /faq", s.handleFAQ)
	return s.cors.middleware(withCorrelation(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		q = "hello"
	}
	writeJSON(w, http.StatusOK, map[string]string{"echo": q})
}

type chatRequest struct {
	UserQuestion   string `json:"userQuestion" validate:"required"`
	Major          string `json:"major"`
	SubField       string `json:"subField"`
	ConversationID string `json:"conversationId"`
	FollowupMode   string `json:"followupMode"`
	SuggestCount   int    `json:"suggestCount"`
}

type chatResponse struct {
	AIResponse     string   `json:"aiResponse"`
	ConversationID string   `json:"conversationId"`
	Suggestions    []string `json:"suggestions"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	// An omitted followupMode means the sentinel; any other value is the
	// caller actively asking for inline follow-ups, which this endpoint
	// does not serve.
	if req.FollowupMode == "" {
		req.FollowupMode = agent.FollowupNever
	}

	result, err := s.chatter.Chat(r.Context(), agent.ChatRequest{
		UserQuestion:   req.UserQuestion,
		Major:          req.Major,
		SubField:       req.SubField,
		ConversationID: req.ConversationID,
		FollowupMode:   req.FollowupMode,
		SuggestCount:   req.SuggestCount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		AIResponse:     result.Answer,
		ConversationID: result.ConversationID,
		Suggestions:    []string{},
	})
}

type suggestionsRequest struct {
	ConversationID string `json:"conversationId"`
	Major          string `json:"major"`
	SubField       string `json:"subField" validate:"required"`
	SuggestCount   int    `json:"suggestCount" validate:"gte=0"`
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionsRequest
	if !s.decode(w, r, &req) {
		return
	}

	suggestions, err := s.chatter.Suggest(r.Context(), req.Major, req.SubField, req.SuggestCount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

func (s *Server) handleFAQ(w http.ResponseWriter, r *http.Request) {
	subField := r.URL.Query().Get("subField")
	if subField == "" {
		writeError(w, r, &agent.ValidationError{Field: "subField", Message: "must not be empty"})
		return
	}

	faqs, err := s.faqs.FAQs(r.Context(), subField)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]store.FAQ{"faqs": faqs})
}

// decode unmarshals and validates a JSON request body, writing the 400
// response itself when the body violates the contract.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, &agent.ValidationError{Field: "body", Message: "malformed JSON"})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if ok := errors.As(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			writeError(w, r, &agent.ValidationError{
				Field:   first.Field(),
				Message: "failed validation rule " + first.Tag(),
			})
		} else {
			writeError(w, r, &agent.ValidationError{Field: "body", Message: err.Error()})
		}
		return false
	}
	return true
}

// ListenAndServe starts the HTTP listener and blocks.
func (s *Server) ListenAndServe(addr string) error {
	logger.L.Info("starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}
