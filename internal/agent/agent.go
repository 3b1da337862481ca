// Package agent orchestrates one conversational turn: validate the
// request, build the prompt, call the model, persist the exchange, and
// shape the result. Conversation state lives entirely in the store; the
// orchestrator itself holds only process-wide client handles.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/kus-aws/backend-go/internal/config"
	"github.com/kus-aws/backend-go/internal/llm"
	"github.com/kus-aws/backend-go/internal/logger"
	"github.com/kus-aws/backend-go/internal/prompt"
	"github.com/kus-aws/backend-go/internal/store"
)

// FollowupNever is the only accepted followupMode on the chat endpoint;
// suggestions are a separate call.
const FollowupNever = "never"

// FSM states for a single request.
type FSMState stateless.State

var (
	StateValidating     FSMState = "Validating"
	StateBuildingPrompt FSMState = "BuildingPrompt"
	StateCallingModel   FSMState = "CallingModel"
	StatePersisting     FSMState = "Persisting"
	StateResponding     FSMState = "Responding" // Terminal: success
	StateRejected       FSMState = "Rejected"   // Terminal: client error
	StateFailed         FSMState = "Failed"     // Terminal: upstream or internal error
)

// FSM triggers.
type FSMTrigger stateless.Trigger

var (
	TriggerInputAccepted  FSMTrigger = "InputAccepted"
	TriggerInputRejected  FSMTrigger = "InputRejected"
	TriggerPromptBuilt    FSMTrigger = "PromptBuilt"
	TriggerModelResponded FSMTrigger = "ModelResponded"
	TriggerPersisted      FSMTrigger = "Persisted"
	TriggerErrorOccurred  FSMTrigger = "ErrorOccurred"
)

// ValidationError reports a client-supplied field violating its
// contract. It maps to HTTP 400 and names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Message)
}

// Store is the subset of the history store the orchestrator depends on.
type Store interface {
	History(ctx context.Context, conversationID string) ([]store.Turn, error)
	AppendTurn(ctx context.Context, turn store.Turn) error
}

// ChatRequest is one validated-or-not chat turn request.
type ChatRequest struct {
	UserQuestion   string
	Major          string
	SubField       string
	ConversationID string
	FollowupMode   string
	SuggestCount   int
}

// ChatResult is the shaped outcome of a successful turn.
type ChatResult struct {
	Answer         string
	ConversationID string
}

// Orchestrator drives the per-request state machine. It is immutable and
// safe for concurrent use.
type Orchestrator struct {
	llmClient llm.Client
	history   Store
	maxTokens int
}

// New creates an orchestrator around the injected model client and store.
func New(llmClient llm.Client, history Store, cfg config.ModelConfig) *Orchestrator {
	return &Orchestrator{
		llmClient: llmClient,
		history:   history,
		maxTokens: cfg.MaxTokens,
	}
}

// Chat runs one conversational turn through the request state machine:
// Validating -> BuildingPrompt -> CallingModel -> Persisting -> Responding,
// with Validating short-circuiting to Rejected and any state moving to
// Failed on an unrecovered error. A persistence failure after a
// successful model call does not fail the turn; the answer the user is
// waiting for wins and the failure is logged.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	type fsmContext struct {
		conversationID string
		history        []store.Turn
		prompt         string
		answer         string
		lastError      error
	}
	fsmCtx := &fsmContext{}

	fsm := stateless.NewStateMachine(StateValidating)

	fsm.Configure(StateValidating).
		Permit(TriggerInputAccepted, StateBuildingPrompt).
		Permit(TriggerInputRejected, StateRejected)

	fsm.Configure(StateBuildingPrompt).
		OnEntry(func(ctx context.Context, _ ...any) error {
			history, err := o.history.History(ctx, fsmCtx.conversationID)
			if err != nil {
				fsmCtx.lastError = err
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			fsmCtx.history = history

			text, err := prompt.Build(req.Major, req.SubField, history, req.UserQuestion)
			if err != nil {
				fsmCtx.lastError = err
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			fsmCtx.prompt = text
			return fsm.FireCtx(ctx, TriggerPromptBuilt)
		}).
		Permit(TriggerPromptBuilt, StateCallingModel).
		Permit(TriggerErrorOccurred, StateFailed)

	fsm.Configure(StateCallingModel).
		OnEntry(func(ctx context.Context, _ ...any) error {
			answer, err := o.llmClient.Generate(ctx, fsmCtx.prompt, o.maxTokens)
			if err != nil {
				fsmCtx.lastError = err
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			fsmCtx.answer = answer
			return fsm.FireCtx(ctx, TriggerModelResponded)
		}).
		Permit(TriggerModelResponded, StatePersisting).
		Permit(TriggerErrorOccurred, StateFailed)

	fsm.Configure(StatePersisting).
		OnEntry(func(ctx context.Context, _ ...any) error {
			// The assistant key is nudged one microsecond past the user key
			// so the pair never collides and replays in write order.
			userKey := time.Now().UnixMicro()
			turns := []store.Turn{
				{
					ConversationID: fsmCtx.conversationID,
					OrderingKey:    userKey,
					Role:           store.RoleUser,
					Content:        req.UserQuestion,
					Major:          req.Major,
					SubField:       req.SubField,
				},
				{
					ConversationID: fsmCtx.conversationID,
					OrderingKey:    userKey + 1,
					Role:           store.RoleAssistant,
					Content:        fsmCtx.answer,
					Major:          req.Major,
					SubField:       req.SubField,
				},
			}
			for _, turn := range turns {
				if err := o.history.AppendTurn(ctx, turn); err != nil {
					// The answer is already generated; losing history is less
					// harmful than losing the response the user is waiting for.
					logger.L.Error("failed to persist turn; returning answer anyway",
						"conversation_id", fsmCtx.conversationID, "role", turn.Role, "error", err)
					break
				}
			}
			return fsm.FireCtx(ctx, TriggerPersisted)
		}).
		Permit(TriggerPersisted, StateResponding)

	fsm.Configure(StateResponding).
		OnEntry(func(_ context.Context, _ ...any) error {
			logger.L.Info("chat turn completed",
				"conversation_id", fsmCtx.conversationID, "history_turns", len(fsmCtx.history))
			return nil
		})

	// Kick off the machine from Validating; every later transition is
	// fired from within an OnEntry action.
	if verr := validateChat(req); verr != nil {
		fsmCtx.lastError = verr
		if err := fsm.FireCtx(ctx, TriggerInputRejected); err != nil {
			return nil, fmt.Errorf("request state machine: %w", err)
		}
	} else {
		fsmCtx.conversationID = req.ConversationID
		if fsmCtx.conversationID == "" {
			fsmCtx.conversationID = uuid.NewString()
		}
		if err := fsm.FireCtx(ctx, TriggerInputAccepted); err != nil {
			if fsmCtx.lastError != nil {
				return nil, fsmCtx.lastError
			}
			return nil, fmt.Errorf("request state machine: %w", err)
		}
	}

	state, err := fsm.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("request state machine state: %w", err)
	}

	switch state {
	case StateResponding:
		return &ChatResult{Answer: fsmCtx.answer, ConversationID: fsmCtx.conversationID}, nil
	case StateRejected, StateFailed:
		if fsmCtx.lastError != nil {
			return nil, fsmCtx.lastError
		}
		return nil, errors.New("request terminated without a recorded error")
	default:
		return nil, fmt.Errorf("request ended in unexpected state: %v", state)
	}
}

func validateChat(req ChatRequest) *ValidationError {
	if req.UserQuestion == "" {
		return &ValidationError{Field: "userQuestion", Message: "must not be empty"}
	}
	if req.FollowupMode != FollowupNever {
		return &ValidationError{
			Field:   "followupMode",
			Message: fmt.Sprintf("must equal %q on this endpoint", FollowupNever),
		}
	}
	if req.SuggestCount != 0 {
		return &ValidationError{Field: "suggestCount", Message: "must equal 0 on this endpoint"}
	}
	return nil
}
