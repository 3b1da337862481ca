package llm

import "errors"

// Failure taxonomy surfaced to callers. No fallback text is ever
// returned on failure; these propagate to the orchestrator, which maps
// them to HTTP statuses.
var (
	// ErrRateLimited indicates the provider signalled throttling.
	ErrRateLimited = errors.New("model provider rate limited")

	// ErrUpstreamTimeout indicates the provider exceeded its own
	// generation budget, as opposed to a transport timeout on our side.
	ErrUpstreamTimeout = errors.New("model generation timed out upstream")

	// ErrResponseParse indicates the response envelope did not match the
	// configured dialect.
	ErrResponseParse = errors.New("model response parse failure")

	// ErrUnavailable covers any other provider-side failure.
	ErrUnavailable = errors.New("model provider unavailable")

	// ErrEmptyPrompt indicates the caller supplied no prompt text.
	ErrEmptyPrompt = errors.New("prompt must not be empty")

	// ErrInvalidMaxTokens indicates the requested output size is outside
	// the provider's accepted range.
	ErrInvalidMaxTokens = errors.New("max tokens out of range")
)
