package llm

import (
	"encoding/json"
	"fmt"

	"github.com/kus-aws/backend-go/internal/config"
)

// Profile owns the request-build/response-parse pair for one payload
// dialect. Exactly one profile is selected at configuration time; there
// is no per-request dispatch on the model identifier.
type Profile interface {
	// BuildRequest returns the JSON body for a generation call.
	BuildRequest(prompt string, maxTokens int) ([]byte, error)
	// ParseResponse extracts the generated text from the response envelope.
	ParseResponse(body []byte) (string, error)
	// MaxOutputTokens is the largest accepted max-output size.
	MaxOutputTokens() int
}

// ProfileFor returns the profile for the configured dialect.
func ProfileFor(cfg config.ModelConfig) (Profile, error) {
	switch cfg.Provider {
	case config.DialectMessages:
		return messagesProfile{cfg: cfg}, nil
	case config.DialectCompletion:
		return completionProfile{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("no profile for provider %q", cfg.Provider)
	}
}

// messagesProfile is the chat-style dialect: a structured message list
// in, text nested under a content-block list out.
type messagesProfile struct {
	cfg config.ModelConfig
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p"`
	StopSequences    []string      `json:"stop_sequences"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p messagesProfile) BuildRequest(prompt string, maxTokens int) ([]byte, error) {
	return json.Marshal(messagesRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		Messages:         []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:        maxTokens,
		Temperature:      p.cfg.Temperature,
		TopP:             p.cfg.TopP,
		StopSequences:    []string{},
	})
}

func (p messagesProfile) ParseResponse(body []byte) (string, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseParse, err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content block", ErrResponseParse)
}

func (p messagesProfile) MaxOutputTokens() int { return 4096 }

// completionProfile is the plain completion dialect: flat prompt plus
// generation config in, text nested under a results list out.
type completionProfile struct {
	cfg config.ModelConfig
}

type textGenerationConfig struct {
	MaxTokenCount int      `json:"maxTokenCount"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"topP"`
	StopSequences []string `json:"stopSequences"`
}

type completionRequest struct {
	InputText            string               `json:"inputText"`
	TextGenerationConfig textGenerationConfig `json:"textGenerationConfig"`
}

type completionResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}

func (p completionProfile) BuildRequest(prompt string, maxTokens int) ([]byte, error) {
	return json.Marshal(completionRequest{
		InputText: prompt,
		TextGenerationConfig: textGenerationConfig{
			MaxTokenCount: maxTokens,
			Temperature:   p.cfg.Temperature,
			TopP:          p.cfg.TopP,
			StopSequences: []string{},
		},
	})
}

func (p completionProfile) ParseResponse(body []byte) (string, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseParse, err)
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("%w: empty results list", ErrResponseParse)
	}
	return resp.Results[0].OutputText, nil
}

func (p completionProfile) MaxOutputTokens() int { return 8192 }
