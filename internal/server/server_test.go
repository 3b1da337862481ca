package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kus-aws/backend-go/internal/agent"
	"github.com/kus-aws/backend-go/internal/config"
	"github.com/kus-aws/backend-go/internal/llm"
	"github.com/kus-aws/backend-go/internal/store"
)

type fakeLLM struct {
	answer string
	err    error
}

func (f *fakeLLM) Generate(context.Context, string, int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeStore struct {
	turns map[string][]store.Turn
	faqs  map[string][]store.FAQ
}

func newFakeStore() *fakeStore {
	return &fakeStore{turns: map[string][]store.Turn{}, faqs: map[string][]store.FAQ{}}
}

func (f *fakeStore) History(_ context.Context, id string) ([]store.Turn, error) {
	return f.turns[id], nil
}

func (f *fakeStore) AppendTurn(_ context.Context, turn store.Turn) error {
	f.turns[turn.ConversationID] = append(f.turns[turn.ConversationID], turn)
	return nil
}

func (f *fakeStore) FAQs(_ context.Context, subField string) ([]store.FAQ, error) {
	out := f.faqs[subField]
	if out == nil {
		out = []store.FAQ{}
	}
	return out, nil
}

func newTestServer(t *testing.T, llmClient llm.Client, st *fakeStore, cors config.CORSConfig) *httptest.Server {
	t.Helper()
	orchestrator := agent.New(llmClient, st, config.ModelConfig{MaxTokens: 2000})
	srv := New(orchestrator, st, cors)
	srv.StreamDelay = 0
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func defaultCORS() config.CORSConfig {
	return config.CORSConfig{Origins: "*", Methods: "*", Headers: "*"}
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(string(payload)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, map[string]string{"status": "ok"}, body)
}

func TestEcho(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())

	resp, err := http.Get(ts.URL + "/api/v1/echo")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "hello", body["echo"])

	resp, err = http.Get(ts.URL + "/api/v1/echo?q=world")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	assert.Equal(t, "world", body["echo"])
}

func TestChat_Success(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(t, &fakeLLM{answer: "the answer"}, st, defaultCORS())

	resp := postJSON(t, ts.URL+"/chat", map[string]any{
		"userQuestion": "what is paging?",
		"major":        "CS",
		"subField":     "OS",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AIResponse     string   `json:"aiResponse"`
		ConversationID string   `json:"conversationId"`
		Suggestions    []string `json:"suggestions"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "the answer", body.AIResponse)
	assert.NotEmpty(t, body.ConversationID)
	require.NotNil(t, body.Suggestions)
	assert.Empty(t, body.Suggestions, "chat never returns inline suggestions")

	turns := st.turns[body.ConversationID]
	require.Len(t, turns, 2)
	assert.Equal(t, store.RoleUser, turns[0].Role)
	assert.Equal(t, store.RoleAssistant, turns[1].Role)
	assert.Less(t, turns[0].OrderingKey, turns[1].OrderingKey)
}

func TestChat_DistinctConversationIDs(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "a"}, newFakeStore(), defaultCORS())

	body := map[string]any{"userQuestion": "q", "major": "CS", "subField": "OS"}
	var ids []string
	for i := 0; i < 2; i++ {
		var out struct {
			ConversationID string `json:"conversationId"`
		}
		resp := postJSON(t, ts.URL+"/chat", body, nil)
		decodeBody(t, resp, &out)
		_, err := uuid.Parse(out.ConversationID)
		require.NoError(t, err)
		ids = append(ids, out.ConversationID)
	}
	assert.NotEqual(t, ids[0], ids[1])
}

func TestChat_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]any
		wantField string
	}{
		{"followup mode always", map[string]any{"userQuestion": "q", "followupMode": "always"}, "followupMode"},
		{"nonzero suggest count", map[string]any{"userQuestion": "q", "suggestCount": 3}, "suggestCount"},
		{"missing question", map[string]any{"major": "CS"}, "userQuestion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())

			resp := postJSON(t, ts.URL+"/chat", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			decodeBody(t, resp, &body)
			assert.Equal(t, tt.wantField, body["field"])
			assert.Contains(t, body["error"], tt.wantField)
		})
	}
}

func TestChat_CorrelationHeader(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())
	body := map[string]any{"userQuestion": "q"}

	resp := postJSON(t, ts.URL+"/chat", body, map[string]string{CorrelationHeader: "test-id-123"})
	resp.Body.Close()
	assert.Equal(t, "test-id-123", resp.Header.Get(CorrelationHeader))

	resp = postJSON(t, ts.URL+"/chat", body, nil)
	resp.Body.Close()
	generated := resp.Header.Get(CorrelationHeader)
	require.NotEmpty(t, generated)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
}

func TestChat_UpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rate limited", llm.ErrRateLimited, http.StatusTooManyRequests},
		{"upstream timeout", llm.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{"parse failure", llm.ErrResponseParse, http.StatusInternalServerError},
		{"unavailable", llm.ErrUnavailable, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeLLM{err: fmt.Errorf("wrapped: %w", tt.err)}, newFakeStore(), defaultCORS())

			resp := postJSON(t, ts.URL+"/chat", map[string]any{"userQuestion": "q"}, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]string
			decodeBody(t, resp, &body)
			assert.NotContains(t, body["error"], "wrapped", "internal detail must not leak")
			if tt.wantStatus == http.StatusGatewayTimeout {
				assert.Equal(t, "model", body["kind"])
			}
		})
	}
}

func TestSuggestions(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "one?\ntwo?\nthree?\nfour?"}, newFakeStore(), defaultCORS())

	resp := postJSON(t, ts.URL+"/suggestions", map[string]any{
		"major":        "CS",
		"subField":     "OS",
		"suggestCount": 2,
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string][]string
	decodeBody(t, resp, &body)
	assert.Equal(t, []string{"one?", "two?"}, body["suggestions"])
}

func TestSuggestions_MissingSubField(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())

	resp := postJSON(t, ts.URL+"/suggestions", map[string]any{"suggestCount": 2}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "subField", body["field"])
}

func TestChatStream(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "alpha  beta\ngamma"}, newFakeStore(), defaultCORS())

	resp, err := http.Get(ts.URL + "/chat/stream?question=hi&major=CS&sub_field=OS")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta gamma", string(body), "words separated by single spaces")
}

func TestChatStream_MissingQuestion(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())

	resp, err := http.Get(ts.URL + "/chat/stream?major=CS")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFAQ(t *testing.T) {
	st := newFakeStore()
	st.faqs["databases"] = []store.FAQ{{Question: "What is an index?", Answer: "A lookup structure."}}
	ts := newTestServer(t, &fakeLLM{answer: "x"}, st, defaultCORS())

	resp, err := http.Get(ts.URL + "/faq?subField=databases")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string][]store.FAQ
	decodeBody(t, resp, &body)
	require.Len(t, body["faqs"], 1)
	assert.Equal(t, "What is an index?", body["faqs"][0].Question)

	resp, err = http.Get(ts.URL + "/faq?subField=unknown")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	assert.Empty(t, body["faqs"])
}

func TestCORS_WildcardOrigin(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_ExplicitOriginList(t *testing.T) {
	cors := config.CORSConfig{Origins: "https://a.com, https://b.com", Methods: "GET,POST", Headers: "*"}
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), cors)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://b.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://b.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://evil.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardDowngradesCredentials(t *testing.T) {
	cors := config.CORSConfig{Origins: "*", Methods: "*", Headers: "*", AllowCredentials: true}
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), cors)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"),
		"credentials disabled when combined with wildcard origins")
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t, &fakeLLM{answer: "x"}, newFakeStore(), defaultCORS())

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
