package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/docs-rag/internal/core/llm"
	"github.com/jinford/docs-rag/internal/platform/retry"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewClientOptionsOverrideDefaults(t *testing.T) {
	client, err := NewClient("dummy-key", WithModel("gpt-4o-mini"))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", client.ModelName())
}

// chatRequest はテストサーバーが受け取るリクエストボディ
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

func newChatServer(t *testing.T, content string, captured *chatRequest) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4o",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     1000,
				"completion_tokens": 500,
				"total_tokens":      1500,
			},
		})
	}))
}

func TestGenerateReturnsProviderUsage(t *testing.T) {
	var captured chatRequest
	server := newChatServer(t, "RAG is retrieval augmented generation.", &captured)
	defer server.Close()

	client, err := NewClient("dummy-key",
		WithClientRequestOptions(option.WithBaseURL(server.URL)),
	)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), llm.GenerateRequest{
		UserMessage: "What is RAG?",
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	require.NoError(t, err)

	assert.Equal(t, "RAG is retrieval augmented generation.", resp.Content)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, 1000, resp.InputTokens)
	assert.Equal(t, 500, resp.OutputTokens)
	assert.Equal(t, 1500, resp.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.InDelta(t, 0.0125, resp.EstimatedCostUSD(), 1e-9)
}

func TestGenerateInjectsContextIntoSystemPrompt(t *testing.T) {
	var captured chatRequest
	server := newChatServer(t, "answer", &captured)
	defer server.Close()

	client, err := NewClient("dummy-key",
		WithClientRequestOptions(option.WithBaseURL(server.URL)),
	)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.GenerateRequest{
		UserMessage:      "What is chunking?",
		SystemPrompt:     "You are a documentation assistant.",
		ContextDocuments: []string{"[Document 1: guide]\nchunking splits text", "[Document 2: faq]\noverlap preserves continuity"},
	})
	require.NoError(t, err)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)

	system := captured.Messages[0].Content
	assert.Contains(t, system, "You are a documentation assistant.")
	assert.Contains(t, system, "## Retrieved Context")
	assert.Contains(t, system, "[Document 1: guide]")
	// コンテキストは区切り線で連結される
	assert.Contains(t, system, "chunking splits text\n\n---\n\n[Document 2: faq]")
}

func TestGenerateWithoutSystemPromptOrContext(t *testing.T) {
	var captured chatRequest
	server := newChatServer(t, "answer", &captured)
	defer server.Close()

	client, err := NewClient("dummy-key",
		WithClientRequestOptions(option.WithBaseURL(server.URL)),
	)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.GenerateRequest{
		UserMessage: "hello",
	})
	require.NoError(t, err)

	// システムメッセージは付与されない
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestGenerateRejectsBlankUserMessage(t *testing.T) {
	client, err := NewClient("dummy-key")
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.GenerateRequest{UserMessage: "   "})
	assert.ErrorIs(t, err, llm.ErrInvalidInput)
}

func TestGenerateRejectedErrorNotRetried(t *testing.T) {
	var requestCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client, err := NewClient("dummy-key",
		WithClientRequestOptions(option.WithBaseURL(server.URL)),
	)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.GenerateRequest{UserMessage: "hello"})
	assert.ErrorIs(t, err, llm.ErrProviderRejected)
	// SDK側のリトライも含めてHTTPリクエストは1回だけ
	assert.Equal(t, 1, requestCount)
}

func TestGenerateTransientErrorExhaustsRetries(t *testing.T) {
	var requestCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer server.Close()

	client, err := NewClient("dummy-key",
		WithClientRetryPolicy(retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		}),
		WithClientRequestOptions(option.WithBaseURL(server.URL)),
	)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), llm.GenerateRequest{UserMessage: "hello"})
	assert.ErrorIs(t, err, llm.ErrProviderUnavailable)
	// リトライ回数は retry.Policy だけが決める
	// SDK内蔵リトライが生きているとここが試行回数の掛け算になる
	assert.Equal(t, 3, requestCount)
}

func TestGenerateStreamDeliversDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")

		chunks := []string{"RAG ", "is ", "useful."}
		for _, content := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-test",
				"object":  "chat.completion.chunk",
				"created": 0,
				"model":   "gpt-4o",
				"choices": []map[string]any{
					{"index": 0, "delta": map[string]any{"content": content}},
				},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewClient("dummy-key",
		WithClientRequestOptions(option.WithBaseURL(server.URL)),
	)
	require.NoError(t, err)

	deltas, err := client.GenerateStream(context.Background(), llm.GenerateRequest{
		UserMessage: "What is RAG?",
	})
	require.NoError(t, err)

	var result string
	for delta := range deltas {
		require.NoError(t, delta.Err)
		result += delta.Content
	}

	assert.Equal(t, "RAG is useful.", result)
}

func TestGenerateStreamRejectsBlankUserMessage(t *testing.T) {
	client, err := NewClient("dummy-key")
	require.NoError(t, err)

	_, err = client.GenerateStream(context.Background(), llm.GenerateRequest{UserMessage: ""})
	assert.ErrorIs(t, err, llm.ErrInvalidInput)
}

func TestCountTokens(t *testing.T) {
	client, err := NewClient("dummy-key")
	require.NoError(t, err)

	assert.Greater(t, client.CountTokens("What is retrieval augmented generation?"), 0)
	assert.Equal(t, 0, client.CountTokens(""))
}
