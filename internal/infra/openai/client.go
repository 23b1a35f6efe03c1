package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/docs-rag/internal/core/llm"
	"github.com/jinford/docs-rag/internal/platform/retry"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// defaultSystemContent はシステムプロンプト未指定時のフォールバック
	defaultSystemContent = "You are a helpful AI assistant."
)

// Client は OpenAI Chat Completions API を使用したテキスト生成クライアント
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
	policy  retry.Policy
	counter *TokenCounter
	logger  *slog.Logger
}

type clientOptions struct {
	model   string
	timeout time.Duration
	policy  *retry.Policy
	logger  *slog.Logger
	reqOpts []option.RequestOption
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		o.model = model
	}
}

// WithTimeout はAPI呼び出しのタイムアウトを上書きする
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithClientLogger はロガーを差し替える
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithClientRetryPolicy はリトライ方針を上書きする
func WithClientRetryPolicy(p retry.Policy) ClientOption {
	return func(o *clientOptions) {
		o.policy = &p
	}
}

// WithClientRequestOptions は追加のリクエストオプションを渡す
// （テストでのベースURL差し替えなど）
func WithClientRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(o *clientOptions) {
		o.reqOpts = append(o.reqOpts, opts...)
	}
}

// NewClient は新しい Client を作成する
// APIキーが空の場合は ErrAPIKeyNotSet を返す
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	policy := retry.DefaultPolicy(isRetryable)
	if options.policy != nil {
		policy = *options.policy
		if policy.Retryable == nil {
			policy.Retryable = isRetryable
		}
	}

	counter, err := NewTokenCounter(options.model)
	if err != nil {
		return nil, err
	}

	// SDK内蔵のリトライは無効化し、リトライ制御は retry.Policy に一元化する
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, options.reqOpts...)

	return &Client{
		client:  openai.NewClient(reqOpts...),
		model:   options.model,
		timeout: options.timeout,
		policy:  policy,
		counter: counter,
		logger:  options.logger,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// CountTokens はテキストのトークン数を返す
func (c *Client) CountTokens(text string) int {
	return c.counter.Count(text)
}

// Generate はチャット補完を実行する
// トークン数は推定せず、プロバイダが報告した実測値をそのまま返す
func (c *Client) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return llm.GenerateResponse{}, fmt.Errorf("%w: user message is empty", llm.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := c.buildParams(req, false)

	// リクエスト前にトークン数を計測してログに残す
	c.logger.InfoContext(ctx, "llm request",
		slog.String("model", c.model),
		slog.Int("input_tokens_estimate", c.countParamsTokens(params)),
	)

	completion, err := retry.Do(ctx, c.policy, func(ctx context.Context) (*openai.ChatCompletion, error) {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, classifyError(err)
		}
		return completion, nil
	})
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("chat completion failed: %w", wrapExhausted(err))
	}

	if len(completion.Choices) == 0 {
		return llm.GenerateResponse{}, fmt.Errorf("no completion choices returned")
	}

	resp := llm.GenerateResponse{
		Content:      completion.Choices[0].Message.Content,
		Model:        string(completion.Model),
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:  int(completion.Usage.TotalTokens),
		FinishReason: string(completion.Choices[0].FinishReason),
	}

	c.logger.InfoContext(ctx, "llm response",
		slog.Int("output_tokens", resp.OutputTokens),
		slog.Int("total_tokens", resp.TotalTokens),
		slog.Float64("cost_usd", resp.EstimatedCostUSD()),
		slog.String("finish_reason", resp.FinishReason),
	)

	return resp, nil
}

// GenerateStream は生成結果を断片単位でストリーミングする
// 返却するチャネルはストリーム終了時（正常・異常とも）にクローズされる
func (c *Client) GenerateStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamDelta, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, fmt.Errorf("%w: user message is empty", llm.ErrInvalidInput)
	}

	params := c.buildParams(req, true)
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	deltas := make(chan llm.StreamDelta)

	go func() {
		defer close(deltas)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case deltas <- llm.StreamDelta{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case deltas <- llm.StreamDelta{Err: fmt.Errorf("chat completion stream failed: %w", wrapExhausted(classifyError(err)))}:
			case <-ctx.Done():
			}
		}
	}()

	return deltas, nil
}

// buildParams はリクエストからAPIパラメータを組み立てる
// 検索済みコンテキストはシステムプロンプトに注入する
// ストリーミング時は指示文を省いた短いコンテキストブロックを使う
func (c *Client) buildParams(req llm.GenerateRequest, streaming bool) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" || len(req.ContextDocuments) > 0 {
		systemContent := req.SystemPrompt
		if systemContent == "" {
			systemContent = defaultSystemContent
		}

		if len(req.ContextDocuments) > 0 {
			contextStr := strings.Join(req.ContextDocuments, "\n\n---\n\n")
			if streaming {
				systemContent += fmt.Sprintf("\n\n## Retrieved Context\n%s\n", contextStr)
			} else {
				systemContent += fmt.Sprintf(`

## Retrieved Context
Use the following documents to answer the user's question.
If the answer is not in the context, say so clearly.

%s
`, contextStr)
			}
		}

		messages = append(messages, openai.SystemMessage(systemContent))
	}

	messages = append(messages, openai.UserMessage(req.UserMessage))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	return params
}

// countParamsTokens はリクエストメッセージの合計トークン数を概算する
func (c *Client) countParamsTokens(params openai.ChatCompletionNewParams) int {
	messages := make([]ChatMessage, 0, len(params.Messages))
	for _, m := range params.Messages {
		switch {
		case m.OfSystem != nil:
			messages = append(messages, ChatMessage{Role: "system", Content: m.OfSystem.Content.OfString.Value})
		case m.OfUser != nil:
			messages = append(messages, ChatMessage{Role: "user", Content: m.OfUser.Content.OfString.Value})
		}
	}
	return c.counter.CountMessages(messages)
}

// インターフェース実装の確認
var _ llm.Generator = (*Client)(nil)
