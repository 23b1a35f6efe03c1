package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/jinford/docs-rag/internal/core/llm"
)

// chatTemperature は素通しチャットの生成温度
// RAG回答より高めで、接続確認用途の自然な応答を返す
const chatTemperature = 0.7

// chatHandler は検索を介さないLLM直接チャットのエンドポイントを提供する
// プロバイダ疎通の確認用
type chatHandler struct {
	generator  llm.Generator
	logger     *slog.Logger
	production bool
}

// chatRequest は POST /api/v1/chat のリクエストボディ
type chatRequest struct {
	Message string `json:"message"`
}

// chatResponse は POST /api/v1/chat のレスポンスボディ
type chatResponse struct {
	Answer           string     `json:"answer"`
	Model            string     `json:"model"`
	Tokens           chatTokens `json:"tokens"`
	EstimatedCostUSD float64    `json:"estimated_cost_usd"`
}

type chatTokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("message exceeds %d characters", maxQueryLength))
		return
	}

	resp, err := h.generator.Generate(r.Context(), llm.GenerateRequest{
		UserMessage: req.Message,
		Temperature: chatTemperature,
	})
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Answer: resp.Content,
		Model:  resp.Model,
		Tokens: chatTokens{
			Input:  resp.InputTokens,
			Output: resp.OutputTokens,
			Total:  resp.TotalTokens,
		},
		EstimatedCostUSD: resp.EstimatedCostUSD(),
	})
}

func (h *chatHandler) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("chat failed",
		slog.String("request_id", requestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)

	message := "chat failed"
	if !h.production {
		message = fmt.Sprintf("%s: %v", message, err)
	}

	switch {
	case errors.Is(err, llm.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, llm.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", message)
	default:
		writeError(w, http.StatusInternalServerError, "chat_failed", message)
	}
}
