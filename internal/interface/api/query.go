package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/samber/mo"

	"github.com/jinford/docs-rag/internal/core/index"
	"github.com/jinford/docs-rag/internal/core/llm"
	"github.com/jinford/docs-rag/internal/core/rag"
)

const maxQueryLength = 2000

// queryHandler はRAG質問応答のエンドポイント群を提供する
type queryHandler struct {
	service    *rag.Service
	logger     *slog.Logger
	production bool
}

// queryRequest は POST /api/v1/query のリクエストボディ
type queryRequest struct {
	Query          string  `json:"query"`
	TopK           *int    `json:"top_k,omitempty"`
	Filter         *string `json:"filter,omitempty"`
	IncludeSources *bool   `json:"include_sources,omitempty"`
	NoCache        bool    `json:"no_cache,omitempty"`
}

// queryResponse は POST /api/v1/query のレスポンスボディ
type queryResponse struct {
	Answer   string       `json:"answer"`
	Sources  []rag.Source `json:"sources"`
	Metadata rag.Metadata `json:"metadata"`
}

func (h *queryHandler) toParams(req queryRequest) (rag.QueryParams, error) {
	if req.Query == "" {
		return rag.QueryParams{}, fmt.Errorf("%w: query is required", llm.ErrInvalidInput)
	}
	// 上限は文字数で数える。バイト数だとマルチバイトのクエリが不当に短く制限される
	if utf8.RuneCountInString(req.Query) > maxQueryLength {
		return rag.QueryParams{}, fmt.Errorf("%w: query exceeds %d characters", llm.ErrInvalidInput, maxQueryLength)
	}

	params := rag.QueryParams{
		Question: req.Query,
		NoCache:  req.NoCache,
	}
	if req.TopK != nil {
		if *req.TopK < 1 || *req.TopK > 20 {
			return rag.QueryParams{}, fmt.Errorf("%w: top_k must be in [1, 20]", llm.ErrInvalidInput)
		}
		params.TopK = mo.Some(*req.TopK)
	}
	if req.Filter != nil && *req.Filter != "" {
		params.Filter = mo.Some(*req.Filter)
	}
	return params, nil
}

// query は RAGパイプラインを実行して回答を返す
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	params, err := h.toParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := h.service.Query(r.Context(), params)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	sources := resp.Sources
	if req.IncludeSources != nil && !*req.IncludeSources {
		sources = []rag.Source{}
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:   resp.Answer,
		Sources:  sources,
		Metadata: resp.Metadata,
	})
}

// stream は回答をServer-Sent Eventsでストリーミングする
// 検索ソースを sources イベントで先に送り、回答断片を delta イベントで流す
func (h *queryHandler) stream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	params, err := h.toParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported")
		return
	}

	result, err := h.service.QueryStream(r.Context(), params)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sourcesJSON, _ := json.Marshal(result.Sources)
	fmt.Fprintf(w, "event: sources\ndata: %s\n\n", sourcesJSON)
	flusher.Flush()

	for delta := range result.Deltas {
		if delta.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", h.publicMessage(delta.Err))
			flusher.Flush()
			return
		}

		payload, _ := json.Marshal(map[string]string{"content": delta.Content})
		fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// writeQueryError はRAGパイプラインの失敗をHTTPステータスへ写像する
// 本番環境では内部詳細を抑制した不透明なメッセージを返す
func (h *queryHandler) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("query failed",
		slog.String("request_id", requestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)

	switch {
	case errors.Is(err, llm.ErrInvalidInput), errors.Is(err, index.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, llm.ErrProviderUnavailable), errors.Is(err, index.ErrIndexUnavailable):
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", h.publicMessage(err))
	default:
		writeError(w, http.StatusInternalServerError, "query_failed", h.publicMessage(err))
	}
}

// publicMessage は環境に応じてエラー詳細の露出を制御する
func (h *queryHandler) publicMessage(err error) string {
	if h.production {
		return "query processing failed"
	}
	return fmt.Sprintf("query processing failed: %v", err)
}
