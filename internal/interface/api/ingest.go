package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jinford/docs-rag/internal/core/index"
	"github.com/jinford/docs-rag/internal/core/ingestion"
)

// maxDocumentBytes は1リクエストで受け付けるドキュメントサイズの上限
const maxDocumentBytes = 10 << 20 // 10MiB

// ingestHandler は取り込み・削除のエンドポイント群を提供する
type ingestHandler struct {
	service    *ingestion.Service
	store      ingestion.DocumentStore
	idx        index.Index
	logger     *slog.Logger
	production bool
}

// ingestResponse は取り込み結果
type ingestResponse struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// ingest はドキュメント本体を受け取って保存し、即座に取り込む
// PUT /api/v1/documents/{name}
func (h *ingestHandler) ingest(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		writeError(w, http.StatusBadRequest, "invalid_request", "document name must be a plain file name")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}
	if len(body) > maxDocumentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "document exceeds size limit")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "document body is empty")
		return
	}

	// ワーカーと同じ置き場に保存してから取り込む
	writer, ok := h.store.(interface{ Root() string })
	if !ok {
		writeError(w, http.StatusNotImplemented, "not_supported", "document store does not accept uploads")
		return
	}
	if err := h.store.EnsureContainer(r.Context()); err != nil {
		h.writeIngestError(w, r, err)
		return
	}
	if err := os.WriteFile(filepath.Join(writer.Root(), name), body, 0o644); err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	chunks, err := h.service.IngestDocument(r.Context(), name)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Name: name, Chunks: chunks})
}

// deleteDocument は名前指定でドキュメントの全チャンクを削除する
// DELETE /api/v1/documents/{name}
func (h *ingestHandler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		writeError(w, http.StatusBadRequest, "invalid_request", "document name must be a plain file name")
		return
	}

	deleted, err := h.service.DeleteDocument(r.Context(), name, 0)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}

// deleteRequest は DELETE /api/v1/records のリクエストボディ
type deleteRequest struct {
	IDs []string `json:"ids"`
}

// deleteResponse は削除結果
type deleteResponse struct {
	Deleted int `json:"deleted"`
}

// deleteRecords は指定IDのチャンクをインデックスから削除する
func (h *ingestHandler) deleteRecords(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "ids is required")
		return
	}

	deleted, err := h.idx.Delete(r.Context(), req.IDs)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}

func (h *ingestHandler) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("ingest operation failed",
		slog.String("request_id", requestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)

	message := "ingest operation failed"
	if !h.production {
		message = fmt.Sprintf("%s: %v", message, err)
	}

	if errors.Is(err, index.ErrIndexUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", message)
		return
	}
	writeError(w, http.StatusInternalServerError, "ingest_failed", message)
}
