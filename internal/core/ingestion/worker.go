package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultPollInterval はデフォルトのポーリング間隔
	DefaultPollInterval = 30 * time.Second
)

// Worker はドキュメントストアを監視して新規・更新ドキュメントを取り込む
// 処理済みドキュメントは「名前:最終更新時刻」のフィンガープリントで
// 記憶するため、更新されたドキュメントは再取り込みされる
type Worker struct {
	service      *Service
	store        DocumentStore
	pollInterval time.Duration
	processed    map[string]struct{}
	logger       *slog.Logger
}

// WorkerOption は Worker のオプション設定
type WorkerOption func(*Worker)

// WithWorkerLogger はロガーを差し替える
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

// WithPollInterval はポーリング間隔を上書きする
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// NewWorker は新しい Worker を作成する
func NewWorker(service *Service, store DocumentStore, opts ...WorkerOption) *Worker {
	w := &Worker{
		service:      service,
		store:        store,
		pollInterval: DefaultPollInterval,
		processed:    make(map[string]struct{}),
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// fingerprint は処理済み判定に使うキーを組み立てる
func fingerprint(doc DocumentInfo) string {
	return fmt.Sprintf("%s:%s", doc.Name, doc.LastModified.UTC().Format(time.RFC3339Nano))
}

// ScanOnce はストアを1回スキャンし、未処理のドキュメントを取り込む
// ドキュメント単位の失敗はログに残してスキャンを継続する
func (w *Worker) ScanOnce(ctx context.Context) (ScanStats, error) {
	var stats ScanStats

	docs, err := w.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list documents: %w", err)
	}

	for _, doc := range docs {
		stats.Scanned++

		key := fingerprint(doc)
		if _, done := w.processed[key]; done {
			continue
		}

		chunks, err := w.service.IngestDocument(ctx, doc.Name)
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to process document",
				slog.String("name", doc.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if chunks == 0 {
			continue
		}

		w.processed[key] = struct{}{}
		stats.New++
		stats.ChunksCreated += chunks
	}

	return stats, nil
}

// Run はポーリングループを開始し、ctx がキャンセルされるまで実行する
// スキャンの失敗はループを止めず、次のサイクルで再試行される
func (w *Worker) Run(ctx context.Context) error {
	if err := w.service.idx.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure index schema: %w", err)
	}
	if err := w.store.EnsureContainer(ctx); err != nil {
		return fmt.Errorf("failed to ensure document container: %w", err)
	}

	w.logger.InfoContext(ctx, "starting poll loop",
		slog.Duration("interval", w.pollInterval),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		stats, err := w.ScanOnce(ctx)
		switch {
		case err != nil:
			w.logger.ErrorContext(ctx, "scan failed", slog.String("error", err.Error()))
		case stats.New > 0:
			w.logger.InfoContext(ctx, "poll cycle complete",
				slog.Int("scanned", stats.Scanned),
				slog.Int("new", stats.New),
				slog.Int("chunks_created", stats.ChunksCreated),
			)
		default:
			w.logger.DebugContext(ctx, "poll cycle, no new documents")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
