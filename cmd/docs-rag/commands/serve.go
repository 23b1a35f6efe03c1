package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/docs-rag/internal/interface/api"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// ServeAction はHTTP APIサーバを起動するコマンドのアクション
// --with-worker 指定時は取り込みワーカーも同一プロセスで動かす
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	logger := appCtx.Logger()
	cont := appCtx.Container

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:           logger,
		RAGService:       cont.RAGService,
		IngestionService: cont.IngestionService,
		DocumentStore:    cont.DocumentStore,
		Index:            cont.Index,
		Cache:            cont.Cache,
		Generator:        cont.Generator,
		Pool:             cont.Pool(),
		Environment:      appCtx.Config.AppEnv,
		ModelName:        appCtx.Config.OpenAI.LLMModel,
		EmbeddingModel:   appCtx.Config.OpenAI.EmbeddingModel,
		ChunkSize:        appCtx.Config.RAG.ChunkSize,
		TopK:             appCtx.Config.RAG.TopKResults,
		RateLimitCount:   appCtx.Config.API.RateLimitCount,
		RateLimitWindow:  appCtx.Config.API.RateLimitWindow,
	})
	if err != nil {
		return fmt.Errorf("APIサーバの初期化に失敗: %w", err)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = appCtx.Config.API.Addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		// SSEストリーミングがあるため WriteTimeout は設定しない
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	workerErrCh := make(chan error, 1)
	if cmd.Bool("with-worker") {
		go func() {
			workerErrCh <- cont.Worker.Run(workerCtx)
		}()
	}

	logger.Info("HTTPサーバを起動します",
		"addr", addr,
		"env", appCtx.Config.AppEnv,
		"with_worker", cmd.Bool("with-worker"),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTPサーバを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバの停止に失敗: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバが異常終了: %w", err)
	case err := <-workerErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("取り込みワーカーが異常終了: %w", err)
		}
		return nil
	}
}
