package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/docs-rag/internal/platform/config"
	"github.com/jinford/docs-rag/internal/platform/container"
	"github.com/jinford/docs-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer

	logger *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、依存関係を構築して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.FromEnvironment(cfg.AppEnv, cfg.LogLevel))

	cont, err := container.NewContainer(ctx, cfg,
		container.WithContainerLogger(appLogger),
	)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
		logger:    appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.logger != nil {
		return ac.logger
	}
	return slog.Default()
}
