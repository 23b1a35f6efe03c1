package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

// WorkerAction はドキュメント取り込みワーカーを起動するコマンドのアクション
// --once 指定時は1回スキャンして終了する
func WorkerAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	logger := appCtx.Logger()
	cont := appCtx.Container

	if cmd.Bool("once") {
		if err := cont.Index.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("スキーマの作成に失敗: %w", err)
		}
		stats, err := cont.Worker.ScanOnce(ctx)
		if err != nil {
			return fmt.Errorf("スキャンに失敗: %w", err)
		}
		logger.Info("スキャンが完了しました",
			"scanned", stats.Scanned,
			"new", stats.New,
			"chunks_created", stats.ChunksCreated,
		)
		return nil
	}

	logger.Info("取り込みワーカーを起動します",
		"docs_dir", appCtx.Config.Ingestion.DocsDir,
		"poll_interval", appCtx.Config.Ingestion.PollInterval.String(),
	)

	if err := cont.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("取り込みワーカーが異常終了: %w", err)
	}
	return nil
}

// IndexInitAction は検索インデックスのスキーマを作成するコマンドのアクション
func IndexInitAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Index.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("スキーマの作成に失敗: %w", err)
	}

	appCtx.Logger().Info("スキーマとインデックスを作成しました")
	return nil
}
