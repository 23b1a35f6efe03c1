package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/jinford/docs-rag/internal/core/ingestion"
)

// IngestAction は指定ファイルをドキュメント置き場へコピーして取り込む
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	file := cmd.String("file")

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cont := appCtx.Container

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	if err := cont.Index.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("スキーマの作成に失敗: %w", err)
	}
	if err := cont.DocumentStore.EnsureContainer(ctx); err != nil {
		return fmt.Errorf("ドキュメント置き場の作成に失敗: %w", err)
	}

	// ワーカーの監視対象と同じ置き場にコピーしてから取り込む
	name := filepath.Base(file)
	writer, ok := cont.DocumentStore.(interface{ Root() string })
	if !ok {
		return fmt.Errorf("このドキュメントストアはCLIからの取り込みに対応していません")
	}
	if err := os.WriteFile(filepath.Join(writer.Root(), name), data, 0o644); err != nil {
		return fmt.Errorf("ファイルのコピーに失敗: %w", err)
	}

	chunks, err := cont.IngestionService.IngestDocument(ctx, name)
	if err != nil {
		return fmt.Errorf("取り込みに失敗: %w", err)
	}

	fmt.Printf("取り込み完了: %s (ID: %s, チャンク数: %d)\n", name, ingestion.DocumentID(name), chunks)
	return nil
}

// DeleteAction はドキュメントをインデックスから削除する
func DeleteAction(ctx context.Context, cmd *cli.Command) error {
	name := cmd.String("name")

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	deleted, err := appCtx.Container.IngestionService.DeleteDocument(ctx, name, 0)
	if err != nil {
		return fmt.Errorf("削除に失敗: %w", err)
	}

	fmt.Printf("削除完了: %s (削除チャンク数: %d)\n", name, deleted)
	return nil
}
