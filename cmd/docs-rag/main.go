package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/docs-rag/cmd/docs-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "docs-rag",
		Usage: "社内ドキュメント向け RAG パイプライン（検索・回答生成・取り込み）",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "HTTP APIサーバを起動",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "リッスンアドレス（省略時は環境変数またはデフォルトの :8080）",
					},
					&cli.BoolFlag{
						Name:  "with-worker",
						Usage: "取り込みワーカーを同一プロセスで起動",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "worker",
				Usage: "ドキュメント取り込みワーカーを起動",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.BoolFlag{
						Name:  "once",
						Usage: "1回スキャンして終了（常駐しない）",
					},
				},
				Action: commands.WorkerAction,
			},
			{
				Name:  "index",
				Usage: "検索インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "init",
						Usage: "スキーマとインデックスを作成（冪等）",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.IndexInitAction,
					},
				},
			},
			{
				Name:  "ingest",
				Usage: "ドキュメントを取り込んでインデックス化",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "取り込むファイルのパス",
						Required: true,
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "delete",
				Usage: "ドキュメントをインデックスから削除",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "削除するドキュメント名",
						Required: true,
					},
				},
				Action: commands.DeleteAction,
			},
			{
				Name:  "query",
				Usage: "RAGパイプラインで質問に回答",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "検索する件数（省略時は設定値）",
					},
					&cli.StringFlag{
						Name:  "filter",
						Usage: "検索フィルタ（例: source=manual.pdf）",
					},
					&cli.BoolFlag{
						Name:  "no-cache",
						Usage: "レスポンスキャッシュを使用しない",
					},
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "回答をストリーミング表示",
					},
				},
				Action: commands.QueryAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("エラー: %v", err)
	}
}
