package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/docs-rag/internal/core/rag"
)

// QueryAction はRAGパイプラインで質問に回答するコマンドのアクション
func QueryAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	params := rag.QueryParams{
		Question: cmd.String("question"),
		NoCache:  cmd.Bool("no-cache"),
	}
	if topK := cmd.Int("top-k"); topK > 0 {
		params.TopK = mo.Some(topK)
	}
	if filter := cmd.String("filter"); filter != "" {
		params.Filter = mo.Some(filter)
	}

	service := appCtx.Container.RAGService

	if cmd.Bool("stream") {
		return streamQuery(ctx, service, params)
	}

	resp, err := service.Query(ctx, params)
	if err != nil {
		return fmt.Errorf("質問応答に失敗: %w", err)
	}

	fmt.Println(resp.Answer)
	fmt.Println()
	renderSources(resp.Sources)
	renderMetadata(resp.Metadata)
	return nil
}

// streamQuery は回答断片を受信した順に標準出力へ流す
func streamQuery(ctx context.Context, service *rag.Service, params rag.QueryParams) error {
	result, err := service.QueryStream(ctx, params)
	if err != nil {
		return fmt.Errorf("質問応答に失敗: %w", err)
	}

	for delta := range result.Deltas {
		if delta.Err != nil {
			fmt.Println()
			return fmt.Errorf("ストリーミング中にエラー: %w", delta.Err)
		}
		fmt.Print(delta.Content)
	}
	fmt.Println()
	fmt.Println()

	renderSources(result.Sources)
	return nil
}

func renderSources(sources []rag.Source) {
	if len(sources) == 0 {
		fmt.Println("参照ソース: なし")
		return
	}

	fmt.Println("参照ソース:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tタイトル\tスコア")
	for _, s := range sources {
		fmt.Fprintf(w, "  %s\t%s\t%.4f\n", s.ID, s.Title, s.Score)
	}
	w.Flush()
}

func renderMetadata(md rag.Metadata) {
	fmt.Println()
	fmt.Printf("検索件数: %d / トークン: %d (入力 %d, 出力 %d) / 推定コスト: $%.6f\n",
		md.RetrievedDocuments, md.TotalTokens, md.InputTokens, md.OutputTokens, md.EstimatedCostUSD)
	if md.FromCache {
		fmt.Println("(キャッシュから応答)")
	}
}
