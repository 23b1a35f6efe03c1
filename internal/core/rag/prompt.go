package rag

import (
	"fmt"

	"github.com/jinford/docs-rag/internal/core/index"
)

// SystemPrompt はRAG質問応答のデフォルトシステムプロンプト
const SystemPrompt = `You are a knowledgeable AI assistant that answers questions based on provided documentation.

## Instructions:
1. Answer ONLY based on the retrieved context provided below
2. If the context doesn't contain enough information, say: "I don't have enough information in the documentation to answer this question."
3. When citing information, reference the source document
4. Be concise but thorough
5. Use bullet points or numbered lists for complex answers
6. If asked about code, provide examples when available in context

## Response Format:
- Start with a direct answer
- Provide supporting details
- Cite sources in [brackets]
- End with relevant caveats if any

## Important:
- Never make up information not in the context
- If partially relevant info exists, acknowledge the limitation
- Maintain a helpful, professional tone
`

// excerptLength はソース引用の抜粋の最大文字数
const excerptLength = 200

// buildContext は検索結果からLLMに渡すコンテキスト文書列と
// 引用リストを構築する。順序は検索結果のランキングを保持する
func buildContext(results []*index.SearchResult) (docs []string, sources []Source) {
	docs = make([]string, 0, len(results))
	sources = make([]Source, 0, len(results))

	for i, r := range results {
		label := r.Title
		if label == "" {
			label = r.Source
		}
		if label == "" {
			label = "Unknown"
		}

		docs = append(docs, fmt.Sprintf("[Document %d: %s]\n%s", i+1, label, r.Content))
		sources = append(sources, Source{
			ID:      r.ID,
			Title:   r.Title,
			Source:  r.Source,
			Score:   r.Score,
			Excerpt: excerpt(r.Content),
		})
	}

	return docs, sources
}

// excerpt は本文の先頭を抜粋する。超過時は省略記号を付ける
func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLength {
		return content
	}
	return string(runes[:excerptLength]) + "..."
}
