package postgres

import (
	"fmt"
	"strings"

	"github.com/jinford/docs-rag/internal/core/index"
)

// filterPredicate は検証済みのメタデータフィルタを表す
type filterPredicate struct {
	column string
	value  string
}

// filterableColumns はフィルタ式で参照できるカラム
var filterableColumns = map[string]struct{}{
	"source": {},
}

// parseFilter は "source=<値>" 形式のフィルタ式を解析する
// 不正な式はデータベースに問い合わせる前に ErrInvalidFilter で拒否される
func parseFilter(expr string) (filterPredicate, error) {
	key, value, ok := strings.Cut(expr, "=")
	if !ok {
		return filterPredicate{}, fmt.Errorf("%w: expected key=value, got %q", index.ErrInvalidFilter, expr)
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	if _, allowed := filterableColumns[key]; !allowed {
		return filterPredicate{}, fmt.Errorf("%w: field %q is not filterable", index.ErrInvalidFilter, key)
	}
	if value == "" {
		return filterPredicate{}, fmt.Errorf("%w: empty value for field %q", index.ErrInvalidFilter, key)
	}

	return filterPredicate{column: key, value: value}, nil
}
