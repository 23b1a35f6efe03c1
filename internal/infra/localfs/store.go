package localfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jinford/docs-rag/internal/core/ingestion"
)

// Store はローカルディレクトリをドキュメント置き場として扱う
// core/ingestion.DocumentStore の実装
type Store struct {
	root string
}

// NewStore は root 配下をドキュメント置き場とする Store を返す
func NewStore(root string) *Store {
	return &Store{root: root}
}

var _ ingestion.DocumentStore = (*Store)(nil)

// Root はドキュメント置き場のパスを返す
func (s *Store) Root() string {
	return s.root
}

// EnsureContainer はディレクトリが存在しない場合のみ作成する（冪等）
func (s *Store) EnsureContainer(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	return nil
}

// List は配下の全ドキュメントを名前順で返す
// 隠しファイルと隠しディレクトリは無視する
// サブディレクトリ内のファイルはスラッシュ区切りの相対パスで報告される
func (s *Store) List(ctx context.Context) ([]ingestion.DocumentInfo, error) {
	var docs []ingestion.DocumentInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if strings.HasPrefix(d.Name(), ".") && path != s.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		docs = append(docs, ingestion.DocumentInfo{
			Name:         filepath.ToSlash(rel),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Download はドキュメントの内容を読み込む
// ディレクトリ外へのパストラバーサルは拒否される
func (s *Store) Download(_ context.Context, name string) ([]byte, error) {
	path := filepath.Join(s.root, filepath.FromSlash(name))

	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("invalid document name: %s", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}
	return data, nil
}
