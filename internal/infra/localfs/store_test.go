package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureContainerIsIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "docs")
	store := NewStore(root)

	require.NoError(t, store.EnsureContainer(context.Background()))
	require.NoError(t, store.EnsureContainer(context.Background()))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListReturnsDocumentsSortedByName(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "c.txt"), []byte("c"), 0o644))

	store := NewStore(root)
	docs, err := store.List(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		names = append(names, doc.Name)
		assert.False(t, doc.LastModified.IsZero())
	}
	assert.Equal(t, []string{"a.md", "b.txt", "sub/c.txt"}, names)
}

func TestListSkipsHiddenFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "config"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.txt"), []byte("x"), 0o644))

	store := NewStore(root)
	docs, err := store.List(context.Background())
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "visible.txt", docs[0].Name)
}

func TestDownload(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.txt"), []byte("hello"), 0o644))

	store := NewStore(root)
	data, err := store.Download(context.Background(), "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestDownloadRejectsPathTraversal(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Download(context.Background(), "../outside.txt")
	assert.Error(t, err)
}

func TestDownloadMissingDocument(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Download(context.Background(), "missing.txt")
	assert.Error(t, err)
}
