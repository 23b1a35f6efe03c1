package ingestion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanOnceIngestsNewDocuments(t *testing.T) {
	store := newStubStore()
	store.put("a.txt", "First document with enough content to produce a chunk.", time.Unix(100, 0))
	store.put("b.txt", "Second document with enough content to produce a chunk.", time.Unix(200, 0))
	idx := &stubIndex{}

	worker := NewWorker(newTestService(t, store, idx), store)
	stats, err := worker.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, 2, stats.ChunksCreated)
}

func TestScanOnceSkipsProcessedDocuments(t *testing.T) {
	store := newStubStore()
	store.put("a.txt", "Document content for the fingerprint test.", time.Unix(100, 0))
	idx := &stubIndex{}

	worker := NewWorker(newTestService(t, store, idx), store)

	stats, err := worker.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)

	// 同じフィンガープリントのドキュメントは再処理されない
	stats, err = worker.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Zero(t, stats.New)
}

func TestScanOnceReprocessesModifiedDocuments(t *testing.T) {
	store := newStubStore()
	store.put("a.txt", "Original content of the watched document.", time.Unix(100, 0))
	idx := &stubIndex{}

	worker := NewWorker(newTestService(t, store, idx), store)

	_, err := worker.ScanOnce(context.Background())
	require.NoError(t, err)

	// 最終更新時刻が変わるとフィンガープリントも変わる
	store.put("a.txt", "Updated content of the watched document.", time.Unix(300, 0))

	stats, err := worker.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)
}

func TestScanOnceToleratesPerDocumentFailure(t *testing.T) {
	store := newStubStore()
	store.put("bad.txt", "Content that will fail to index.", time.Unix(100, 0))
	idx := &stubIndex{upsertErr: fmt.Errorf("index down")}

	worker := NewWorker(newTestService(t, store, idx), store)
	stats, err := worker.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Scanned)
	assert.Zero(t, stats.New)

	// 失敗したドキュメントは処理済みにならず、次のサイクルで再試行される
	idx.upsertErr = nil
	stats, err = worker.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)
}

func TestScanOnceListFailure(t *testing.T) {
	store := newStubStore()
	store.listErr = fmt.Errorf("storage unreachable")

	worker := NewWorker(newTestService(t, store, &stubIndex{}), store)
	_, err := worker.ScanOnce(context.Background())
	assert.ErrorContains(t, err, "storage unreachable")
}

func TestRunEnsuresSchemaAndStopsOnCancel(t *testing.T) {
	store := newStubStore()
	idx := &stubIndex{}

	worker := NewWorker(newTestService(t, store, idx), store,
		WithPollInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := worker.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, idx.schemaCalls)
}
