package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// DefaultTTL はエントリのデフォルト有効期限
const DefaultTTL = 3600 * time.Second

// Cache はクエリ文字列から計算済みレスポンスへのインメモリキャッシュ
// 複数のリクエストハンドラから並行に読み書きされることを前提とする
// プロセスローカルであり、複数インスタンス間の一貫性は保証しない
type Cache struct {
	mu         sync.RWMutex
	store      map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Option は Cache のオプション設定
type Option func(*Cache)

// WithDefaultTTL はデフォルトTTLを上書きする
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

// WithClock は時刻取得関数を差し替える（テスト用）
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New は新しいCacheを作成する
func New(opts ...Option) *Cache {
	c := &Cache{
		store:      make(map[string]entry),
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key はクエリ文字列からキャッシュキーを導出する
// 小文字化とトリムを行うため、大文字小文字や前後空白のみが異なる
// クエリは同じキーに正規化される
func Key(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// Get はキーに対応する値を返す。存在しない・期限切れの場合は ok=false
// エラーは返さない。期限切れエントリは遅延削除する
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, found := c.store[key]
	c.mu.RUnlock()

	if !found {
		return nil, false
	}

	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// 再確認してから削除（他のゴルーチンが上書きしている可能性がある）
		if cur, ok := c.store[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.store, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Set は値をキャッシュに保存する。同じキーの既存エントリは常に上書きされる
// ttl が0以下の場合はデフォルトTTLを使用する
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	c.store[key] = entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

// Delete はキーに対応するエントリを削除する
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Clear は全エントリを削除する
func (c *Cache) Clear() {
	c.mu.Lock()
	c.store = make(map[string]entry)
	c.mu.Unlock()
}

// Len は現在のエントリ数を返す（期限切れ未回収分を含む）
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
