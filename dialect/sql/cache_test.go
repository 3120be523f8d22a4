package sql

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryCache()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "b:x", []byte("2"), 0))
	require.NoError(t, m.Set(ctx, "b:y", []byte("3"), 0))
	assert.Equal(t, 3, m.Len())

	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(time.Minute)
	v, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, v, "entry expires at its deadline")
	assert.Equal(t, 2, m.Len())

	v, err = m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, m.DeletePrefix(ctx, "b:"))
	assert.Zero(t, m.Len())

	require.NoError(t, m.Set(ctx, "c", []byte("4"), 0))
	require.NoError(t, m.Delete(ctx, "c"))
	require.NoError(t, m.Set(ctx, "d", []byte("5"), 0))
	require.NoError(t, m.Clear(ctx))
	assert.Zero(t, m.Len())
}

func TestMemoryCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()
	b := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", b, 0))
	b[0] = 'x'
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestQueryCacheKey(t *testing.T) {
	cfg := Config{DSN: "sqlite::memory:", Username: "app"}
	params := map[string]any{":id": 1, ":name": "x"}
	key := func(cfg Config, query string, params map[string]any, mode fetchMode, dep string) string {
		k, err := queryCacheKey(cfg, query, params, nil, mode, dep)
		require.NoError(t, err)
		return k
	}
	base := key(cfg, "SELECT * FROM t WHERE id=:id", params, fetchAll, "")
	assert.True(t, strings.HasPrefix(base, queryCacheKeyPrefix))
	assert.Equal(t, base, key(cfg, "SELECT * FROM t WHERE id=:id", map[string]any{":name": "x", ":id": 1}, fetchAll, ""))

	assert.NotEqual(t, base, key(cfg, "SELECT * FROM t WHERE id=:id", params, fetchRow, ""))
	assert.NotEqual(t, base, key(cfg, "SELECT * FROM t WHERE id=:id", map[string]any{":id": 2, ":name": "x"}, fetchAll, ""))
	assert.NotEqual(t, base, key(cfg, "SELECT * FROM t WHERE id=:id", params, fetchAll, "posts"))
	assert.NotEqual(t, base, key(Config{DSN: cfg.DSN, Username: "other"}, "SELECT * FROM t WHERE id=:id", params, fetchAll, ""))
}

func TestUnmarshalLoose(t *testing.T) {
	b, err := msgpack.Marshal(&cachedResult{Rows: []Row{{"id": 7, "score": float32(1.5), "name": "x"}}, Found: true})
	require.NoError(t, err)
	var r cachedResult
	require.NoError(t, unmarshalLoose(b, &r))
	assert.True(t, r.Found)
	assert.Equal(t, []Row{{"id": int64(7), "score": float64(1.5), "name": "x"}}, r.Rows)
}
