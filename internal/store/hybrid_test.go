package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestHybrid wires the store to miniredis and an in-memory Badger.
func newTestHybrid(t *testing.T) (*HybridStore, *miniredis.Miniredis, *badger.DB) {
	t.Helper()
	mr := miniredis.RunT(t)

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := newHybridStore(rdb, db, zap.NewNop())
	t.Cleanup(st.Close)
	return st, mr, db
}

func TestHybridStore_Create_SplitsMetadataAndContent(t *testing.T) {
	st, mr, db := newTestHybrid(t)
	ctx := context.Background()

	p, err := st.Create(ctx, "Hello", "<big body>", "Alice")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ID())

	order, err := mr.List(keyOrder)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, order)

	val, err := mr.Get("post:1")
	require.NoError(t, err)
	var meta postMeta
	require.NoError(t, json.Unmarshal([]byte(val), &meta))
	assert.Equal(t, "Hello", meta.Title)
	assert.Empty(t, meta.Content, "Redis should NOT store the content")

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("post:1"))
		if err != nil {
			return err
		}
		body, _ := item.ValueCopy(nil)
		assert.Equal(t, "<big body>", string(body))
		return nil
	})
	assert.NoError(t, err)
}

func TestHybridStore_Lifecycle(t *testing.T) {
	st, _, _ := newTestHybrid(t)
	ctx := context.Background()

	_, err := st.Create(ctx, "Hello", "World", "Alice")
	require.NoError(t, err)

	got, err := st.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "World", got.Content())

	updated, err := st.Update(ctx, 1, "Hi", "Earth")
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Author())

	got, err = st.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hi", got.Title())
	assert.Equal(t, "Earth", got.Content())
	assert.False(t, got.UpdatedAt().Before(got.CreatedAt()))

	require.NoError(t, st.Delete(ctx, 1))
	_, err = st.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, 1), ErrNotFound)
	_, err = st.Update(ctx, 1, "x", "y")
	assert.ErrorIs(t, err, ErrNotFound)

	next, err := st.Create(ctx, "Again", "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, next.ID())
}

func TestHybridStore_AllAndSearchKeepInsertionOrder(t *testing.T) {
	st, _, _ := newTestHybrid(t)
	ctx := context.Background()
	for _, title := range []string{"gamma", "alpha", "beta"} {
		_, err := st.Create(ctx, title, "shared body", "x")
		require.NoError(t, err)
	}
	require.NoError(t, st.Delete(ctx, 2))

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "gamma", all[0].Title())
	assert.Equal(t, "beta", all[1].Title())

	res, err := st.Search(ctx, "SHARED")
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = st.Search(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestHybridStore_RedisOnlyKeepsContentInRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	st, err := NewHybridStore(mr.Addr(), "", zap.NewNop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = st.Create(ctx, "t", "body in redis", "a")
	require.NoError(t, err)

	val, err := mr.Get("post:1")
	require.NoError(t, err)
	assert.Contains(t, val, "body in redis")

	got, err := st.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "body in redis", got.Content())
}

func TestHybridStore_ConnectFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewHybridStore(addr, "", zap.NewNop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestHybridStore_RejectsMultiline(t *testing.T) {
	st, mr, _ := newTestHybrid(t)

	_, err := st.Create(context.Background(), "ok", "a\nb", "")
	assert.ErrorIs(t, err, ErrMultiline)
	assert.False(t, mr.Exists(keyCounter), "no id should be allocated")
}

func TestHybridStore_ViewAndPatch(t *testing.T) {
	st, _, _ := newTestHybrid(t)
	ctx := context.Background()
	_, err := st.Create(ctx, "Title", "Content", "Author")
	require.NoError(t, err)

	content := "Patched"
	p, err := st.Patch(ctx, 1, nil, &content)
	require.NoError(t, err)
	assert.Equal(t, "Title", p.Title())

	view, err := st.View(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Title", view.Title())
	assert.Equal(t, "Patched", view.Content())

	_, err = st.View(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Patch(ctx, 9, nil, &content)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHybridStore_CloseTwice(t *testing.T) {
	st, _, _ := newTestHybrid(t)

	st.Close()
	assert.NotPanics(t, st.Close)
}
