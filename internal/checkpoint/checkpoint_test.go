package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)

	stores := map[string]Store{
		"memory": NewMemory(),
		"redis":  redisStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.Done(ctx, NamespaceEmbeddings, []string{"a", "b"})
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, s.Commit(ctx, NamespaceEmbeddings, map[string][]byte{
				"a": []byte("[0.1,0.2]"),
			}))
			require.NoError(t, s.Commit(ctx, NamespaceCompanies, map[string][]byte{
				"AAPL": []byte("1"),
			}))

			got, err = s.Done(ctx, NamespaceEmbeddings, []string{"a", "b", "AAPL"})
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"a": []byte("[0.1,0.2]")}, got)

			require.NoError(t, s.Commit(ctx, NamespaceEmbeddings, map[string][]byte{
				"a": []byte("[0.3]"),
				"b": []byte("[0.4]"),
			}))
			got, err = s.Done(ctx, NamespaceEmbeddings, []string{"a", "b"})
			require.NoError(t, err)
			assert.Equal(t, []byte("[0.3]"), got["a"])
			assert.Equal(t, []byte("[0.4]"), got["b"])

			require.NoError(t, s.Reset(ctx, NamespaceEmbeddings))
			got, err = s.Done(ctx, NamespaceEmbeddings, []string{"a", "b"})
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = s.Done(ctx, NamespaceCompanies, []string{"AAPL"})
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestRedisStoreLayout(t *testing.T) {
	s, mr := newRedisStore(t)

	require.NoError(t, s.Commit(context.Background(), NamespaceCompanies, map[string][]byte{"MSFT": []byte("1")}))

	assert.Equal(t, "1", mr.HGet("checkpoint:companies", "MSFT"))
}

func TestRedisStoreEmptyInputs(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	got, err := s.Done(ctx, NamespaceEmbeddings, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, s.Commit(ctx, NamespaceEmbeddings, nil))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(addr, "")
	assert.Error(t, err)
}
