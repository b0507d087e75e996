package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireUserAuth("clinic", "secret")

	rdb, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr(), Username: "clinic", Password: "secret"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	assert.Equal(t, 10, rdb.Options().PoolSize)

	_, err = NewRedisClient(context.Background(), Options{Addr: mr.Addr(), Username: "clinic", Password: "wrong"})
	assert.ErrorContains(t, err, "ping redis")
}
