package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := Connect(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()
	assert.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
}

func TestConnectUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}
