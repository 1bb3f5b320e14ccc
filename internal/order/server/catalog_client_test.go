package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-ledger/internal/catalog"
	"stock-ledger/internal/order"
)

func TestCatalogClient_Trade(t *testing.T) {
	service := catalog.NewService(catalog.Config{}, catalog.New([]catalog.Stock{{Name: "GameStart", Price: 15.99, Quantity: 5}}), nil, nil)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go service.Serve(lis)
	defer service.GracefulShutdown()

	client, err := NewCatalogClient(lis.Addr().String(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()

	t.Run("accepted trade", func(t *testing.T) {
		assert.NoError(t, client.Trade(ctx, "GameStart", order.Buy, 5))
	})

	t.Run("not enough stock", func(t *testing.T) {
		err := client.Trade(ctx, "GameStart", order.Buy, 1)
		assert.ErrorIs(t, err, order.ErrInsufficientStock)
		assert.True(t, order.IsRejected(err))
	})

	t.Run("unlisted stock", func(t *testing.T) {
		assert.ErrorIs(t, client.Trade(ctx, "AAPL", order.Sell, 1), order.ErrUnknownInstrument)
	})

	t.Run("unreachable catalog is not a rejection", func(t *testing.T) {
		closed, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := closed.Addr().String()
		require.NoError(t, closed.Close())

		down, err := NewCatalogClient(addr, 200*time.Millisecond)
		require.NoError(t, err)
		defer down.Close()

		err = down.Trade(ctx, "GameStart", order.Sell, 1)
		require.Error(t, err)
		assert.False(t, order.IsRejected(err))
	})
}
