package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"stock-ledger/internal"
)

// requestIDCatalog echoes the request id it saw in the Lookup message field
type requestIDCatalog struct{}

func (requestIDCatalog) Lookup(ctx context.Context, _ *LookupRequest) (*LookupResponse, error) {
	return &LookupResponse{Code: CodeOK, Message: internal.RequestIDOr(ctx, "")}, nil
}

func (requestIDCatalog) Trade(context.Context, *TradeRequest) (*TradeResponse, error) {
	return &TradeResponse{Code: CodeOK}, nil
}

func TestRequestID_Propagation(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer(ServerOptions()...)
	RegisterCatalogServiceServer(srv, requestIDCatalog{})
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), DialOptions()...)
	require.NoError(t, err)
	defer conn.Close()
	client := NewCatalogServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t.Run("forwards the caller's id", func(t *testing.T) {
		resp, err := client.Lookup(internal.WithRequestID(ctx, "req-42"), &LookupRequest{StockName: "AAPL"})
		require.NoError(t, err)
		assert.Equal(t, "req-42", resp.Message)
	})

	t.Run("generates an id when none is sent", func(t *testing.T) {
		resp, err := client.Lookup(ctx, &LookupRequest{StockName: "AAPL"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Message)
		assert.NotEqual(t, "req-42", resp.Message)
	})
}
