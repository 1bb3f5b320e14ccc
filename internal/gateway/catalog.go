package gateway

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"stock-ledger/internal/rpc"
)

// CatalogClient looks stocks up in the catalog service
type CatalogClient struct {
	conn    *grpc.ClientConn
	client  rpc.CatalogServiceClient
	timeout time.Duration
}

func NewCatalogClient(addr string, timeout time.Duration) (*CatalogClient, error) {
	conn, err := grpc.NewClient(addr, rpc.DialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed establishing a gRPC channel to the catalog at %s: %w", addr, err)
	}
	return &CatalogClient{conn: conn, client: rpc.NewCatalogServiceClient(conn), timeout: timeout}, nil
}

func (c *CatalogClient) Lookup(ctx context.Context, name string) (*rpc.LookupResponse, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Lookup(rpcCtx, &rpc.LookupRequest{StockName: name})
	if err != nil {
		return nil, fmt.Errorf("catalog lookup of %s failed: %w", name, err)
	}
	return resp, nil
}

func (c *CatalogClient) Close() error {
	return c.conn.Close()
}
