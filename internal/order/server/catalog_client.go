package server

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"stock-ledger/internal/catalog"
	"stock-ledger/internal/order"
	"stock-ledger/internal/rpc"
)

// CatalogClient executes trades against the catalog service over gRPC. It implements ledger.Catalog.
type CatalogClient struct {
	conn    *grpc.ClientConn
	client  rpc.CatalogServiceClient
	timeout time.Duration
}

// NewCatalogClient opens a channel to the catalog at addr. The channel connects lazily.
func NewCatalogClient(addr string, timeout time.Duration) (*CatalogClient, error) {
	conn, err := grpc.NewClient(addr, rpc.DialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed establishing a gRPC channel to the catalog at %s: %w", addr, err)
	}

	return &CatalogClient{
		conn:    conn,
		client:  rpc.NewCatalogServiceClient(conn),
		timeout: timeout,
	}, nil
}

// Trade asks the catalog to execute a trade. A 404 answer is a rejection, a transport failure is returned as is.
func (c *CatalogClient) Trade(ctx context.Context, name string, tradeType order.TradeType, quantity uint64) error {
	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Trade(rpcCtx, &rpc.TradeRequest{Name: name, Type: string(tradeType), Quantity: int64(quantity)})
	if err != nil {
		return fmt.Errorf("catalog trade of %d %s failed: %w", quantity, name, err)
	}

	switch {
	case resp.Code == rpc.CodeOK:
		return nil
	case resp.Message == catalog.MessageStockNotFound:
		return fmt.Errorf("%w: catalog does not list %q", order.ErrUnknownInstrument, name)
	default:
		return fmt.Errorf("%w: %s %d %s refused by the catalog", order.ErrInsufficientStock, tradeType, quantity, name)
	}
}

// Close closes the catalog channel
func (c *CatalogClient) Close() error {
	return c.conn.Close()
}
