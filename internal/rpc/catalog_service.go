package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const catalogServiceName = "catalog.CatalogService"

const (
	CatalogServiceLookupMethod = "/" + catalogServiceName + "/Lookup"
	CatalogServiceTradeMethod  = "/" + catalogServiceName + "/Trade"
)

// CatalogServiceServer is implemented by the catalog
type CatalogServiceServer interface {
	Lookup(context.Context, *LookupRequest) (*LookupResponse, error)
	Trade(context.Context, *TradeRequest) (*TradeResponse, error)
}

var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: catalogServiceName,
	HandlerType: (*CatalogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Lookup",
			Handler:    unaryHandler(CatalogServiceLookupMethod, CatalogServiceServer.Lookup),
		},
		{
			MethodName: "Trade",
			Handler:    unaryHandler(CatalogServiceTradeMethod, CatalogServiceServer.Trade),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalog.proto",
}

func RegisterCatalogServiceServer(s grpc.ServiceRegistrar, srv CatalogServiceServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

type CatalogServiceClient interface {
	Lookup(ctx context.Context, in *LookupRequest, opts ...grpc.CallOption) (*LookupResponse, error)
	Trade(ctx context.Context, in *TradeRequest, opts ...grpc.CallOption) (*TradeResponse, error)
}

type catalogServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogServiceClient(cc grpc.ClientConnInterface) CatalogServiceClient {
	return &catalogServiceClient{cc: cc}
}

func (c *catalogServiceClient) Lookup(ctx context.Context, in *LookupRequest, opts ...grpc.CallOption) (*LookupResponse, error) {
	out := new(LookupResponse)
	if err := c.cc.Invoke(ctx, CatalogServiceLookupMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *catalogServiceClient) Trade(ctx context.Context, in *TradeRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	out := new(TradeResponse)
	if err := c.cc.Invoke(ctx, CatalogServiceTradeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
