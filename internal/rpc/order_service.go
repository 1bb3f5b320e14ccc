package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const orderServiceName = "order.OrderService"

// Full method names of OrderService
const (
	OrderServiceOrderMethod           = "/" + orderServiceName + "/Order"
	OrderServiceGetOrderDetailsMethod = "/" + orderServiceName + "/GetOrderDetails"
	OrderServiceHeartbeatMethod       = "/" + orderServiceName + "/Heartbeat"
	OrderServiceNotifyReplicaMethod   = "/" + orderServiceName + "/NotifyReplica"
	OrderServiceReplicateOrderMethod  = "/" + orderServiceName + "/ReplicateOrder"
	OrderServiceSyncUpMethod          = "/" + orderServiceName + "/SyncUp"
)

// OrderServiceServer is implemented by every order replica
type OrderServiceServer interface {
	// Order commits a trade. Only meaningful on the replica the caller selected as leader.
	Order(context.Context, *OrderRequest) (*OrderResponse, error)
	GetOrderDetails(context.Context, *GetOrderDetailsRequest) (*GetOrderDetailsResponse, error)
	Heartbeat(context.Context, *emptypb.Empty) (*HeartbeatResponse, error)
	NotifyReplica(context.Context, *NotifyReplicaRequest) (*NotifyReplicaResponse, error)
	ReplicateOrder(context.Context, *ReplicateOrderRequest) (*ReplicateOrderResponse, error)
	SyncUp(context.Context, *SyncUpRequest) (*SyncUpResponse, error)
}

// OrderServiceDesc describes OrderService to grpc.Server
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Order",
			Handler:    unaryHandler(OrderServiceOrderMethod, OrderServiceServer.Order),
		},
		{
			MethodName: "GetOrderDetails",
			Handler:    unaryHandler(OrderServiceGetOrderDetailsMethod, OrderServiceServer.GetOrderDetails),
		},
		{
			MethodName: "Heartbeat",
			Handler:    unaryHandler(OrderServiceHeartbeatMethod, OrderServiceServer.Heartbeat),
		},
		{
			MethodName: "NotifyReplica",
			Handler:    unaryHandler(OrderServiceNotifyReplicaMethod, OrderServiceServer.NotifyReplica),
		},
		{
			MethodName: "ReplicateOrder",
			Handler:    unaryHandler(OrderServiceReplicateOrderMethod, OrderServiceServer.ReplicateOrder),
		},
		{
			MethodName: "SyncUp",
			Handler:    unaryHandler(OrderServiceSyncUpMethod, OrderServiceServer.SyncUp),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "order.proto",
}

// RegisterOrderServiceServer registers srv on s
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// OrderServiceClient is the client side of OrderService
type OrderServiceClient interface {
	Order(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	GetOrderDetails(ctx context.Context, in *GetOrderDetailsRequest, opts ...grpc.CallOption) (*GetOrderDetailsResponse, error)
	Heartbeat(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*HeartbeatResponse, error)
	NotifyReplica(ctx context.Context, in *NotifyReplicaRequest, opts ...grpc.CallOption) (*NotifyReplicaResponse, error)
	ReplicateOrder(ctx context.Context, in *ReplicateOrderRequest, opts ...grpc.CallOption) (*ReplicateOrderResponse, error)
	SyncUp(ctx context.Context, in *SyncUpRequest, opts ...grpc.CallOption) (*SyncUpResponse, error)
}

type orderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient wraps a connection. It is cheap, so callers create one per call like generated stubs.
func NewOrderServiceClient(cc grpc.ClientConnInterface) OrderServiceClient {
	return &orderServiceClient{cc: cc}
}

func (c *orderServiceClient) Order(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.cc.Invoke(ctx, OrderServiceOrderMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) GetOrderDetails(ctx context.Context, in *GetOrderDetailsRequest, opts ...grpc.CallOption) (*GetOrderDetailsResponse, error) {
	out := new(GetOrderDetailsResponse)
	if err := c.cc.Invoke(ctx, OrderServiceGetOrderDetailsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) Heartbeat(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, OrderServiceHeartbeatMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) NotifyReplica(ctx context.Context, in *NotifyReplicaRequest, opts ...grpc.CallOption) (*NotifyReplicaResponse, error) {
	out := new(NotifyReplicaResponse)
	if err := c.cc.Invoke(ctx, OrderServiceNotifyReplicaMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) ReplicateOrder(ctx context.Context, in *ReplicateOrderRequest, opts ...grpc.CallOption) (*ReplicateOrderResponse, error) {
	out := new(ReplicateOrderResponse)
	if err := c.cc.Invoke(ctx, OrderServiceReplicateOrderMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) SyncUp(ctx context.Context, in *SyncUpRequest, opts ...grpc.CallOption) (*SyncUpResponse, error) {
	out := new(SyncUpResponse)
	if err := c.cc.Invoke(ctx, OrderServiceSyncUpMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
