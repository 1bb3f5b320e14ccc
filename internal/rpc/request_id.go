package rpc

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"stock-ledger/internal"
)

// RequestIDHeader is the gRPC metadata key carrying the request id between services
const RequestIDHeader = "x-request-id"

// RequestIDUnaryClientInterceptor forwards the request id of the call's context as RequestIDHeader
func RequestIDUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption) error {
		if id, ok := internal.RequestID(ctx); ok {
			ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, id)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// RequestIDUnaryServerInterceptor lifts RequestIDHeader from the incoming metadata into the handler's context,
// generating a fresh id when the caller sent none
func RequestIDUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(RequestIDHeader); len(values) > 0 {
				id = values[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		return handler(internal.WithRequestID(ctx, id), req)
	}
}
