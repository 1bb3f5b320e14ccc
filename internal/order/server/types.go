package server

import (
	"context"

	"stock-ledger/internal/order"
	"stock-ledger/internal/order/ledger"
	"stock-ledger/internal/rpc"
)

// MetricsCollector is an optional interface for collecting replica metrics
type MetricsCollector interface {
	ledger.MetricsCollector
	RecordReplicationSent()
	RecordReplicationFailed()
	RecordHeartbeat()
	RecordNotification()
	RecordSyncUpServed()
}

// PeerTransport is the outbound side of replication and sync-up. *transport.Transport implements it.
type PeerTransport interface {
	ReplicateOrder(ctx context.Context, id order.ReplicaID, req *rpc.ReplicateOrderRequest) error
	SyncUp(ctx context.Context, id order.ReplicaID, self order.ReplicaID, known uint64) ([]order.TransactionRecord, error)
}
