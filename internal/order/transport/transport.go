package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/rpc"
)

// DefaultRPCTimeout bounds every cross-replica call so one unresponsive peer cannot block the caller
const DefaultRPCTimeout = 2 * time.Second

// Transport holds one gRPC channel per known replica and issues OrderService calls to them by replica id. Calls are
// single attempts under a timeout: failures are returned wrapped in order.ErrPeerUnreachable and never retried here.
type Transport struct {
	// A map to store the underlying grpc.ClientConn for each replica. It is a map[order.ReplicaID]*grpc.ClientConn.
	clientsConnPool *sync.Map
	replicas        []order.ReplicaIdentity
	timeout         time.Duration
	logger          logging.Logger
}

// NewTransport registers every replica's address with the "replica" resolver and opens a channel to each of them.
// Channels connect lazily, so replicas that are not up yet are fine.
func NewTransport(replicas []order.ReplicaIdentity, timeout time.Duration, logger logging.Logger) *Transport {
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	t := &Transport{
		clientsConnPool: &sync.Map{},
		replicas:        append([]order.ReplicaIdentity(nil), replicas...),
		timeout:         timeout,
		logger:          logger,
	}
	t.initClients()
	return t
}

// Initializes a gRPC channel to every configured replica
func (t *Transport) initClients() {
	for _, replica := range t.replicas {
		RegisterReplica(replica.ID, replica.Address())

		conn, err := grpc.NewClient(Target(replica.ID), rpc.DialOptions()...)
		if err != nil {
			// Failing to set up one channel should not prevent the others
			t.logger.Errorf("[TRANSPORT] Failed establishing a gRPC channel to replica %s: %v", replica, err)
			continue
		}

		t.clientsConnPool.Store(replica.ID, conn)
	}
}

// Replicas returns the replica set this transport was built for
func (t *Transport) Replicas() []order.ReplicaIdentity {
	return append([]order.ReplicaIdentity(nil), t.replicas...)
}

// Timeout is the per-call deadline applied to every RPC
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// getClient retrieves an OrderService client for the given replica from the connection pool
func (t *Transport) getClient(id order.ReplicaID) (rpc.OrderServiceClient, error) {
	clientConn, ok := t.clientsConnPool.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: no gRPC channel for replica %d", order.ErrPeerUnreachable, id)
	}

	conn, ok := clientConn.(*grpc.ClientConn)
	if !ok {
		return nil, fmt.Errorf("invalid clientConn type for replica %d. Type is %T", id, clientConn)
	}

	return rpc.NewOrderServiceClient(conn), nil
}

func (t *Transport) unreachable(op string, id order.ReplicaID, err error) error {
	return fmt.Errorf("%w: %s to replica %d: %v", order.ErrPeerUnreachable, op, id, err)
}

// Heartbeat probes a replica and returns the id it reports
func (t *Transport) Heartbeat(ctx context.Context, id order.ReplicaID) (*rpc.HeartbeatResponse, error) {
	client, err := t.getClient(id)
	if err != nil {
		return nil, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := client.Heartbeat(rpcCtx, &emptypb.Empty{})
	if err != nil {
		return nil, t.unreachable("Heartbeat", id, err)
	}
	if resp.Code != rpc.CodeOK {
		return nil, t.unreachable("Heartbeat", id, fmt.Errorf("unhealthy, code %d", resp.Code))
	}
	return resp, nil
}

// NotifyReplica tells a replica which replica was discovered as leader
func (t *Transport) NotifyReplica(ctx context.Context, id order.ReplicaID, leaderID order.ReplicaID) error {
	client, err := t.getClient(id)
	if err != nil {
		return err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if _, err := client.NotifyReplica(rpcCtx, &rpc.NotifyReplicaRequest{LeaderID: uint32(leaderID)}); err != nil {
		return t.unreachable("NotifyReplica", id, err)
	}
	return nil
}

// ReplicateOrder pushes one committed record to a follower
func (t *Transport) ReplicateOrder(ctx context.Context, id order.ReplicaID, req *rpc.ReplicateOrderRequest) error {
	client, err := t.getClient(id)
	if err != nil {
		return err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := client.ReplicateOrder(rpcCtx, req)
	if err != nil {
		return t.unreachable("ReplicateOrder", id, err)
	}
	if resp.Code != rpc.CodeOK {
		return fmt.Errorf("replica %d refused transaction %d with code %d", id, req.TransactionNum, resp.Code)
	}
	return nil
}

// SyncUp asks a replica for every record above known
func (t *Transport) SyncUp(ctx context.Context, id order.ReplicaID, self order.ReplicaID, known uint64) ([]order.TransactionRecord, error) {
	client, err := t.getClient(id)
	if err != nil {
		return nil, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := client.SyncUp(rpcCtx, &rpc.SyncUpRequest{TransactionNum: known, ReplicaID: uint32(self)})
	if err != nil {
		return nil, t.unreachable("SyncUp", id, err)
	}

	records := make([]order.TransactionRecord, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		tradeType, err := order.ParseTradeType(o.Type)
		if err != nil {
			return nil, fmt.Errorf("replica %d sent transaction %d: %w", id, o.TransactionNum, err)
		}
		records = append(records, order.TransactionRecord{
			TransactionNumber: o.TransactionNum,
			Name:              o.Name,
			Type:              tradeType,
			VolumeTraded:      o.VolumeTraded,
		})
	}
	return records, nil
}

// Order places a trade on a replica, normally the leader
func (t *Transport) Order(ctx context.Context, id order.ReplicaID, req *rpc.OrderRequest) (*rpc.OrderResponse, error) {
	client, err := t.getClient(id)
	if err != nil {
		return nil, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := client.Order(rpcCtx, req)
	if err != nil {
		return nil, t.unreachable("Order", id, err)
	}
	return resp, nil
}

// GetOrderDetails reads a record from a replica
func (t *Transport) GetOrderDetails(ctx context.Context, id order.ReplicaID, number uint64) (*rpc.GetOrderDetailsResponse, error) {
	client, err := t.getClient(id)
	if err != nil {
		return nil, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := client.GetOrderDetails(rpcCtx, &rpc.GetOrderDetailsRequest{TransactionNum: number})
	if err != nil {
		return nil, t.unreachable("GetOrderDetails", id, err)
	}
	return resp, nil
}

// CloseAllClients closes all gRPC client connections
func (t *Transport) CloseAllClients() {
	t.clientsConnPool.Range(func(key, value any) bool {
		if conn, ok := value.(*grpc.ClientConn); ok {
			if err := conn.Close(); err != nil {
				t.logger.Warnf("[TRANSPORT] Failed to close connection to replica %v: %v", key, err)
			}
		}
		t.clientsConnPool.Delete(key)
		return true
	})
	t.logger.Debugf("[TRANSPORT] All gRPC client connections closed")
}
