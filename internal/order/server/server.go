package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"stock-ledger/internal"
	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/order/ledger"
	"stock-ledger/internal/rpc"
)

const (
	DefaultFlushInterval = 2 * time.Second
	// DefaultSyncDelay lets a restarted replica become reachable before it asks its peers to catch it up
	DefaultSyncDelay = 3 * time.Second
)

// Config is the static configuration of one order replica
type Config struct {
	Self order.ReplicaIdentity
	// Replicas is the full replica set, Self included
	Replicas      []order.ReplicaIdentity
	FlushInterval time.Duration
	SyncDelay     time.Duration
}

// Server is an order replica. It serves OrderService over gRPC: any replica accepts Order, the caller decides which
// replica is the leader. Committed orders are replicated to every peer, and a startup sync-up pulls whatever the
// replica missed while it was down.
type Server struct {
	cfg   Config
	store *ledger.Store
	// Transport is the transport layer used for replication and sync-up
	transport  PeerTransport
	replicator *Replicator
	// The underlying gRPC server used for receiving RPC messages
	grpcServer *grpc.Server
	logger     logging.Logger
	metrics    MetricsCollector

	// The network address the server listens on, known once Serve was called
	address string

	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
	// Closed once the startup sync-up finished, successfully or not
	syncDone   chan struct{}
	syncResult SyncResult
	syncErr    error

	mu       sync.Mutex
	shutdown bool
}

func NewServer(cfg Config, store *ledger.Store, transport PeerTransport, logger logging.Logger,
	metrics MetricsCollector) *Server {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.SyncDelay < 0 {
		cfg.SyncDelay = DefaultSyncDelay
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	jobsCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		store:      store,
		transport:  transport,
		replicator: NewReplicator(cfg.Self.ID, cfg.Replicas, transport, logger, metrics),
		logger:     logger,
		metrics:    metrics,
		jobsCtx:    jobsCtx,
		cancelJobs: cancel,
		syncDone:   make(chan struct{}),
	}

	s.grpcServer = grpc.NewServer(rpc.ServerOptions()...)
	rpc.RegisterOrderServiceServer(s.grpcServer, s)
	return s
}

// Order commits a trade on this replica and replicates it to the peers. Rejections are answered in-band with
// code 404, an unreachable catalog fails the call with codes.Unavailable.
func (s *Server) Order(ctx context.Context, req *rpc.OrderRequest) (*rpc.OrderResponse, error) {
	requestID := internal.RequestIDOr(ctx, "-")

	record, err := s.store.Commit(ctx, req.Name, req.Type, req.Quantity)
	if err != nil {
		if order.IsRejected(err) {
			s.logger.Infof("[ORDER-%d] [%s] Rejected %s of %d %s: %v", s.cfg.Self.ID, requestID, req.Type, req.Quantity, req.Name, err)
			return &rpc.OrderResponse{Code: rpc.CodeNotFound, Message: order.RejectionMessage(err)}, nil
		}
		s.logger.Errorf("[ORDER-%d] [%s] Order of %d %s failed: %v", s.cfg.Self.ID, requestID, req.Quantity, req.Name, err)
		return nil, status.Errorf(codes.Unavailable, "catalog unavailable: %v", err)
	}

	replicationID := s.replicator.Replicate(record)
	s.logger.Infof("[ORDER-%d] [%s] Committed transaction %d (%s %d %s), replication %s",
		s.cfg.Self.ID, requestID, record.TransactionNumber, record.Type, record.VolumeTraded, record.Name, replicationID)

	return &rpc.OrderResponse{Code: rpc.CodeOK, TransactionNum: record.TransactionNumber}, nil
}

// GetOrderDetails returns a record by transaction number, pending or durable
func (s *Server) GetOrderDetails(_ context.Context, req *rpc.GetOrderDetailsRequest) (*rpc.GetOrderDetailsResponse, error) {
	record, found, err := s.store.Lookup(req.TransactionNum)
	if err != nil {
		s.logger.Errorf("[ORDER-%d] Lookup of transaction %d failed: %v", s.cfg.Self.ID, req.TransactionNum, err)
		return nil, status.Errorf(codes.Internal, "lookup of transaction %d failed", req.TransactionNum)
	}
	if !found {
		return &rpc.GetOrderDetailsResponse{
			Code:           rpc.CodeNotFound,
			TransactionNum: req.TransactionNum,
			Message:        "invalid transaction number",
		}, nil
	}

	return &rpc.GetOrderDetailsResponse{
		Code:           rpc.CodeOK,
		TransactionNum: record.TransactionNumber,
		Name:           record.Name,
		Type:           string(record.Type),
		VolumeTraded:   record.VolumeTraded,
	}, nil
}

// Heartbeat reports this replica alive
func (s *Server) Heartbeat(context.Context, *emptypb.Empty) (*rpc.HeartbeatResponse, error) {
	if s.metrics != nil {
		s.metrics.RecordHeartbeat()
	}
	return &rpc.HeartbeatResponse{Code: rpc.CodeOK, ReplicaID: uint32(s.cfg.Self.ID)}, nil
}

// NotifyReplica records the leader a discoverer selected. The value is advisory and gates nothing.
func (s *Server) NotifyReplica(_ context.Context, req *rpc.NotifyReplicaRequest) (*rpc.NotifyReplicaResponse, error) {
	s.store.SetLeader(order.ReplicaID(req.LeaderID))
	if s.metrics != nil {
		s.metrics.RecordNotification()
	}
	s.logger.Infof("[ORDER-%d] Replica %d was selected as leader", s.cfg.Self.ID, req.LeaderID)
	return &rpc.NotifyReplicaResponse{Code: rpc.CodeOK}, nil
}

// ReplicateOrder applies a record pushed by the leader. Replaying the same record is harmless.
func (s *Server) ReplicateOrder(_ context.Context, req *rpc.ReplicateOrderRequest) (*rpc.ReplicateOrderResponse, error) {
	tradeType, err := order.ParseTradeType(req.Type)
	if err != nil {
		s.logger.Warnf("[ORDER-%d] Ignoring replicated transaction %d from replica %d: %v",
			s.cfg.Self.ID, req.TransactionNum, req.LeaderID, err)
		return &rpc.ReplicateOrderResponse{Code: rpc.CodeNotFound}, nil
	}

	applied, err := s.store.ApplyReplicated(order.TransactionRecord{
		TransactionNumber: req.TransactionNum,
		Name:              req.Name,
		Type:              tradeType,
		VolumeTraded:      req.VolumeTraded,
	})
	if err != nil {
		s.logger.Warnf("[ORDER-%d] Ignoring replicated transaction from replica %d: %v", s.cfg.Self.ID, req.LeaderID, err)
		return &rpc.ReplicateOrderResponse{Code: rpc.CodeNotFound}, nil
	}

	if applied {
		s.logger.Debugf("[ORDER-%d] Applied transaction %d replicated by %d (replication %s)",
			s.cfg.Self.ID, req.TransactionNum, req.LeaderID, req.ReplicationID)
	}
	return &rpc.ReplicateOrderResponse{Code: rpc.CodeOK}, nil
}

// SyncUp returns every record above the requester's known transaction number, in no particular order
func (s *Server) SyncUp(_ context.Context, req *rpc.SyncUpRequest) (*rpc.SyncUpResponse, error) {
	s.logger.Infof("[ORDER-%d] Sync-up request received from replica %d above transaction %d",
		s.cfg.Self.ID, req.ReplicaID, req.TransactionNum)

	records, err := s.store.ExportAfter(req.TransactionNum)
	if err != nil {
		s.logger.Errorf("[ORDER-%d] Sync-up export for replica %d failed: %v", s.cfg.Self.ID, req.ReplicaID, err)
		return nil, status.Errorf(codes.Internal, "export above transaction %d failed", req.TransactionNum)
	}

	orders := make([]rpc.OrderDetails, 0, len(records))
	for _, r := range records {
		orders = append(orders, rpc.OrderDetails{
			TransactionNum: r.TransactionNumber,
			Name:           r.Name,
			Type:           string(r.Type),
			VolumeTraded:   r.VolumeTraded,
		})
	}

	if s.metrics != nil {
		s.metrics.RecordSyncUpServed()
	}
	return &rpc.SyncUpResponse{Orders: orders}, nil
}

// Serve starts the background jobs and serves gRPC on lis. It blocks until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return grpc.ErrServerStopped
	}
	s.address = lis.Addr().String()
	s.startJobs()
	s.mu.Unlock()

	s.logger.Infof("[ORDER-%d] Order replica running on %s with peers %v",
		s.cfg.Self.ID, s.address, order.Without(s.cfg.Replicas, s.cfg.Self.ID))

	// This one blocks as under the hood there is a call to lis.Accept
	return s.grpcServer.Serve(lis)
}

func (s *Server) startJobs() {
	s.jobs.Add(2)
	go FlushJob(s.jobsCtx, &s.jobs, s.cfg.Self.ID, s.store, s.cfg.FlushInterval, s.logger)
	go func() {
		defer s.jobs.Done()
		defer close(s.syncDone)

		ran := DeferredJob(s.jobsCtx, s.cfg.SyncDelay, func(ctx context.Context) {
			s.syncResult, s.syncErr = PerformSync(ctx, s.store, s.cfg.Self.ID, s.cfg.Replicas, s.transport, s.logger)
		})
		if !ran {
			s.syncErr = fmt.Errorf("sync-up cancelled before it started: %w", context.Canceled)
		}
	}()
}

// SyncDone is closed once the startup sync-up ran
func (s *Server) SyncDone() <-chan struct{} {
	return s.syncDone
}

// SyncResult returns the outcome of the startup sync-up. Only meaningful once SyncDone is closed.
func (s *Server) SyncResult() (SyncResult, error) {
	return s.syncResult, s.syncErr
}

// Address is the address the server listens on
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Store exposes the replica's ledger
func (s *Server) Store() *ledger.Store {
	return s.store
}

// GracefulShutdown stops accepting requests, stops the background jobs, waits for in-flight replication and flushes
// whatever is still pending. Closing the durable log and the peer connections is left to the owner of those.
func (s *Server) GracefulShutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	s.logger.Infof("[ORDER-%d] Shutting down gracefully", s.cfg.Self.ID)
	// First, stop accepting new incoming requests, in order not to interrupt a pending response
	s.grpcServer.GracefulStop()
	s.stop()
}

// ForceShutdown stops the server without waiting for in-flight requests
func (s *Server) ForceShutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	s.logger.Infof("[ORDER-%d] Force shutting down", s.cfg.Self.ID)
	s.grpcServer.Stop()
	s.stop()
}

func (s *Server) stop() {
	s.cancelJobs()
	s.jobs.Wait()
	s.replicator.Wait()

	flushed, err := s.store.Flush()
	if err != nil {
		s.logger.Errorf("[ORDER-%d] Final flush failed, %d records lost: %v", s.cfg.Self.ID, s.store.PendingCount(), err)
		return
	}
	s.logger.Infof("[ORDER-%d] Final flush wrote %d records", s.cfg.Self.ID, flushed)
}
