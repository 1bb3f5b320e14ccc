package server

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/rpc"
)

// Replicator pushes committed records from the leader to every peer. Pushes are fire-and-forget: Replicate returns
// before any peer answered, and a failed or timed out push is logged and counted, never retried and never rolled back.
type Replicator struct {
	self      order.ReplicaID
	peers     []order.ReplicaIdentity
	transport PeerTransport
	logger    logging.Logger
	metrics   MetricsCollector
	// Tracks in-flight pushes so shutdown and tests can wait for them
	wg sync.WaitGroup
}

func NewReplicator(self order.ReplicaID, peers []order.ReplicaIdentity, transport PeerTransport,
	logger logging.Logger, metrics MetricsCollector) *Replicator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Replicator{
		self:      self,
		peers:     order.Without(peers, self),
		transport: transport,
		logger:    logger,
		metrics:   metrics,
	}
}

// Replicate sends record to every peer concurrently and returns the replication id that tags this round in the logs.
// The record must be the one returned by the commit that produced it, never rebuilt from the ledger's counter.
func (r *Replicator) Replicate(record order.TransactionRecord) string {
	replicationID := uuid.NewString()
	req := &rpc.ReplicateOrderRequest{
		TransactionNum: record.TransactionNumber,
		Name:           record.Name,
		Type:           string(record.Type),
		VolumeTraded:   record.VolumeTraded,
		LeaderID:       uint32(r.self),
		ReplicationID:  replicationID,
	}

	for _, peer := range r.peers {
		r.wg.Add(1)
		go func(peer order.ReplicaIdentity) {
			defer r.wg.Done()

			// The per-call timeout of the transport bounds this push
			if err := r.transport.ReplicateOrder(context.Background(), peer.ID, req); err != nil {
				r.logger.Warnf("[ORDER-%d] Replication %s of transaction %d to replica %s failed: %v",
					r.self, replicationID, record.TransactionNumber, peer, err)
				if r.metrics != nil {
					r.metrics.RecordReplicationFailed()
				}
				return
			}

			r.logger.Debugf("[ORDER-%d] Replication %s of transaction %d acknowledged by replica %d",
				r.self, replicationID, record.TransactionNumber, peer.ID)
			if r.metrics != nil {
				r.metrics.RecordReplicationSent()
			}
		}(peer)
	}

	return replicationID
}

// Wait blocks until every push started so far has finished
func (r *Replicator) Wait() {
	r.wg.Wait()
}
