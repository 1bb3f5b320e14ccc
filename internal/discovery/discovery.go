package discovery

import (
	"context"
	"fmt"
	"sync"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/rpc"
)

// Prober is the part of the order transport leader discovery needs
type Prober interface {
	Heartbeat(ctx context.Context, id order.ReplicaID) (*rpc.HeartbeatResponse, error)
	NotifyReplica(ctx context.Context, id order.ReplicaID, leaderID order.ReplicaID) error
}

// DiscoverLeader probes the replicas by id descending and returns the first one answering its heartbeat. Every other
// replica is told the outcome on a best-effort basis. It returns order.ErrNoLeaderAvailable when nobody answers.
//
// A healthy heartbeat only proves liveness: two callers with a different view of the network may pick different
// leaders, nothing here fences the loser.
func DiscoverLeader(ctx context.Context, replicas []order.ReplicaIdentity, prober Prober,
	logger logging.Logger) (order.ReplicaIdentity, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	for _, candidate := range order.SortByPriority(replicas) {
		if err := ctx.Err(); err != nil {
			return order.ReplicaIdentity{}, err
		}

		resp, err := prober.Heartbeat(ctx, candidate.ID)
		if err != nil {
			logger.Warnf("[DISCOVERY] Replica %s did not answer its heartbeat: %v", candidate, err)
			continue
		}

		logger.Infof("[DISCOVERY] Replica %d is the leader", resp.ReplicaID)
		notifyOthers(ctx, replicas, candidate.ID, prober, logger)
		return candidate, nil
	}

	return order.ReplicaIdentity{}, fmt.Errorf("%w: probed %d replicas", order.ErrNoLeaderAvailable, len(replicas))
}

// notifyOthers announces leaderID to every other replica concurrently and waits for the calls to finish. Failures are
// only logged.
func notifyOthers(ctx context.Context, replicas []order.ReplicaIdentity, leaderID order.ReplicaID, prober Prober,
	logger logging.Logger) {
	var wg sync.WaitGroup
	for _, r := range order.Without(replicas, leaderID) {
		wg.Add(1)
		go func(id order.ReplicaID) {
			defer wg.Done()
			if err := prober.NotifyReplica(ctx, id, leaderID); err != nil {
				logger.Warnf("[DISCOVERY] Failed to notify replica %d of leader %d: %v", id, leaderID, err)
			}
		}(r.ID)
	}
	wg.Wait()
}
