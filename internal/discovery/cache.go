package discovery

import (
	"context"
	"sync"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
)

// LeaderCache remembers the last discovered leader so callers only pay for discovery after a failure
type LeaderCache struct {
	mu       sync.Mutex
	replicas []order.ReplicaIdentity
	prober   Prober
	logger   logging.Logger
	leader   *order.ReplicaIdentity
}

func NewLeaderCache(replicas []order.ReplicaIdentity, prober Prober, logger logging.Logger) *LeaderCache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LeaderCache{
		replicas: replicas,
		prober:   prober,
		logger:   logger,
	}
}

// Leader returns the cached leader, discovering one first if none is cached
func (c *LeaderCache) Leader(ctx context.Context) (order.ReplicaIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.leader != nil {
		return *c.leader, nil
	}
	return c.discoverLocked(ctx)
}

// Rediscover drops the cached leader and runs discovery again. Concurrent callers queue on the lock; the discovery
// itself is not shared between them.
func (c *LeaderCache) Rediscover(ctx context.Context) (order.ReplicaIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.leader = nil
	return c.discoverLocked(ctx)
}

// Cached returns the cached leader without probing anything
func (c *LeaderCache) Cached() (order.ReplicaIdentity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.leader == nil {
		return order.ReplicaIdentity{}, false
	}
	return *c.leader, true
}

func (c *LeaderCache) discoverLocked(ctx context.Context) (order.ReplicaIdentity, error) {
	leader, err := DiscoverLeader(ctx, c.replicas, c.prober, c.logger)
	if err != nil {
		return order.ReplicaIdentity{}, err
	}
	c.leader = &leader
	return leader, nil
}
