package transport

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/grpc/resolver"

	"stock-ledger/internal/order"
)

// ---- In-process registry: ReplicaID -> host:port ----

type idRegistry struct {
	mu       sync.RWMutex
	records  map[order.ReplicaID]string
	watchers map[order.ReplicaID]map[*replicaResolver]struct{}
}

var globalIDRegistry = &idRegistry{
	records:  make(map[order.ReplicaID]string),
	watchers: make(map[order.ReplicaID]map[*replicaResolver]struct{}),
}

// RegisterReplica sets or updates the address of a replica and notifies any active resolvers, so open connections
// follow a replica that restarted on another port.
func RegisterReplica(id order.ReplicaID, addr string) {
	globalIDRegistry.mu.Lock()
	globalIDRegistry.records[id] = addr
	watchers := make([]*replicaResolver, 0, len(globalIDRegistry.watchers[id]))
	for w := range globalIDRegistry.watchers[id] {
		watchers = append(watchers, w)
	}
	globalIDRegistry.mu.Unlock()

	// Notify after unlocking to avoid re-entrancy.
	for _, w := range watchers {
		w.pushCurrent()
	}
}

// lookupReplica returns the registered address of a replica
func lookupReplica(id order.ReplicaID) (string, bool) {
	globalIDRegistry.mu.RLock()
	defer globalIDRegistry.mu.RUnlock()
	addr, ok := globalIDRegistry.records[id]
	return addr, ok
}

// ---- gRPC name resolver ("replica" scheme) ----

const replicaScheme = "replica"

// Target returns the dial target of a replica, "replica:///<id>"
func Target(id order.ReplicaID) string {
	return fmt.Sprintf("%s:///%d", replicaScheme, id)
}

type replicaBuilder struct{}

func (replicaBuilder) Scheme() string { return replicaScheme }

func (replicaBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	endpoint := strings.TrimPrefix(target.Endpoint(), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("replica resolver: empty target endpoint: %+v", target)
	}

	raw, err := strconv.ParseUint(endpoint, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("replica resolver: invalid replica id %q: %w", endpoint, err)
	}

	r := &replicaResolver{id: order.ReplicaID(raw), cc: cc}
	r.subscribe()
	r.pushCurrent()
	return r, nil
}

type replicaResolver struct {
	id order.ReplicaID
	cc resolver.ClientConn
}

func (r *replicaResolver) ResolveNow(resolver.ResolveNowOptions) { r.pushCurrent() }

func (r *replicaResolver) Close() {
	globalIDRegistry.mu.Lock()
	defer globalIDRegistry.mu.Unlock()
	if set, ok := globalIDRegistry.watchers[r.id]; ok {
		delete(set, r)
		if len(set) == 0 {
			delete(globalIDRegistry.watchers, r.id)
		}
	}
}

func (r *replicaResolver) subscribe() {
	globalIDRegistry.mu.Lock()
	defer globalIDRegistry.mu.Unlock()
	set := globalIDRegistry.watchers[r.id]
	if set == nil {
		set = make(map[*replicaResolver]struct{})
		globalIDRegistry.watchers[r.id] = set
	}
	set[r] = struct{}{}
}

func (r *replicaResolver) pushCurrent() {
	addr, ok := lookupReplica(r.id)
	if !ok || addr == "" {
		// No address yet, gRPC will ask again
		_ = r.cc.UpdateState(resolver.State{Addresses: nil})
		return
	}

	_ = r.cc.UpdateState(resolver.State{
		Addresses: []resolver.Address{{Addr: addr}},
	})
}

func init() {
	resolver.Register(replicaBuilder{})
}
