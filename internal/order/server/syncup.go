package server

import (
	"context"
	"fmt"
	"sync"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/order/ledger"
)

// SyncResult summarizes one sync-up round
type SyncResult struct {
	// Known is the transaction number the peers were asked to send records above
	Known uint64
	// Responded is how many peers answered
	Responded int
	// Appended is how many records were new and got appended durably
	Appended int
}

// PerformSync asks every peer for the records above this replica's known transaction number, merges all answers and
// appends the records it does not hold yet in ascending order. When no peer answers it returns an error and leaves
// the ledger as it was; the replica keeps serving either way.
func PerformSync(ctx context.Context, store *ledger.Store, self order.ReplicaID, peers []order.ReplicaIdentity,
	transport PeerTransport, logger logging.Logger) (SyncResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	peers = order.Without(peers, self)
	result := SyncResult{Known: store.KnownTransactionNumber()}
	logger.Infof("[ORDER-%d] Starting sync-up above transaction %d with %d peers", self, result.Known, len(peers))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		merged []order.TransactionRecord
	)
	for _, peer := range peers {
		wg.Add(1)
		go func(peer order.ReplicaIdentity) {
			defer wg.Done()

			records, err := transport.SyncUp(ctx, peer.ID, self, result.Known)
			if err != nil {
				logger.Warnf("[ORDER-%d] Sync-up from replica %s failed: %v", self, peer, err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			result.Responded++
			merged = append(merged, records...)
		}(peer)
	}
	wg.Wait()

	if result.Responded == 0 {
		logger.Errorf("[ORDER-%d] Sync-up failed as no replicas are responding", self)
		return result, fmt.Errorf("sync-up above transaction %d: %w", result.Known, order.ErrPeerUnreachable)
	}

	appended, err := store.AppendSynced(merged)
	if err != nil {
		return result, err
	}
	result.Appended = appended

	if appended == 0 {
		logger.Infof("[ORDER-%d] Sync-up done, no new records", self)
	} else {
		logger.Infof("[ORDER-%d] Sync-up done, appended %d records from %d peers", self, appended, result.Responded)
	}
	return result, nil
}
