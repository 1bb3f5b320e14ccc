package server

import (
	"context"
	"sync"
	"time"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/order/ledger"
)

/*
Background jobs of an order replica. Each job runs in its own goroutine, is registered on a WaitGroup before it starts
and exits when its context is cancelled, so shutdown can cancel them and wait for them to return.
*/

// FlushJob drains the ledger's pending records to durable storage every interval. A failed flush is logged and the
// records are retried on the next tick. It should be called as a goroutine.
func FlushJob(ctx context.Context, wg *sync.WaitGroup, self order.ReplicaID, store *ledger.Store,
	interval time.Duration, logger logging.Logger) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debugf("[JOB] [ORDER-%d] Started FlushJob every %v", self, interval)

	for {
		select {
		case <-ticker.C:
			flushed, err := store.Flush()
			if err != nil {
				logger.Errorf("[JOB] [ORDER-%d] Flush failed, %d records stay pending: %v", self, store.PendingCount(), err)
				continue
			}
			if flushed > 0 {
				logger.Debugf("[JOB] [ORDER-%d] Flushed %d records to disk", self, flushed)
			}
		case <-ctx.Done():
			logger.Debugf("[JOB] [ORDER-%d] Stopping FlushJob", self)
			return
		}
	}
}

// DeferredJob runs fn once after delay unless ctx is cancelled first, and reports whether fn ran. It blocks, so it
// should be called from the job's goroutine.
func DeferredJob(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		fn(ctx)
		return true
	case <-ctx.Done():
		return false
	}
}
