package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order/mocks"
)

func TestFlushJob(t *testing.T) {
	t.Run("drains pending records every tick", func(t *testing.T) {
		log := mocks.NewMockLogStorage()
		store := newStore(t, log, acceptingCatalog(), 1)
		_, err := store.ApplyReplicated(rec(1))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go FlushJob(ctx, &wg, 1, store, 10*time.Millisecond, logging.NewNop())

		assert.Eventually(t, func() bool { return len(log.Rows()) == 1 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, 0, store.PendingCount())

		cancel()
		wg.Wait()
	})

	t.Run("keeps records pending while the log fails", func(t *testing.T) {
		log := mocks.NewMockLogStorage()
		log.SetAppendError(errors.New("disk full"))
		store := newStore(t, log, acceptingCatalog(), 1)
		_, err := store.ApplyReplicated(rec(1))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go FlushJob(ctx, &wg, 1, store, 10*time.Millisecond, logging.NewNop())

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, store.PendingCount())

		log.SetAppendError(nil)
		assert.Eventually(t, func() bool { return len(log.Rows()) == 1 }, time.Second, 10*time.Millisecond)

		cancel()
		wg.Wait()
	})
}

func TestDeferredJob(t *testing.T) {
	t.Run("runs after the delay", func(t *testing.T) {
		start := time.Now()
		ran := DeferredJob(context.Background(), 20*time.Millisecond, func(context.Context) {})
		assert.True(t, ran)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("cancelled before the delay", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		ran := DeferredJob(ctx, time.Hour, func(context.Context) { called = true })
		assert.False(t, ran)
		assert.False(t, called)
	})
}
