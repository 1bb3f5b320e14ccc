package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stock-ledger/internal/order"
	"stock-ledger/internal/order/mocks"
)

func TestReplicator_Replicate(t *testing.T) {
	t.Run("pushes to every peer but itself", func(t *testing.T) {
		transport := &mockPeerTransport{}
		transport.On("ReplicateOrder", order.ReplicaID(1), uint64(7)).Return(nil)
		transport.On("ReplicateOrder", order.ReplicaID(2), uint64(7)).Return(nil)
		metrics := mocks.NewMockMetricsCollector()

		r := NewReplicator(3, identities(1, 2, 3), transport, nil, metrics)
		id := r.Replicate(rec(7))
		r.Wait()

		assert.NotEmpty(t, id)
		transport.AssertNumberOfCalls(t, "ReplicateOrder", 2)
		transport.AssertNotCalled(t, "ReplicateOrder", order.ReplicaID(3), uint64(7))
		assert.Equal(t, 2, metrics.Counts().ReplicationSent)
	})

	t.Run("peer failures are counted and ignored", func(t *testing.T) {
		transport := &mockPeerTransport{}
		transport.On("ReplicateOrder", order.ReplicaID(1), uint64(1)).Return(order.ErrPeerUnreachable)
		transport.On("ReplicateOrder", order.ReplicaID(2), uint64(1)).Return(nil)
		metrics := mocks.NewMockMetricsCollector()

		r := NewReplicator(3, identities(1, 2, 3), transport, nil, metrics)
		r.Replicate(rec(1))
		r.Wait()

		counts := metrics.Counts()
		assert.Equal(t, 1, counts.ReplicationSent)
		assert.Equal(t, 1, counts.ReplicationFailed)
	})

	t.Run("does not wait for slow peers", func(t *testing.T) {
		transport := &mockPeerTransport{}
		transport.On("ReplicateOrder", order.ReplicaID(1), uint64(1)).
			After(300 * time.Millisecond).Return(errors.New("deadline exceeded"))

		r := NewReplicator(2, identities(1, 2), transport, nil, nil)

		start := time.Now()
		r.Replicate(rec(1))
		assert.Less(t, time.Since(start), 100*time.Millisecond)

		r.Wait()
		assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	})

	t.Run("ids differ per round", func(t *testing.T) {
		transport := &mockPeerTransport{}
		transport.On("ReplicateOrder", order.ReplicaID(1), uint64(1)).Return(nil)

		r := NewReplicator(2, identities(1, 2), transport, nil, nil)
		first := r.Replicate(rec(1))
		second := r.Replicate(rec(1))
		r.Wait()

		assert.NotEqual(t, first, second)
	})
}
