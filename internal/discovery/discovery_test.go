package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-ledger/internal/order"
	"stock-ledger/internal/rpc"
)

// mockProber is a testify mock of Prober
type mockProber struct {
	mock.Mock
}

func (m *mockProber) Heartbeat(_ context.Context, id order.ReplicaID) (*rpc.HeartbeatResponse, error) {
	args := m.Called(id)
	resp, _ := args.Get(0).(*rpc.HeartbeatResponse)
	return resp, args.Error(1)
}

func (m *mockProber) NotifyReplica(_ context.Context, id order.ReplicaID, leaderID order.ReplicaID) error {
	return m.Called(id, leaderID).Error(0)
}

var errDown = errors.New("connection refused")

func replicas(ids ...order.ReplicaID) []order.ReplicaIdentity {
	out := make([]order.ReplicaIdentity, 0, len(ids))
	for _, id := range ids {
		out = append(out, order.ReplicaIdentity{ID: id, Host: "localhost", Port: uint16(8090 + id)})
	}
	return out
}

func healthy(id order.ReplicaID) *rpc.HeartbeatResponse {
	return &rpc.HeartbeatResponse{Code: rpc.CodeOK, ReplicaID: uint32(id)}
}

func TestDiscoverLeader(t *testing.T) {
	ctx := context.Background()

	t.Run("all healthy picks the highest id", func(t *testing.T) {
		prober := &mockProber{}
		prober.On("Heartbeat", order.ReplicaID(3)).Return(healthy(3), nil)
		prober.On("NotifyReplica", mock.Anything, order.ReplicaID(3)).Return(nil)

		leader, err := DiscoverLeader(ctx, replicas(1, 2, 3), prober, nil)
		require.NoError(t, err)
		assert.Equal(t, order.ReplicaID(3), leader.ID)

		prober.AssertNotCalled(t, "Heartbeat", order.ReplicaID(2))
		prober.AssertNotCalled(t, "Heartbeat", order.ReplicaID(1))
		prober.AssertCalled(t, "NotifyReplica", order.ReplicaID(1), order.ReplicaID(3))
		prober.AssertCalled(t, "NotifyReplica", order.ReplicaID(2), order.ReplicaID(3))
	})

	t.Run("only 1 and 2 respond picks 2", func(t *testing.T) {
		prober := &mockProber{}
		prober.On("Heartbeat", order.ReplicaID(3)).Return(nil, errDown)
		prober.On("Heartbeat", order.ReplicaID(2)).Return(healthy(2), nil)
		prober.On("NotifyReplica", order.ReplicaID(1), order.ReplicaID(2)).Return(nil)
		prober.On("NotifyReplica", order.ReplicaID(3), order.ReplicaID(2)).Return(errDown)

		leader, err := DiscoverLeader(ctx, replicas(2, 3, 1), prober, nil)
		require.NoError(t, err)
		assert.Equal(t, order.ReplicaID(2), leader.ID)
		prober.AssertNotCalled(t, "Heartbeat", order.ReplicaID(1))
		prober.AssertExpectations(t)
	})

	t.Run("notification failures do not change the outcome", func(t *testing.T) {
		prober := &mockProber{}
		prober.On("Heartbeat", order.ReplicaID(2)).Return(healthy(2), nil)
		prober.On("NotifyReplica", mock.Anything, mock.Anything).Return(errDown)

		leader, err := DiscoverLeader(ctx, replicas(1, 2), prober, nil)
		require.NoError(t, err)
		assert.Equal(t, order.ReplicaID(2), leader.ID)
	})

	t.Run("nobody answering is ErrNoLeaderAvailable", func(t *testing.T) {
		prober := &mockProber{}
		prober.On("Heartbeat", mock.Anything).Return(nil, errDown)

		_, err := DiscoverLeader(ctx, replicas(1, 2, 3), prober, nil)
		assert.ErrorIs(t, err, order.ErrNoLeaderAvailable)
		prober.AssertNumberOfCalls(t, "Heartbeat", 3)
		prober.AssertNotCalled(t, "NotifyReplica", mock.Anything, mock.Anything)
	})

	t.Run("empty replica set", func(t *testing.T) {
		_, err := DiscoverLeader(ctx, nil, &mockProber{}, nil)
		assert.ErrorIs(t, err, order.ErrNoLeaderAvailable)
	})

	t.Run("cancelled context stops probing", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := DiscoverLeader(cancelled, replicas(1, 2), &mockProber{}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLeaderCache(t *testing.T) {
	ctx := context.Background()

	t.Run("discovers once and caches", func(t *testing.T) {
		prober := &mockProber{}
		prober.On("Heartbeat", order.ReplicaID(2)).Return(healthy(2), nil)
		prober.On("NotifyReplica", order.ReplicaID(1), order.ReplicaID(2)).Return(nil)
		cache := NewLeaderCache(replicas(1, 2), prober, nil)

		_, ok := cache.Cached()
		assert.False(t, ok)

		for i := 0; i < 3; i++ {
			leader, err := cache.Leader(ctx)
			require.NoError(t, err)
			assert.Equal(t, order.ReplicaID(2), leader.ID)
		}
		prober.AssertNumberOfCalls(t, "Heartbeat", 1)

		cached, ok := cache.Cached()
		assert.True(t, ok)
		assert.Equal(t, order.ReplicaID(2), cached.ID)
	})

	t.Run("rediscover moves to the next replica", func(t *testing.T) {
		prober := &mockProber{}
		prober.On("Heartbeat", order.ReplicaID(2)).Return(healthy(2), nil).Once()
		prober.On("Heartbeat", order.ReplicaID(2)).Return(nil, errDown)
		prober.On("Heartbeat", order.ReplicaID(1)).Return(healthy(1), nil)
		prober.On("NotifyReplica", mock.Anything, mock.Anything).Return(nil)
		cache := NewLeaderCache(replicas(1, 2), prober, nil)

		leader, err := cache.Leader(ctx)
		require.NoError(t, err)
		assert.Equal(t, order.ReplicaID(2), leader.ID)

		leader, err = cache.Rediscover(ctx)
		require.NoError(t, err)
		assert.Equal(t, order.ReplicaID(1), leader.ID)

		leader, err = cache.Leader(ctx)
		require.NoError(t, err)
		assert.Equal(t, order.ReplicaID(1), leader.ID)
	})

	t.Run("failed rediscovery clears the cache", func(t *testing.T) {
		prober := &mockProber{}
		prober.On("Heartbeat", order.ReplicaID(1)).Return(healthy(1), nil).Once()
		prober.On("Heartbeat", order.ReplicaID(1)).Return(nil, errDown)
		cache := NewLeaderCache(replicas(1), prober, nil)

		_, err := cache.Leader(ctx)
		require.NoError(t, err)

		_, err = cache.Rediscover(ctx)
		assert.ErrorIs(t, err, order.ErrNoLeaderAvailable)

		_, ok := cache.Cached()
		assert.False(t, ok)
	})
}
