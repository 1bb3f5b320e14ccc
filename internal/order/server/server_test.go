package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"stock-ledger/internal/order"
	"stock-ledger/internal/order/ledger"
	"stock-ledger/internal/order/mocks"
	"stock-ledger/internal/order/transport"
	"stock-ledger/internal/rpc"
)

func newHandlerServer(t *testing.T, log *mocks.MockLogStorage, catalog ledger.Catalog) (*Server, *mockPeerTransport, *mocks.MockMetricsCollector) {
	t.Helper()
	peers := &mockPeerTransport{}
	metrics := mocks.NewMockMetricsCollector()
	store := newStore(t, log, catalog, 1)
	s := NewServer(Config{Self: identities(1)[0], Replicas: identities(1, 2)}, store, peers, nil, metrics)
	return s, peers, metrics
}

func TestServer_Order(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and replicates", func(t *testing.T) {
		s, peers, _ := newHandlerServer(t, mocks.NewMockLogStorage(), acceptingCatalog())
		peers.On("ReplicateOrder", order.ReplicaID(2), uint64(1)).Return(nil)

		resp, err := s.Order(ctx, &rpc.OrderRequest{Name: "GameStart", Type: "sell", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, rpc.CodeOK, resp.Code)
		assert.Equal(t, uint64(1), resp.TransactionNum)

		s.replicator.Wait()
		peers.AssertCalled(t, "ReplicateOrder", order.ReplicaID(2), uint64(1))
	})

	t.Run("rejections are answered in-band", func(t *testing.T) {
		s, peers, _ := newHandlerServer(t, mocks.NewMockLogStorage(), acceptingCatalog())

		resp, err := s.Order(ctx, &rpc.OrderRequest{Name: "NotAStock", Type: "buy", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, rpc.CodeNotFound, resp.Code)
		assert.Equal(t, "invalid stock name", resp.Message)

		resp, err = s.Order(ctx, &rpc.OrderRequest{Name: "GameStart", Type: "buy", Quantity: -3})
		require.NoError(t, err)
		assert.Equal(t, "num stocks traded should be non negative", resp.Message)

		peers.AssertNotCalled(t, "ReplicateOrder", mock.Anything, mock.Anything)
	})

	t.Run("insufficient stock consumes no number", func(t *testing.T) {
		catalog := &mocks.MockCatalog{}
		catalog.On("Trade", mock.Anything, "GameStart", order.Buy, uint64(1000000)).Return(order.ErrInsufficientStock)
		catalog.On("Trade", mock.Anything, "GameStart", order.Buy, uint64(1)).Return(nil)
		s, peers, _ := newHandlerServer(t, mocks.NewMockLogStorage(), catalog)
		peers.On("ReplicateOrder", mock.Anything, mock.Anything).Return(nil)

		resp, err := s.Order(ctx, &rpc.OrderRequest{Name: "GameStart", Type: "buy", Quantity: 1000000})
		require.NoError(t, err)
		assert.Equal(t, rpc.CodeNotFound, resp.Code)
		assert.Equal(t, "not enough stock", resp.Message)

		resp, err = s.Order(ctx, &rpc.OrderRequest{Name: "GameStart", Type: "buy", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), resp.TransactionNum)
		s.replicator.Wait()
	})

	t.Run("unreachable catalog is Unavailable", func(t *testing.T) {
		catalog := &mocks.MockCatalog{}
		catalog.On("Trade", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
		s, _, _ := newHandlerServer(t, mocks.NewMockLogStorage(), catalog)

		_, err := s.Order(ctx, &rpc.OrderRequest{Name: "GameStart", Type: "buy", Quantity: 1})
		require.Error(t, err)
		assert.Equal(t, codes.Unavailable, status.Code(err))
	})
}

func TestServer_GetOrderDetails(t *testing.T) {
	s, _, _ := newHandlerServer(t, mocks.NewMockLogStorage(rec(1)), acceptingCatalog())
	_, err := s.store.ApplyReplicated(rec(2))
	require.NoError(t, err)

	t.Run("durable record", func(t *testing.T) {
		resp, err := s.GetOrderDetails(context.Background(), &rpc.GetOrderDetailsRequest{TransactionNum: 1})
		require.NoError(t, err)
		assert.Equal(t, &rpc.GetOrderDetailsResponse{
			Code: rpc.CodeOK, TransactionNum: 1, Name: "GameStart", Type: "sell", VolumeTraded: 1,
		}, resp)
	})

	t.Run("pending record", func(t *testing.T) {
		resp, err := s.GetOrderDetails(context.Background(), &rpc.GetOrderDetailsRequest{TransactionNum: 2})
		require.NoError(t, err)
		assert.Equal(t, rpc.CodeOK, resp.Code)
		assert.Equal(t, uint64(2), resp.VolumeTraded)
	})

	t.Run("unknown record", func(t *testing.T) {
		resp, err := s.GetOrderDetails(context.Background(), &rpc.GetOrderDetailsRequest{TransactionNum: 3})
		require.NoError(t, err)
		assert.Equal(t, rpc.CodeNotFound, resp.Code)
	})
}

func TestServer_HeartbeatAndNotify(t *testing.T) {
	s, _, metrics := newHandlerServer(t, mocks.NewMockLogStorage(), acceptingCatalog())

	hb, err := s.Heartbeat(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, &rpc.HeartbeatResponse{Code: rpc.CodeOK, ReplicaID: 1}, hb)

	ack, err := s.NotifyReplica(context.Background(), &rpc.NotifyReplicaRequest{LeaderID: 2})
	require.NoError(t, err)
	assert.Equal(t, rpc.CodeOK, ack.Code)

	leader, ok := s.Store().Leader()
	assert.True(t, ok)
	assert.Equal(t, order.ReplicaID(2), leader)

	counts := metrics.Counts()
	assert.Equal(t, 1, counts.Heartbeats)
	assert.Equal(t, 1, counts.Notifications)
}

func TestServer_ReplicateOrder(t *testing.T) {
	s, _, _ := newHandlerServer(t, mocks.NewMockLogStorage(), acceptingCatalog())
	req := &rpc.ReplicateOrderRequest{TransactionNum: 6, Name: "BoarCo", Type: "buy", VolumeTraded: 2, LeaderID: 2}

	t.Run("replaying is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp, err := s.ReplicateOrder(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, rpc.CodeOK, resp.Code)
		}

		records, err := s.Store().Records()
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("counter moves to the replicated number", func(t *testing.T) {
		assert.Equal(t, uint64(6), s.Store().LastTransactionNumber())
	})

	t.Run("malformed records are refused", func(t *testing.T) {
		resp, err := s.ReplicateOrder(context.Background(), &rpc.ReplicateOrderRequest{TransactionNum: 7, Name: "BoarCo", Type: "hold"})
		require.NoError(t, err)
		assert.Equal(t, rpc.CodeNotFound, resp.Code)

		resp, err = s.ReplicateOrder(context.Background(), &rpc.ReplicateOrderRequest{TransactionNum: 0, Name: "BoarCo", Type: "buy"})
		require.NoError(t, err)
		assert.Equal(t, rpc.CodeNotFound, resp.Code)
	})
}

func TestServer_SyncUp(t *testing.T) {
	s, _, metrics := newHandlerServer(t, mocks.NewMockLogStorage(rec(1), rec(2)), acceptingCatalog())
	_, err := s.store.ApplyReplicated(rec(3))
	require.NoError(t, err)

	resp, err := s.SyncUp(context.Background(), &rpc.SyncUpRequest{TransactionNum: 1, ReplicaID: 2})
	require.NoError(t, err)

	numbers := make([]uint64, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		numbers = append(numbers, o.TransactionNum)
	}
	assert.ElementsMatch(t, []uint64{2, 3}, numbers)
	assert.Equal(t, 1, metrics.Counts().SyncUpsServed)
}

// ---- Cluster tests over real gRPC ----

type testReplica struct {
	identity  order.ReplicaIdentity
	log       *mocks.MockLogStorage
	server    *Server
	transport *transport.Transport
	lis       net.Listener
}

// newCluster prepares one replica per entry of logs, each seeded with its records, listening on a free local port
func newCluster(t *testing.T, catalog ledger.Catalog, syncDelay time.Duration, logs ...[]order.TransactionRecord) []*testReplica {
	t.Helper()

	replicas := make([]*testReplica, len(logs))
	identities := make([]order.ReplicaIdentity, len(logs))
	for i := range logs {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		identities[i] = order.ReplicaIdentity{
			ID:   order.ReplicaID(i + 1),
			Host: "127.0.0.1",
			Port: uint16(lis.Addr().(*net.TCPAddr).Port),
		}
		replicas[i] = &testReplica{identity: identities[i], lis: lis, log: mocks.NewMockLogStorage(logs[i]...)}
	}

	for _, r := range replicas {
		r.transport = transport.NewTransport(order.Without(identities, r.identity.ID), time.Second, nil)
		store := newStore(t, r.log, catalog, r.identity.ID)
		r.server = NewServer(Config{
			Self:          r.identity,
			Replicas:      identities,
			FlushInterval: 20 * time.Millisecond,
			SyncDelay:     syncDelay,
		}, store, r.transport, nil, nil)

		t.Cleanup(func() {
			r.server.GracefulShutdown()
			r.transport.CloseAllClients()
		})
	}
	return replicas
}

func (r *testReplica) start() {
	go r.server.Serve(r.lis)
}

func hasRow(log *mocks.MockLogStorage, want order.TransactionRecord) bool {
	count := 0
	for _, row := range log.Rows() {
		if row.TransactionNumber == want.TransactionNumber {
			if row != want {
				return false
			}
			count++
		}
	}
	return count == 1
}

func TestCluster_CommitReplicatesToEveryDurableLog(t *testing.T) {
	cluster := newCluster(t, acceptingCatalog(), time.Hour, nil, nil, nil)
	for _, r := range cluster {
		r.start()
	}
	leader := cluster[2]

	client := transport.NewTransport([]order.ReplicaIdentity{leader.identity}, time.Second, nil)
	defer client.CloseAllClients()

	resp, err := client.Order(context.Background(), leader.identity.ID, &rpc.OrderRequest{Name: "GameStart", Type: "sell", Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, rpc.CodeOK, resp.Code)

	want := order.TransactionRecord{TransactionNumber: resp.TransactionNum, Name: "GameStart", Type: order.Sell, VolumeTraded: 1}
	for _, r := range cluster {
		assert.Eventually(t, func() bool { return hasRow(r.log, want) }, 2*time.Second, 20*time.Millisecond,
			"replica %d never persisted transaction %d", r.identity.ID, want.TransactionNumber)
	}
}

func TestCluster_SequentialCommitsAreConsecutive(t *testing.T) {
	cluster := newCluster(t, acceptingCatalog(), time.Hour, nil, nil)
	for _, r := range cluster {
		r.start()
	}
	leader := cluster[1]

	client := transport.NewTransport([]order.ReplicaIdentity{leader.identity}, time.Second, nil)
	defer client.CloseAllClients()

	var last uint64
	for i := 0; i < 5; i++ {
		resp, err := client.Order(context.Background(), leader.identity.ID, &rpc.OrderRequest{Name: "BoarCo", Type: "buy", Quantity: 1})
		require.NoError(t, err)
		require.Equal(t, rpc.CodeOK, resp.Code)
		if i > 0 {
			assert.Equal(t, last+1, resp.TransactionNum)
		}
		last = resp.TransactionNum
	}

	follower := cluster[0]
	assert.Eventually(t, func() bool { return len(follower.log.Rows()) == 5 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, last, follower.server.Store().LastTransactionNumber())
}

func TestCluster_StartupSyncFillsGap(t *testing.T) {
	a := []order.TransactionRecord{rec(1), rec(2), rec(3), rec(5)}
	b := []order.TransactionRecord{rec(1), rec(2), rec(3), rec(4), rec(5)}
	cluster := newCluster(t, acceptingCatalog(), 50*time.Millisecond, a, b)

	cluster[1].start()
	cluster[0].start()

	select {
	case <-cluster[0].server.SyncDone():
	case <-time.After(3 * time.Second):
		t.Fatal("sync-up never ran")
	}

	result, err := cluster[0].server.SyncResult()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Appended)

	rows := cluster[0].log.Rows()
	require.Len(t, rows, 5)
	assert.True(t, hasRow(cluster[0].log, rec(4)))

	records, err := cluster[0].server.Store().Records()
	require.NoError(t, err)
	assert.Equal(t, b, records)
}

func TestCluster_SyncWithNoPeersKeepsServing(t *testing.T) {
	cluster := newCluster(t, acceptingCatalog(), 10*time.Millisecond, []order.TransactionRecord{rec(1)}, nil)
	lonely := cluster[0]
	require.NoError(t, cluster[1].lis.Close())
	lonely.start()

	select {
	case <-lonely.server.SyncDone():
	case <-time.After(3 * time.Second):
		t.Fatal("sync-up never ran")
	}
	_, err := lonely.server.SyncResult()
	assert.ErrorIs(t, err, order.ErrPeerUnreachable)

	client := transport.NewTransport([]order.ReplicaIdentity{lonely.identity}, time.Second, nil)
	defer client.CloseAllClients()

	resp, err := client.Order(context.Background(), lonely.identity.ID, &rpc.OrderRequest{Name: "AAPL", Type: "buy", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), resp.TransactionNum)
}

func TestServer_GracefulShutdownFlushes(t *testing.T) {
	cluster := newCluster(t, acceptingCatalog(), time.Hour, nil)
	r := cluster[0]
	r.server.cfg.FlushInterval = time.Hour
	r.start()

	_, err := r.server.Store().ApplyReplicated(rec(1))
	require.NoError(t, err)

	r.server.GracefulShutdown()
	assert.Equal(t, []order.TransactionRecord{rec(1)}, r.log.Rows())

	// A second shutdown is a no-op
	r.server.GracefulShutdown()
}
