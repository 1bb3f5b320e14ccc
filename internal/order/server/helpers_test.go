package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-ledger/internal/order"
	"stock-ledger/internal/order/ledger"
	"stock-ledger/internal/order/mocks"
	"stock-ledger/internal/rpc"
)

// mockPeerTransport is a testify mock of PeerTransport
type mockPeerTransport struct {
	mock.Mock
}

func (m *mockPeerTransport) ReplicateOrder(_ context.Context, id order.ReplicaID, req *rpc.ReplicateOrderRequest) error {
	args := m.Called(id, req.TransactionNum)
	return args.Error(0)
}

func (m *mockPeerTransport) SyncUp(_ context.Context, id order.ReplicaID, _ order.ReplicaID, known uint64) ([]order.TransactionRecord, error) {
	args := m.Called(id, known)
	records, _ := args.Get(0).([]order.TransactionRecord)
	return records, args.Error(1)
}

func rec(n uint64) order.TransactionRecord {
	return order.TransactionRecord{TransactionNumber: n, Name: "GameStart", Type: order.Sell, VolumeTraded: n}
}

func acceptingCatalog() *mocks.MockCatalog {
	catalog := &mocks.MockCatalog{}
	catalog.On("Trade", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return catalog
}

func newStore(t *testing.T, log *mocks.MockLogStorage, catalog ledger.Catalog, id order.ReplicaID) *ledger.Store {
	t.Helper()
	store, err := ledger.New(log, catalog, ledger.Options{ReplicaID: id})
	require.NoError(t, err)
	return store
}

func identities(ids ...order.ReplicaID) []order.ReplicaIdentity {
	replicas := make([]order.ReplicaIdentity, 0, len(ids))
	for _, id := range ids {
		replicas = append(replicas, order.ReplicaIdentity{ID: id, Host: "127.0.0.1", Port: uint16(9000 + id)})
	}
	return replicas
}
