package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"stock-ledger/internal/order"
)

// MockCatalog is a testify mock of ledger.Catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Trade(ctx context.Context, name string, tradeType order.TradeType, quantity uint64) error {
	args := m.Called(ctx, name, tradeType, quantity)
	return args.Error(0)
}
