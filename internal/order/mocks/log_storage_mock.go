package mocks

import (
	"sync"

	"stock-ledger/internal/order"
)

// MockLogStorage is an in-memory implementation of storage.LogStorage for testing. It keeps rows in append order.
type MockLogStorage struct {
	mu      sync.RWMutex
	records []order.TransactionRecord

	// Error injection for testing
	AppendError    error
	ScanAfterError error
	LoadAllError   error
	GetError       error
	LastError      error

	AppendCallCount int
}

// NewMockLogStorage creates a new mock log storage, optionally pre-filled
func NewMockLogStorage(records ...order.TransactionRecord) *MockLogStorage {
	return &MockLogStorage{
		records: append([]order.TransactionRecord(nil), records...),
	}
}

func (m *MockLogStorage) Append(records ...order.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCallCount++
	if m.AppendError != nil {
		return m.AppendError
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *MockLogStorage) ScanAfter(number uint64) ([]order.TransactionRecord, error) {
	if m.ScanAfterError != nil {
		return nil, m.ScanAfterError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []order.TransactionRecord
	for _, r := range m.records {
		if r.TransactionNumber > number {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MockLogStorage) LoadAll() ([]order.TransactionRecord, error) {
	if m.LoadAllError != nil {
		return nil, m.LoadAllError
	}
	return m.Rows(), nil
}

func (m *MockLogStorage) Get(number uint64) (order.TransactionRecord, bool, error) {
	if m.GetError != nil {
		return order.TransactionRecord{}, false, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.TransactionNumber == number {
			return r, true, nil
		}
	}
	return order.TransactionRecord{}, false, nil
}

func (m *MockLogStorage) LastTransactionNumber() (uint64, error) {
	if m.LastError != nil {
		return 0, m.LastError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last uint64
	for _, r := range m.records {
		if r.TransactionNumber > last {
			last = r.TransactionNumber
		}
	}
	return last, nil
}

func (m *MockLogStorage) Close() error {
	return nil
}

// Rows returns a copy of the stored rows in append order
func (m *MockLogStorage) Rows() []order.TransactionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]order.TransactionRecord, len(m.records))
	copy(result, m.records)
	return result
}

// SetAppendError changes the injected Append error while the mock is in use
func (m *MockLogStorage) SetAppendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendError = err
}
