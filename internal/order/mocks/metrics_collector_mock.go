package mocks

import (
	"sync"
	"time"
)

// MockMetricsCollector is a mock implementation of the ledger and server MetricsCollector interfaces for testing
type MockMetricsCollector struct {
	mu                sync.RWMutex
	CommitLatencies   []time.Duration
	CommittedCount    int
	RejectedCount     int
	ReplicatedApplied int
	SyncedRecords     int
	FlushedRecords    int
	ReplicationSent   int
	ReplicationFailed int
	HeartbeatCount    int
	NotificationCount int
	SyncUpsServed     int
}

// NewMockMetricsCollector creates a new mock metrics collector
func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{
		CommitLatencies: make([]time.Duration, 0),
	}
}

func (m *MockMetricsCollector) RecordCommitLatency(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitLatencies = append(m.CommitLatencies, latency)
}

func (m *MockMetricsCollector) RecordCommitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommittedCount++
}

func (m *MockMetricsCollector) RecordRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RejectedCount++
}

func (m *MockMetricsCollector) RecordReplicatedApplied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicatedApplied++
}

func (m *MockMetricsCollector) RecordSyncedRecords(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncedRecords += n
}

func (m *MockMetricsCollector) RecordFlushed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushedRecords += n
}

func (m *MockMetricsCollector) RecordReplicationSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicationSent++
}

func (m *MockMetricsCollector) RecordReplicationFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplicationFailed++
}

func (m *MockMetricsCollector) RecordHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeartbeatCount++
}

func (m *MockMetricsCollector) RecordNotification() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotificationCount++
}

func (m *MockMetricsCollector) RecordSyncUpServed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncUpsServed++
}

// MetricsCounts is a lock-free copy of the counters recorded by MockMetricsCollector
type MetricsCounts struct {
	Commits           int
	Committed         int
	Rejected          int
	ReplicatedApplied int
	SyncedRecords     int
	FlushedRecords    int
	ReplicationSent   int
	ReplicationFailed int
	Heartbeats        int
	Notifications     int
	SyncUpsServed     int
}

// Counts returns the counters recorded so far
func (m *MockMetricsCollector) Counts() MetricsCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsCounts{
		Commits:           len(m.CommitLatencies),
		Committed:         m.CommittedCount,
		Rejected:          m.RejectedCount,
		ReplicatedApplied: m.ReplicatedApplied,
		SyncedRecords:     m.SyncedRecords,
		FlushedRecords:    m.FlushedRecords,
		ReplicationSent:   m.ReplicationSent,
		ReplicationFailed: m.ReplicationFailed,
		Heartbeats:        m.HeartbeatCount,
		Notifications:     m.NotificationCount,
		SyncUpsServed:     m.SyncUpsServed,
	}
}
