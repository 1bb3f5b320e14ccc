package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"stock-ledger/internal/logging"
)

// Metrics collects counters and commit latencies for one order replica
type Metrics struct {
	mu sync.RWMutex

	// Commit latencies (validation, catalog trade and number assignment)
	commitLatencies []time.Duration

	// Ledger counters
	committed         atomic.Uint64
	rejected          atomic.Uint64
	replicatedApplied atomic.Uint64
	syncedRecords     atomic.Uint64
	flushedRecords    atomic.Uint64

	// RPC counters
	replicationSent   atomic.Uint64
	replicationFailed atomic.Uint64
	heartbeats        atomic.Uint64
	notifications     atomic.Uint64
	syncUpsServed     atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		commitLatencies: make([]time.Duration, 0, 1024),
		startTime:       time.Now(),
	}
}

// RecordCommitLatency records how long a single accepted order took to commit
func (m *Metrics) RecordCommitLatency(latency time.Duration) {
	m.mu.Lock()
	m.commitLatencies = append(m.commitLatencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) RecordCommitted() {
	m.committed.Add(1)
}

func (m *Metrics) RecordRejected() {
	m.rejected.Add(1)
}

func (m *Metrics) RecordReplicatedApplied() {
	m.replicatedApplied.Add(1)
}

func (m *Metrics) RecordSyncedRecords(n int) {
	m.syncedRecords.Add(uint64(n))
}

func (m *Metrics) RecordFlushed(n int) {
	m.flushedRecords.Add(uint64(n))
}

// RecordReplicationSent counts a ReplicateOrder call a follower acknowledged
func (m *Metrics) RecordReplicationSent() {
	m.replicationSent.Add(1)
}

// RecordReplicationFailed counts a ReplicateOrder call that timed out or failed
func (m *Metrics) RecordReplicationFailed() {
	m.replicationFailed.Add(1)
}

func (m *Metrics) RecordHeartbeat() {
	m.heartbeats.Add(1)
}

func (m *Metrics) RecordNotification() {
	m.notifications.Add(1)
}

func (m *Metrics) RecordSyncUpServed() {
	m.syncUpsServed.Add(1)
}

// LatencyStats contains percentile statistics for latencies
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	StdDev float64 `json:"stddev_ms"`
}

// GetLatencyStats computes percentile statistics from recorded commit latencies
func (m *Metrics) GetLatencyStats() LatencyStats {
	m.mu.RLock()
	latencies := make([]time.Duration, len(m.commitLatencies))
	copy(latencies, m.commitLatencies)
	m.mu.RUnlock()

	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	latenciesMs := make([]float64, len(latencies))
	var sum float64
	for i, lat := range latencies {
		ms := float64(lat.Microseconds()) / 1000.0
		latenciesMs[i] = ms
		sum += ms
	}

	mean := sum / float64(len(latenciesMs))

	var variance float64
	for _, lat := range latenciesMs {
		diff := lat - mean
		variance += diff * diff
	}

	return LatencyStats{
		Count:  len(latencies),
		Min:    latenciesMs[0],
		Max:    latenciesMs[len(latenciesMs)-1],
		Mean:   mean,
		P50:    percentile(latenciesMs, 50),
		P95:    percentile(latenciesMs, 95),
		P99:    percentile(latenciesMs, 99),
		StdDev: math.Sqrt(variance / float64(len(latenciesMs))),
	}
}

// percentile calculates the nth percentile from sorted data
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// GetThroughput returns committed orders per second since the collector started
func (m *Metrics) GetThroughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.committed.Load()) / elapsed
}

// Report is a point-in-time snapshot of a replica's metrics
type Report struct {
	ReplicaID uint32    `json:"replica_id"`
	Uptime    float64   `json:"uptime_seconds"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Committed         uint64  `json:"orders_committed"`
	Rejected          uint64  `json:"orders_rejected"`
	ThroughputPerSec  float64 `json:"throughput_orders_per_sec"`
	ReplicatedApplied uint64  `json:"replicated_applied"`
	SyncedRecords     uint64  `json:"synced_records"`
	FlushedRecords    uint64  `json:"flushed_records"`

	CommitLatency LatencyStats `json:"commit_latency"`

	ReplicationSent   uint64 `json:"replication_sent"`
	ReplicationFailed uint64 `json:"replication_failed"`
	Heartbeats        uint64 `json:"heartbeats"`
	Notifications     uint64 `json:"notifications"`
	SyncUpsServed     uint64 `json:"sync_ups_served"`
}

// GetReport generates a report for the given replica
func (m *Metrics) GetReport(replicaID uint32) Report {
	endTime := time.Now()

	return Report{
		ReplicaID:         replicaID,
		Uptime:            endTime.Sub(m.startTime).Seconds(),
		StartTime:         m.startTime,
		EndTime:           endTime,
		Committed:         m.committed.Load(),
		Rejected:          m.rejected.Load(),
		ThroughputPerSec:  m.GetThroughput(),
		ReplicatedApplied: m.replicatedApplied.Load(),
		SyncedRecords:     m.syncedRecords.Load(),
		FlushedRecords:    m.flushedRecords.Load(),
		CommitLatency:     m.GetLatencyStats(),
		ReplicationSent:   m.replicationSent.Load(),
		ReplicationFailed: m.replicationFailed.Load(),
		Heartbeats:        m.heartbeats.Load(),
		Notifications:     m.notifications.Load(),
		SyncUpsServed:     m.syncUpsServed.Load(),
	}
}

// Log writes the report through the replica's logger
func (r *Report) Log(logger logging.Logger) {
	logger.Infof("[ORDER-%d] Metrics: committed=%d rejected=%d throughput=%.2f/s replicated=%d synced=%d flushed=%d",
		r.ReplicaID, r.Committed, r.Rejected, r.ThroughputPerSec, r.ReplicatedApplied, r.SyncedRecords, r.FlushedRecords)
	logger.Infof("[ORDER-%d] Metrics: replication sent=%d failed=%d heartbeats=%d notifications=%d sync-ups=%d",
		r.ReplicaID, r.ReplicationSent, r.ReplicationFailed, r.Heartbeats, r.Notifications, r.SyncUpsServed)
	if r.CommitLatency.Count > 0 {
		logger.Infof("[ORDER-%d] Commit latency: p50=%.3fms p95=%.3fms p99=%.3fms max=%.3fms",
			r.ReplicaID, r.CommitLatency.P50, r.CommitLatency.P95, r.CommitLatency.P99, r.CommitLatency.Max)
	}
}

// SaveJSON writes the report to a JSON file
func (r *Report) SaveJSON(filename string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", filename, err)
	}
	return nil
}

// Reset clears all collected metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	m.commitLatencies = make([]time.Duration, 0, 1024)
	m.mu.Unlock()

	m.committed.Store(0)
	m.rejected.Store(0)
	m.replicatedApplied.Store(0)
	m.syncedRecords.Store(0)
	m.flushedRecords.Store(0)
	m.replicationSent.Store(0)
	m.replicationFailed.Store(0)
	m.heartbeats.Store(0)
	m.notifications.Store(0)
	m.syncUpsServed.Store(0)
	m.startTime = time.Now()
}
