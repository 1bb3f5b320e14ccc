package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/order/storage"
)

// Catalog is the inventory collaborator consulted before a trade is committed. Trade returns nil when the catalog
// accepted the trade, order.ErrInsufficientStock when it refused it, and any other error when it could not be reached.
type Catalog interface {
	Trade(ctx context.Context, name string, tradeType order.TradeType, quantity uint64) error
}

// MetricsCollector is an optional interface for collecting ledger metrics
type MetricsCollector interface {
	RecordCommitLatency(latency time.Duration)
	RecordCommitted()
	RecordRejected()
	RecordReplicatedApplied()
	RecordSyncedRecords(n int)
	RecordFlushed(n int)
}

// Options configures a Store
type Options struct {
	ReplicaID order.ReplicaID
	// Instruments is the set of tradable stock names, order.DefaultInstruments when empty
	Instruments []string
	Logger      logging.Logger
	Metrics     MetricsCollector
}

// Store is the single owner of a replica's ledger state: the transaction counter, the in-memory log of records
// pending a durable flush, the durable log and the advisory leader id. Every operation goes through its methods.
//
// Write section (mu.Lock): number assignment on commit, applying a replicated record, appending synced records,
// draining pending records to the durable log, recording the leader. Read section (mu.RLock): lookups and the
// sync-up export scan, which may run concurrently with each other.
//
// sync.RWMutex blocks new readers once a writer is waiting, and a writer releasing the lock lets the waiting readers
// in, so neither side starves the other.
type Store struct {
	mu sync.RWMutex

	replicaID order.ReplicaID
	// lastNumber is the highest transaction number this replica assigned or saw. The next commit uses lastNumber+1.
	lastNumber uint64
	// pending holds records not yet drained to the durable log, keyed by transaction number
	pending map[uint64]order.TransactionRecord
	// durable indexes the transaction numbers already in the durable log so nothing is appended twice
	durable map[uint64]struct{}
	log     storage.LogStorage
	// leaderID is set by NotifyReplica. It is advisory only and gates nothing.
	leaderID *order.ReplicaID

	catalog     Catalog
	instruments map[string]struct{}
	logger      logging.Logger
	metrics     MetricsCollector
}

// New builds a Store on top of an opened durable log, reconstructing the counter from the highest stored number
func New(log storage.LogStorage, catalog Catalog, opts Options) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("durable log is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	records, err := log.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load durable log: %w", err)
	}

	s := &Store{
		replicaID:   opts.ReplicaID,
		pending:     make(map[uint64]order.TransactionRecord),
		durable:     make(map[uint64]struct{}, len(records)),
		log:         log,
		catalog:     catalog,
		instruments: make(map[string]struct{}),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	instruments := opts.Instruments
	if len(instruments) == 0 {
		instruments = order.DefaultInstruments
	}
	for _, name := range instruments {
		s.instruments[name] = struct{}{}
	}

	for _, r := range records {
		s.durable[r.TransactionNumber] = struct{}{}
		if r.TransactionNumber > s.lastNumber {
			s.lastNumber = r.TransactionNumber
		}
	}

	s.logger.Infof("[ORDER-%d] Loaded %d durable records, starting transaction number is %d",
		s.replicaID, len(records), s.lastNumber)

	return s, nil
}

// Validate checks a trade request without side effects
func (s *Store) Validate(name string, rawType string, volume int64) (order.TradeType, error) {
	if _, ok := s.instruments[name]; !ok {
		return "", fmt.Errorf("%w: %q", order.ErrUnknownInstrument, name)
	}

	tradeType, err := order.ParseTradeType(rawType)
	if err != nil {
		return "", err
	}

	if volume < 0 {
		return "", fmt.Errorf("%w: %d", order.ErrNegativeVolume, volume)
	}

	return tradeType, nil
}

// Commit validates a trade, asks the catalog to execute it and, if accepted, assigns it the next transaction number.
// Rejections (order.IsRejected) consume no number. The returned record carries the number this specific call was
// assigned, which is what the caller must replicate.
func (s *Store) Commit(ctx context.Context, name string, rawType string, volume int64) (order.TransactionRecord, error) {
	start := time.Now()

	tradeType, err := s.Validate(name, rawType, volume)
	if err != nil {
		s.recordRejected()
		return order.TransactionRecord{}, err
	}

	// The catalog call happens outside the lock: it is a remote call and holding the write lock across it would
	// stall every read on this replica.
	if err := s.catalog.Trade(ctx, name, tradeType, uint64(volume)); err != nil {
		if order.IsRejected(err) {
			s.recordRejected()
		}
		return order.TransactionRecord{}, err
	}

	s.mu.Lock()
	s.lastNumber++
	record := order.TransactionRecord{
		TransactionNumber: s.lastNumber,
		Name:              name,
		Type:              tradeType,
		VolumeTraded:      uint64(volume),
	}
	s.pending[record.TransactionNumber] = record
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordCommitted()
		s.metrics.RecordCommitLatency(time.Since(start))
	}

	return record, nil
}

// ApplyReplicated upserts a record pushed by the leader and advances the counter to max(current, received). It never
// sets the counter to the received number directly: a late replication of an old number must not move it backwards.
// It reports whether the record was stored; a record already in the durable log is left alone.
func (s *Store) ApplyReplicated(record order.TransactionRecord) (bool, error) {
	if record.TransactionNumber == 0 {
		return false, fmt.Errorf("transaction number 0 is not a valid record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.TransactionNumber > s.lastNumber {
		s.lastNumber = record.TransactionNumber
	}

	if _, ok := s.durable[record.TransactionNumber]; ok {
		return false, nil
	}

	s.pending[record.TransactionNumber] = record
	if s.metrics != nil {
		s.metrics.RecordReplicatedApplied()
	}
	return true, nil
}

// AppendSynced durably appends records fetched by sync-up. Records already present, durable or pending, are dropped,
// the rest are appended in ascending transaction order. It returns how many records were appended.
func (s *Store) AppendSynced(records []order.TransactionRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]order.TransactionRecord, 0, len(records))
	seen := make(map[uint64]struct{}, len(records))
	for _, r := range records {
		if r.TransactionNumber == 0 {
			continue
		}
		if _, ok := seen[r.TransactionNumber]; ok {
			continue
		}
		if _, ok := s.durable[r.TransactionNumber]; ok {
			continue
		}
		if _, ok := s.pending[r.TransactionNumber]; ok {
			continue
		}
		seen[r.TransactionNumber] = struct{}{}
		fresh = append(fresh, r)
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	order.SortRecords(fresh)
	if err := s.log.Append(fresh...); err != nil {
		return 0, fmt.Errorf("failed to append %d synced records: %w", len(fresh), err)
	}

	for _, r := range fresh {
		s.durable[r.TransactionNumber] = struct{}{}
		if r.TransactionNumber > s.lastNumber {
			s.lastNumber = r.TransactionNumber
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSyncedRecords(len(fresh))
	}
	return len(fresh), nil
}

// Flush drains the pending records to the durable log in transaction order. On failure the records stay pending and
// the next flush retries them.
func (s *Store) Flush() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return 0, nil
	}

	batch := make([]order.TransactionRecord, 0, len(s.pending))
	for n, r := range s.pending {
		if _, ok := s.durable[n]; ok {
			continue
		}
		batch = append(batch, r)
	}
	order.SortRecords(batch)

	if err := s.log.Append(batch...); err != nil {
		return 0, fmt.Errorf("failed to flush %d records: %w", len(batch), err)
	}

	for _, r := range batch {
		s.durable[r.TransactionNumber] = struct{}{}
	}
	s.pending = make(map[uint64]order.TransactionRecord)

	if s.metrics != nil {
		s.metrics.RecordFlushed(len(batch))
	}
	return len(batch), nil
}

// Lookup finds a record by transaction number, in the pending records first and then in the durable log
func (s *Store) Lookup(number uint64) (order.TransactionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.pending[number]; ok {
		return r, true, nil
	}
	if _, ok := s.durable[number]; !ok {
		return order.TransactionRecord{}, false, nil
	}
	return s.log.Get(number)
}

// ExportAfter returns every record above number, durable and pending, for a peer catching up
func (s *Store) ExportAfter(number uint64) ([]order.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.log.ScanAfter(number)
	if err != nil {
		return nil, fmt.Errorf("failed to scan durable log after %d: %w", number, err)
	}

	for n, r := range s.pending {
		if _, ok := s.durable[n]; n > number && !ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// Records returns the whole ledger of this replica, durable and pending, in transaction order
func (s *Store) Records() ([]order.TransactionRecord, error) {
	records, err := s.ExportAfter(0)
	if err != nil {
		return nil, err
	}
	order.SortRecords(records)
	return records, nil
}

// LastTransactionNumber is the highest number assigned or seen so far
func (s *Store) LastTransactionNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastNumber
}

// DurableTransactionNumber is the highest number in the durable log, the starting point of sync-up
func (s *Store) DurableTransactionNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last uint64
	for n := range s.durable {
		if n > last {
			last = n
		}
	}
	return last
}

// KnownTransactionNumber is the highest n such that every number from 1 to n is held by this replica, durable or
// pending. Sync-up asks peers for everything above it, so interior gaps are filled along with the tail.
func (s *Store) KnownTransactionNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n uint64
	for {
		if _, ok := s.durable[n+1]; ok {
			n++
			continue
		}
		if _, ok := s.pending[n+1]; ok {
			n++
			continue
		}
		return n
	}
}

// PendingCount is the number of records waiting for the next flush
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// SetLeader records the leader a discoverer announced
func (s *Store) SetLeader(id order.ReplicaID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderID = &id
}

// Leader returns the last announced leader, if any
func (s *Store) Leader() (order.ReplicaID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.leaderID == nil {
		return 0, false
	}
	return *s.leaderID, true
}

func (s *Store) recordRejected() {
	if s.metrics != nil {
		s.metrics.RecordRejected()
	}
}
