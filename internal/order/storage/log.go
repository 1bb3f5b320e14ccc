package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"stock-ledger/internal/order"
)

// LogStorage is the durable, append-only trade log of a single replica. Records are keyed by transaction number and
// a number appears at most once; callers de-duplicate before appending.
//
// The on-disk encoding is hidden behind this interface so the replication and sync-up protocols never depend on it.
type LogStorage interface {
	// Append durably appends records in the given order
	Append(records ...order.TransactionRecord) error

	// ScanAfter returns every record whose transaction number is strictly greater than number
	ScanAfter(number uint64) ([]order.TransactionRecord, error)

	// LoadAll returns the whole log
	LoadAll() ([]order.TransactionRecord, error)

	// Get returns the record with the given transaction number, if present
	Get(number uint64) (order.TransactionRecord, bool, error)

	// LastTransactionNumber returns the highest stored transaction number, 0 if the log is empty or absent
	LastTransactionNumber() (uint64, error)

	// Close releases the underlying file handles
	Close() error
}

// Backend names accepted by Open
const (
	BackendCSV  = "csv"
	BackendBolt = "bolt"
)

// Path returns the file a replica's log lives in. Logs are keyed by replica id so replicas can share a data dir.
func Path(dir string, backend string, id order.ReplicaID) string {
	ext := "csv"
	if backend == BackendBolt {
		ext = "db"
	}
	return filepath.Join(dir, fmt.Sprintf("order_log_%d.%s", id, ext))
}

// Open opens (creating if needed) the log of replica id in dir using the given backend
func Open(backend string, dir string, id order.ReplicaID) (LogStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	path := Path(dir, backend, id)
	switch backend {
	case BackendCSV:
		return NewCSVStorage(path), nil
	case BackendBolt:
		db, err := NewBboltStorage(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
