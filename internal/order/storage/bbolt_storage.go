package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"stock-ledger/internal/order"
)

var (
	// Bucket names
	transactionsBucket = []byte("transactions")
)

// BboltDb stores the log in a bbolt bucket keyed by the big-endian transaction number, so cursor order is
// transaction order. Values are msgpack encoded records.
type BboltDb struct {
	conn *bbolt.DB
}

// NewBboltStorage creates a new BBolt-backed storage instance
func NewBboltStorage(path string) (*BboltDb, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(transactionsBucket); err != nil {
			return fmt.Errorf("failed to create transactions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BboltDb{conn: db}, nil
}

// Append stores records in a single transaction. Re-appending a number overwrites it.
func (b *BboltDb) Append(records ...order.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	return b.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(transactionsBucket)

		for _, record := range records {
			data, err := msgpack.Marshal(&record)
			if err != nil {
				return fmt.Errorf("failed to marshal transaction %d: %w", record.TransactionNumber, err)
			}

			if err := bucket.Put(uint64ToBytes(record.TransactionNumber), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves the record with the given transaction number
func (b *BboltDb) Get(number uint64) (order.TransactionRecord, bool, error) {
	var (
		record order.TransactionRecord
		found  bool
	)
	err := b.conn.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(transactionsBucket).Get(uint64ToBytes(number))
		if data == nil {
			return nil
		}

		found = true
		if err := msgpack.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to unmarshal transaction %d: %w", number, err)
		}
		return nil
	})
	return record, found, err
}

// ScanAfter seeks past number and walks the cursor to the end
func (b *BboltDb) ScanAfter(number uint64) ([]order.TransactionRecord, error) {
	var records []order.TransactionRecord
	err := b.conn.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(transactionsBucket).Cursor()

		for k, v := cursor.Seek(uint64ToBytes(number + 1)); k != nil; k, v = cursor.Next() {
			var record order.TransactionRecord
			if err := msgpack.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal transaction %d: %w", bytesToUint64(k), err)
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// LoadAll returns every record in transaction order
func (b *BboltDb) LoadAll() ([]order.TransactionRecord, error) {
	return b.ScanAfter(0)
}

// LastTransactionNumber returns the key of the last cursor position (0 if the log is empty)
func (b *BboltDb) LastTransactionNumber() (uint64, error) {
	var last uint64
	err := b.conn.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(transactionsBucket).Cursor().Last()
		if k != nil {
			last = bytesToUint64(k)
		}
		return nil
	})
	return last, err
}

// Close closes the storage connection
func (b *BboltDb) Close() error {
	return b.conn.Close()
}

// Helper functions for uint64 <-> []byte conversion
func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
