package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/gocarina/gocsv"

	"stock-ledger/internal/order"
)

// CSVStorage keeps the log as a CSV table with the header TransactionNumber,Name,Type,VolumeTraded. Rows are only ever
// appended, in the order Append receives them.
type CSVStorage struct {
	path string
	// Serializes file access. The ledger already excludes writers from readers, this only protects the file itself.
	mu sync.Mutex
}

// NewCSVStorage returns a CSV log at path. The file is created on the first Append.
func NewCSVStorage(path string) *CSVStorage {
	return &CSVStorage{path: path}
}

// Append appends records to the CSV file, writing the header first if the file is new or empty
func (c *CSVStorage) Append(records ...order.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open order log %s: %w", c.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat order log %s: %w", c.path, err)
	}

	if info.Size() == 0 {
		err = gocsv.Marshal(records, file)
	} else {
		err = gocsv.MarshalWithoutHeaders(records, file)
	}
	if err != nil {
		return fmt.Errorf("failed to append %d records to %s: %w", len(records), c.path, err)
	}

	return file.Sync()
}

// LoadAll reads every row of the log. A missing or empty file is an empty log.
func (c *CSVStorage) LoadAll() ([]order.TransactionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readAll()
}

func (c *CSVStorage) readAll() ([]order.TransactionRecord, error) {
	file, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open order log %s: %w", c.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat order log %s: %w", c.path, err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	var records []order.TransactionRecord
	if err := gocsv.Unmarshal(file, &records); err != nil {
		return nil, fmt.Errorf("failed to parse order log %s: %w", c.path, err)
	}
	return records, nil
}

// ScanAfter returns the rows with a transaction number above number, in file order
func (c *CSVStorage) ScanAfter(number uint64) ([]order.TransactionRecord, error) {
	all, err := c.LoadAll()
	if err != nil {
		return nil, err
	}

	var missing []order.TransactionRecord
	for _, r := range all {
		if r.TransactionNumber > number {
			missing = append(missing, r)
		}
	}
	return missing, nil
}

// Get scans the file for the given transaction number
func (c *CSVStorage) Get(number uint64) (order.TransactionRecord, bool, error) {
	all, err := c.LoadAll()
	if err != nil {
		return order.TransactionRecord{}, false, err
	}

	for _, r := range all {
		if r.TransactionNumber == number {
			return r, true, nil
		}
	}
	return order.TransactionRecord{}, false, nil
}

// LastTransactionNumber returns the highest number in the file. Rows are in commit order on the leader, but synced
// rows may land after newer local ones, so the maximum is taken rather than the last row.
func (c *CSVStorage) LastTransactionNumber() (uint64, error) {
	all, err := c.LoadAll()
	if err != nil {
		return 0, err
	}

	var last uint64
	for _, r := range all {
		if r.TransactionNumber > last {
			last = r.TransactionNumber
		}
	}
	return last, nil
}

// Close is a no-op, the file is opened per operation
func (c *CSVStorage) Close() error {
	return nil
}
