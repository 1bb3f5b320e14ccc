package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"stock-ledger/internal/logging"
)

// LoadSnapshot reads the catalog CSV at path. A missing file is reported as fs.ErrNotExist.
func LoadSnapshot(path string) ([]Stock, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog snapshot %s: %w", path, err)
	}
	defer file.Close()

	var stocks []Stock
	if err := gocsv.UnmarshalFile(file, &stocks); err != nil {
		return nil, fmt.Errorf("failed to parse catalog snapshot %s: %w", path, err)
	}
	return stocks, nil
}

// SaveSnapshot rewrites the catalog CSV at path. The rows go to a temporary file first, renamed over path once synced,
// so a crash mid-write never leaves a truncated snapshot behind.
func SaveSnapshot(path string, stocks []Stock) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.Marshal(stocks, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write catalog snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync catalog snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close catalog snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace catalog snapshot %s: %w", path, err)
	}
	return nil
}

// LoadOrSeed loads the snapshot at path, falling back to DefaultStocks when there is none yet
func LoadOrSeed(path string, logger logging.Logger) ([]Stock, error) {
	stocks, err := LoadSnapshot(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Infof("[CATALOG] No snapshot at %s, seeding the default catalog", path)
		return DefaultStocks(), nil
	}
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

// SnapshotJob rewrites the snapshot every interval until ctx is cancelled
func SnapshotJob(ctx context.Context, wg *sync.WaitGroup, catalog *Catalog, path string, interval time.Duration,
	logger logging.Logger) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debugf("[CATALOG] Snapshot job stopped")
			return
		case <-ticker.C:
			if err := SaveSnapshot(path, catalog.Stocks()); err != nil {
				logger.Errorf("[CATALOG] Snapshot failed: %v", err)
			}
		}
	}
}
