package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-ledger/internal/logging"
)

func TestSnapshot(t *testing.T) {
	t.Run("round trip keeps the column order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.csv")
		stocks := []Stock{{Name: "AAPL", Price: 189.5, Quantity: 7, Volume: 2}}

		require.NoError(t, SaveSnapshot(path, stocks))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "Name,Price,Quantity,Volume\n"))

		loaded, err := LoadSnapshot(path)
		require.NoError(t, err)
		assert.Equal(t, stocks, loaded)
	})

	t.Run("rewrite replaces the previous content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.csv")
		require.NoError(t, SaveSnapshot(path, DefaultStocks()))
		require.NoError(t, SaveSnapshot(path, []Stock{{Name: "NVDA", Price: 1, Quantity: 1}}))

		loaded, err := LoadSnapshot(path)
		require.NoError(t, err)
		assert.Len(t, loaded, 1)

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary files must not be left behind")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.csv"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("load or seed falls back to the defaults", func(t *testing.T) {
		stocks, err := LoadOrSeed(filepath.Join(t.TempDir(), "absent.csv"), logging.NewNop())
		require.NoError(t, err)
		assert.Equal(t, DefaultStocks(), stocks)
	})

	t.Run("load or seed reports a corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.csv")
		require.NoError(t, os.WriteFile(path, []byte("Name,Price,Quantity,Volume\nAAPL,abc,1,1\n"), 0o644))

		_, err := LoadOrSeed(path, logging.NewNop())
		assert.Error(t, err)
	})
}

func TestSnapshotJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	c := testCatalog()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go SnapshotJob(ctx, &wg, c, path, 10*time.Millisecond, logging.NewNop())

	assert.Eventually(t, func() bool {
		stocks, err := LoadSnapshot(path)
		return err == nil && len(stocks) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}
