package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"stock-ledger/internal/catalog"
	"stock-ledger/internal/config"
	"stock-ledger/internal/logging"
)

var (
	configFilePath string
	logLevel       string
	noInvalidation bool
)

var rootCmd = &cobra.Command{
	Use:     "catalog",
	Short:   "Run the stock catalog service",
	Long:    "Serves stock lookups and trades over gRPC and keeps a CSV snapshot of the inventory",
	Example: "CATALOG_PORT=8092 catalog --config ./stock-ledger.yml",
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&configFilePath, "config", "c", "", "path to an optional YAML configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	rootCmd.Flags().BoolVar(&noInvalidation, "no-invalidation", false, "do not invalidate the gateway cache after trades")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFilePath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.ValidateCatalog(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cmd.SilenceUsage = true

	logger, err := logging.New("catalog", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	stocks, err := catalog.LoadOrSeed(cfg.Catalog.SnapshotFile, logger)
	if err != nil {
		return err
	}

	var invalidator catalog.Invalidator
	if !noInvalidation {
		invalidator = catalog.NewHTTPInvalidator(cfg.FrontendURL(), cfg.RPCTimeout)
	}

	service := catalog.NewService(catalog.Config{
		// Bind every interface, the host setting is how the others reach the catalog
		Address:          net.JoinHostPort("", strconv.Itoa(int(cfg.Catalog.Port))),
		SnapshotFile:     cfg.Catalog.SnapshotFile,
		SnapshotInterval: cfg.Catalog.SnapshotInterval,
	}, catalog.New(stocks), invalidator, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- service.StartServer()
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
		logger.Infof("[CATALOG] Shutdown signal received")
	case err = <-serveErr:
		logger.Errorf("[CATALOG] Server stopped: %v", err)
	}

	service.GracefulShutdown()
	return err
}
