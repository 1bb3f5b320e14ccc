package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stock-ledger/internal/config"
	"stock-ledger/internal/discovery"
	"stock-ledger/internal/gateway"
	"stock-ledger/internal/logging"
	"stock-ledger/internal/order/transport"
)

const shutdownTimeout = 5 * time.Second

var (
	configFilePath string
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:     "frontend",
	Short:   "Run the HTTP gateway",
	Long:    "Serves the REST API, caches stock lookups and routes orders to the discovered order leader",
	Example: "FRONTEND_PORT=8091 frontend --config ./stock-ledger.yml",
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&configFilePath, "config", "c", "", "path to an optional YAML configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
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
	if err := cfg.ValidateFrontend(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cmd.SilenceUsage = true

	logger, err := logging.New("frontend", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	orders := transport.NewTransport(cfg.Order.Replicas, cfg.RPCTimeout, logger)
	defer orders.CloseAllClients()

	// Nothing can be served without an order replica
	leaders := discovery.NewLeaderCache(cfg.Order.Replicas, orders, logger)
	leader, err := leaders.Leader(context.Background())
	if err != nil {
		return fmt.Errorf("startup leader discovery failed: %w", err)
	}
	logger.Infof("[GATEWAY] Order leader is replica %s", leader)

	catalogClient, err := gateway.NewCatalogClient(cfg.CatalogAddr(), cfg.RPCTimeout)
	if err != nil {
		return err
	}
	defer catalogClient.Close()

	cache, err := gateway.NewStockCache(cfg.Frontend.CacheSize)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort("", strconv.Itoa(int(cfg.Frontend.Port)))
	srv := gateway.NewServer(addr, gateway.New(cache, catalogClient, orders, leaders, logger))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.StartServer()
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
		logger.Infof("[GATEWAY] Shutdown signal received")
	case err = <-serveErr:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
