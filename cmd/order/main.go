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

	"stock-ledger/internal/config"
	"stock-ledger/internal/logging"
	"stock-ledger/internal/order/ledger"
	"stock-ledger/internal/order/metrics"
	"stock-ledger/internal/order/server"
	"stock-ledger/internal/order/storage"
	"stock-ledger/internal/order/transport"
)

var (
	configFilePath  string
	logLevel        string
	metricsFilePath string
)

var rootCmd = &cobra.Command{
	Use:     "order",
	Short:   "Run an order ledger replica",
	Long:    "Runs one replica of the order service: commits trades, replicates them to its peers and catches up on start",
	Example: "ORDER_ID=3 ORDER_PORT=8095 order --config ./stock-ledger.yml",
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&configFilePath, "config", "c", "", "path to an optional YAML configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	rootCmd.Flags().StringVar(&metricsFilePath, "metrics-file", "", "write the metrics report as JSON to this file on shutdown")
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
	if err := cfg.ValidateOrder(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cmd.SilenceUsage = true

	self, _ := cfg.Self()

	logger, err := logging.New(fmt.Sprintf("order-%d", self.ID), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	log, err := storage.Open(cfg.Order.Storage, cfg.Order.DataDir, self.ID)
	if err != nil {
		return fmt.Errorf("failed to open the order log: %w", err)
	}
	defer func() {
		if err := log.Close(); err != nil {
			logger.Errorf("[ORDER-%d] Failed to close the order log: %v", self.ID, err)
		}
	}()

	catalogClient, err := server.NewCatalogClient(cfg.CatalogAddr(), cfg.RPCTimeout)
	if err != nil {
		return err
	}
	defer catalogClient.Close()

	m := metrics.NewMetrics()
	store, err := ledger.New(log, catalogClient, ledger.Options{
		ReplicaID: self.ID,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	peers := transport.NewTransport(cfg.Peers(), cfg.RPCTimeout, logger)
	defer peers.CloseAllClients()

	srv := server.NewServer(server.Config{
		Self:          self,
		Replicas:      cfg.Order.Replicas,
		FlushInterval: cfg.Order.FlushInterval,
		SyncDelay:     cfg.Order.SyncDelay,
	}, store, peers, logger, m)

	// The replica list carries the advertised address, this process binds every interface on its own port
	lis, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(cfg.Order.Port))))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", cfg.Order.Port, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
		logger.Infof("[ORDER-%d] Shutdown signal received", self.ID)
	case err = <-serveErr:
		logger.Errorf("[ORDER-%d] Server stopped: %v", self.ID, err)
	}

	srv.GracefulShutdown()

	report := m.GetReport(uint32(self.ID))
	report.Log(logger)
	if metricsFilePath != "" {
		if saveErr := report.SaveJSON(metricsFilePath); saveErr != nil {
			logger.Errorf("[ORDER-%d] %v", self.ID, saveErr)
		}
	}
	return err
}
