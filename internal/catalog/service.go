package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	"stock-ledger/internal"
	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/rpc"
)

// Config of the catalog service
type Config struct {
	Address          string
	SnapshotFile     string
	SnapshotInterval time.Duration
}

// Service serves CatalogService over gRPC and keeps the CSV snapshot fresh
type Service struct {
	cfg         Config
	catalog     *Catalog
	invalidator Invalidator
	grpcServer  *grpc.Server
	logger      logging.Logger

	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
}

// NewService builds the service. invalidator may be nil, trades then skip cache invalidation.
func NewService(cfg Config, catalog *Catalog, invalidator Invalidator, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}

	jobsCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:         cfg,
		catalog:     catalog,
		invalidator: invalidator,
		logger:      logger,
		jobsCtx:     jobsCtx,
		cancelJobs:  cancel,
	}

	s.grpcServer = grpc.NewServer(rpc.ServerOptions()...)
	rpc.RegisterCatalogServiceServer(s.grpcServer, s)
	return s
}

func (s *Service) Lookup(_ context.Context, req *rpc.LookupRequest) (*rpc.LookupResponse, error) {
	stock, err := s.catalog.Lookup(req.StockName)
	if err != nil {
		return &rpc.LookupResponse{Code: rpc.CodeNotFound, Message: MessageStockNotFound}, nil
	}
	return &rpc.LookupResponse{
		Code:     rpc.CodeOK,
		Name:     stock.Name,
		Price:    stock.Price,
		Quantity: stock.Quantity,
	}, nil
}

// Trade executes a trade and, once it succeeded, asks the gateway to forget the cached stock. The invalidation is
// best-effort and never fails the trade.
func (s *Service) Trade(ctx context.Context, req *rpc.TradeRequest) (*rpc.TradeResponse, error) {
	requestID := internal.RequestIDOr(ctx, "-")

	tradeType, err := order.ParseTradeType(req.Type)
	if err != nil {
		return &rpc.TradeResponse{Code: rpc.CodeNotFound, Message: order.ErrInvalidTradeType.Error()}, nil
	}

	stock, err := s.catalog.Trade(req.Name, tradeType, req.Quantity)
	if err != nil {
		s.logger.Infof("[CATALOG] [%s] Refused %s of %d %s: %v", requestID, tradeType, req.Quantity, req.Name, err)
		return &rpc.TradeResponse{Code: rpc.CodeNotFound, Message: rejectionMessage(err)}, nil
	}
	s.logger.Infof("[CATALOG] [%s] Executed %s of %d %s, %d left", requestID, tradeType, req.Quantity, req.Name, stock.Quantity)

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, req.Name); err != nil {
			s.logger.Warnf("[CATALOG] [%s] %v", requestID, err)
		}
	}
	return &rpc.TradeResponse{Code: rpc.CodeOK}, nil
}

func rejectionMessage(err error) string {
	for _, sentinel := range []error{ErrStockNotFound, ErrNotEnough, order.ErrNegativeVolume, order.ErrInvalidTradeType} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// Serve starts the snapshot job and serves gRPC on lis. It blocks until the service stops.
func (s *Service) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return grpc.ErrServerStopped
	}
	if s.cfg.SnapshotFile != "" && s.cfg.SnapshotInterval > 0 {
		s.jobs.Add(1)
		go SnapshotJob(s.jobsCtx, &s.jobs, s.catalog, s.cfg.SnapshotFile, s.cfg.SnapshotInterval, s.logger)
	}
	s.mu.Unlock()

	s.logger.Infof("[CATALOG] Catalog service running on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// StartServer listens on the configured address and serves
func (s *Service) StartServer() error {
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(lis)
}

// GracefulShutdown stops serving, stops the snapshot job and writes a final snapshot
func (s *Service) GracefulShutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	s.logger.Infof("[CATALOG] Shutting down gracefully")
	s.grpcServer.GracefulStop()
	s.cancelJobs()
	s.jobs.Wait()

	if s.cfg.SnapshotFile == "" {
		return
	}
	if err := SaveSnapshot(s.cfg.SnapshotFile, s.catalog.Stocks()); err != nil {
		s.logger.Errorf("[CATALOG] Final snapshot failed: %v", err)
	}
}
