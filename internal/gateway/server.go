package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server runs a Gateway over HTTP
type Server struct {
	httpServer *http.Server
	gateway    *Gateway
}

func NewServer(addr string, gateway *Gateway) *Server {
	return &Server{
		gateway: gateway,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           gateway.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Serve blocks serving on lis until Shutdown is called
func (s *Server) Serve(lis net.Listener) error {
	s.gateway.logger.Infof("[GATEWAY] Listening on %s", lis.Addr())
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway stopped: %w", err)
	}
	return nil
}

// StartServer listens on the configured address and serves
func (s *Server) StartServer() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(lis)
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
