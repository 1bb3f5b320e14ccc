package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"stock-ledger/internal"
	"stock-ledger/internal/logging"
	"stock-ledger/internal/order"
	"stock-ledger/internal/rpc"
)

// MessageOrderUnavailable answers an order request that failed on the leader and again on the rediscovered leader
const MessageOrderUnavailable = "Order service temporarily unavailable"

var errOrderUnavailable = errors.New(MessageOrderUnavailable)

// CatalogLookup is the part of the catalog the gateway reads
type CatalogLookup interface {
	Lookup(ctx context.Context, name string) (*rpc.LookupResponse, error)
}

// OrderBackend reaches a given order replica
type OrderBackend interface {
	Order(ctx context.Context, id order.ReplicaID, req *rpc.OrderRequest) (*rpc.OrderResponse, error)
	GetOrderDetails(ctx context.Context, id order.ReplicaID, number uint64) (*rpc.GetOrderDetailsResponse, error)
}

// LeaderResolver tells the gateway which replica to send order traffic to
type LeaderResolver interface {
	Leader(ctx context.Context) (order.ReplicaIdentity, error)
	Rediscover(ctx context.Context) (order.ReplicaIdentity, error)
}

// Gateway is the HTTP front of the platform. Stock lookups go through the LRU cache to the catalog, order traffic
// goes to the current leader replica.
type Gateway struct {
	cache   *StockCache
	catalog CatalogLookup
	orders  OrderBackend
	leaders LeaderResolver
	logger  logging.Logger
}

func New(cache *StockCache, catalog CatalogLookup, orders OrderBackend, leaders LeaderResolver,
	logger logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gateway{
		cache:   cache,
		catalog: catalog,
		orders:  orders,
		leaders: leaders,
		logger:  logger,
	}
}

// Handler returns the HTTP handler with all routes
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	r.Get("/stocks/{name}", g.GetStock)
	r.Get("/orders/{num}", g.GetOrder)
	r.Post("/orders", g.PlaceOrder)
	r.Post("/orders/", g.PlaceOrder)
	r.Delete("/delete/{name}", g.Invalidate)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Invalid path sent")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// requestID tags every request with the incoming X-Request-Id or a fresh uuid. The id travels to the replicas and the
// catalog through the gRPC metadata.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(internal.WithRequestID(r.Context(), id)))
	})
}

func (g *Gateway) GetStock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if quote, ok := g.cache.Get(name); ok {
		g.logger.Debugf("[GATEWAY] [%s] Served %s from the cache", internal.RequestIDOr(r.Context(), "-"), name)
		writeData(w, quote)
		return
	}

	resp, err := g.catalog.Lookup(r.Context(), name)
	if err != nil {
		g.logger.Errorf("[GATEWAY] [%s] %v", internal.RequestIDOr(r.Context(), "-"), err)
		writeError(w, http.StatusServiceUnavailable, "Catalog service unavailable")
		return
	}
	if resp.Code != rpc.CodeOK {
		writeError(w, http.StatusNotFound, resp.Message)
		return
	}

	quote := StockQuote{Name: resp.Name, Price: resp.Price, Quantity: resp.Quantity}
	g.cache.Add(quote)
	writeData(w, quote)
}

type orderDetails struct {
	Number   uint64 `json:"order_num"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Quantity uint64 `json:"quantity"`
}

func (g *Gateway) GetOrder(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseUint(chi.URLParam(r, "num"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Invalid path sent")
		return
	}

	var resp *rpc.GetOrderDetailsResponse
	err = g.withLeader(r.Context(), "GetOrderDetails", func(ctx context.Context, id order.ReplicaID) error {
		var callErr error
		resp, callErr = g.orders.GetOrderDetails(ctx, id, number)
		return callErr
	})
	if err != nil {
		g.writeLeaderError(w, err)
		return
	}

	if resp.Code != rpc.CodeOK {
		writeError(w, http.StatusNotFound, resp.Message)
		return
	}
	writeData(w, orderDetails{
		Number:   resp.TransactionNum,
		Name:     resp.Name,
		Type:     resp.Type,
		Quantity: resp.VolumeTraded,
	})
}

type placeOrderRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Quantity int64  `json:"quantity"`
}

func (g *Gateway) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req := &rpc.OrderRequest{Name: body.Name, Type: body.Type, Quantity: body.Quantity}
	var resp *rpc.OrderResponse
	err := g.withLeader(r.Context(), "Order", func(ctx context.Context, id order.ReplicaID) error {
		var callErr error
		resp, callErr = g.orders.Order(ctx, id, req)
		return callErr
	})
	if err != nil {
		g.writeLeaderError(w, err)
		return
	}

	if resp.Code != rpc.CodeOK {
		writeError(w, http.StatusNotFound, resp.Message)
		return
	}
	writeData(w, map[string]uint64{"transaction_number": resp.TransactionNum})
}

// Invalidate drops a stock from the cache. The catalog calls it after every trade.
func (g *Gateway) Invalidate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if g.cache.Invalidate(name) {
		g.logger.Debugf("[GATEWAY] Invalidated %s", name)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": http.StatusOK, "message": "Cache invalidated"})
}

// withLeader runs call against the cached leader. If it fails, the leader is rediscovered and call is retried once.
// Discovery exhaustion is returned as order.ErrNoLeaderAvailable, a failed retry as errOrderUnavailable.
func (g *Gateway) withLeader(ctx context.Context, op string, call func(ctx context.Context, id order.ReplicaID) error) error {
	requestID := internal.RequestIDOr(ctx, "-")

	leader, err := g.leaders.Leader(ctx)
	if err != nil {
		return err
	}
	err = call(ctx, leader.ID)
	if err == nil {
		return nil
	}
	g.logger.Warnf("[GATEWAY] [%s] %s on leader %d failed, rediscovering: %v", requestID, op, leader.ID, err)

	leader, err = g.leaders.Rediscover(ctx)
	if err != nil {
		return err
	}
	if err := call(ctx, leader.ID); err != nil {
		g.logger.Errorf("[GATEWAY] [%s] %s on new leader %d also failed: %v", requestID, op, leader.ID, err)
		return errOrderUnavailable
	}
	return nil
}

func (g *Gateway) writeLeaderError(w http.ResponseWriter, err error) {
	if errors.Is(err, errOrderUnavailable) {
		writeError(w, http.StatusNotFound, MessageOrderUnavailable)
		return
	}
	g.logger.Errorf("[GATEWAY] No order replica is responding: %v", err)
	writeError(w, http.StatusServiceUnavailable, order.ErrNoLeaderAvailable.Error())
}
