package rpc

// Response codes shared by every service. The services answer domain failures in-band with CodeNotFound and a
// message rather than with a gRPC status, mirroring the HTTP semantics the gateway exposes.
const (
	CodeOK       int32 = 200
	CodeNotFound int32 = 404
)

// ---- OrderService ----

type OrderRequest struct {
	Name string `msgpack:"name"`
	Type string `msgpack:"type"`
	// Quantity is signed so a negative volume reaches validation instead of failing to decode
	Quantity int64 `msgpack:"number_of_items"`
}

type OrderResponse struct {
	Code           int32  `msgpack:"code"`
	TransactionNum uint64 `msgpack:"transaction_num"`
	Message        string `msgpack:"message"`
}

type GetOrderDetailsRequest struct {
	TransactionNum uint64 `msgpack:"transaction_num"`
}

type GetOrderDetailsResponse struct {
	Code           int32  `msgpack:"code"`
	TransactionNum uint64 `msgpack:"transaction_num"`
	Name           string `msgpack:"name"`
	Type           string `msgpack:"type"`
	VolumeTraded   uint64 `msgpack:"volume_traded"`
	Message        string `msgpack:"message"`
}

type HeartbeatResponse struct {
	Code      int32  `msgpack:"code"`
	ReplicaID uint32 `msgpack:"replica_id"`
}

type NotifyReplicaRequest struct {
	LeaderID uint32 `msgpack:"leader_id"`
}

type NotifyReplicaResponse struct {
	Code int32 `msgpack:"code"`
}

// ReplicateOrderRequest carries a full committed record from the leader to a peer
type ReplicateOrderRequest struct {
	TransactionNum uint64 `msgpack:"transaction_num"`
	Name           string `msgpack:"name"`
	Type           string `msgpack:"type"`
	VolumeTraded   uint64 `msgpack:"number_of_items"`
	LeaderID       uint32 `msgpack:"leader_id"`
	// ReplicationID tags one fan-out round in the logs of every replica it reaches
	ReplicationID string `msgpack:"replication_id"`
}

type ReplicateOrderResponse struct {
	Code int32 `msgpack:"code"`
}

type SyncUpRequest struct {
	// TransactionNum is the highest transaction number the requester knows about
	TransactionNum uint64 `msgpack:"transaction_num"`
	ReplicaID      uint32 `msgpack:"service_id"`
}

type OrderDetails struct {
	TransactionNum uint64 `msgpack:"transaction_num"`
	Name           string `msgpack:"name"`
	Type           string `msgpack:"type"`
	VolumeTraded   uint64 `msgpack:"volume_traded"`
}

type SyncUpResponse struct {
	Orders []OrderDetails `msgpack:"orders"`
}

// ---- CatalogService ----

type LookupRequest struct {
	StockName string `msgpack:"stock_name"`
}

type LookupResponse struct {
	Code     int32   `msgpack:"code"`
	Name     string  `msgpack:"name"`
	Price    float64 `msgpack:"price"`
	Quantity int64   `msgpack:"quantity"`
	Message  string  `msgpack:"message"`
}

type TradeRequest struct {
	Name     string `msgpack:"name"`
	Type     string `msgpack:"type"`
	Quantity int64  `msgpack:"number_of_items"`
}

type TradeResponse struct {
	Code    int32  `msgpack:"code"`
	Message string `msgpack:"message"`
}
