package order

import (
	"fmt"
	"net"
	"sort"
	"strconv"
)

// ReplicaID is the static identifier of an order replica. Higher ids have priority during leader discovery.
type ReplicaID uint32

// TradeType is the direction of a trade
type TradeType string

const (
	Buy  TradeType = "buy"
	Sell TradeType = "sell"
)

// ParseTradeType validates a raw trade type coming from a client
func ParseTradeType(raw string) (TradeType, error) {
	switch TradeType(raw) {
	case Buy, Sell:
		return TradeType(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTradeType, raw)
	}
}

// DefaultInstruments is the set of stocks that can be traded on the platform
var DefaultInstruments = []string{
	"GameStart", "RottenFishCo", "BoarCo", "MenhirCo",
	"AAPL", "AMZN", "GOOGL", "META", "NVDA", "NFLX",
}

// TransactionRecord is a committed trade. It is immutable once created: records are copied between replicas via
// replication and sync-up, never mutated and never deleted.
//
// The csv tags define the column order of the durable log: TransactionNumber, Name, Type, VolumeTraded.
type TransactionRecord struct {
	TransactionNumber uint64    `csv:"TransactionNumber" msgpack:"transaction_number"`
	Name              string    `csv:"Name" msgpack:"name"`
	Type              TradeType `csv:"Type" msgpack:"type"`
	VolumeTraded      uint64    `csv:"VolumeTraded" msgpack:"volume_traded"`
}

// SortRecords orders records by TransactionNumber ascending, in place
func SortRecords(records []TransactionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].TransactionNumber < records[j].TransactionNumber
	})
}

// ReplicaIdentity is the static address book entry of a replica. The full set is read from configuration at startup.
type ReplicaIdentity struct {
	ID   ReplicaID `yaml:"id"`
	Host string    `yaml:"host"`
	Port uint16    `yaml:"port"`
}

// Address returns the host:port the replica listens on
func (r ReplicaIdentity) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

func (r ReplicaIdentity) String() string {
	return fmt.Sprintf("%d@%s", r.ID, r.Address())
}

// SortByPriority returns a copy of replicas ordered by id descending, which is the probing order of leader discovery
func SortByPriority(replicas []ReplicaIdentity) []ReplicaIdentity {
	sorted := make([]ReplicaIdentity, len(replicas))
	copy(sorted, replicas)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID > sorted[j].ID
	})
	return sorted
}

// Without returns the replicas whose id differs from id
func Without(replicas []ReplicaIdentity, id ReplicaID) []ReplicaIdentity {
	peers := make([]ReplicaIdentity, 0, len(replicas))
	for _, r := range replicas {
		if r.ID != id {
			peers = append(peers, r)
		}
	}
	return peers
}
