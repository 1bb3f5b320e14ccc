package order

import "errors"

// Rejections are surfaced to the caller as a 404-equivalent carrying the error message. They have no side effect and
// never consume a transaction number.
var (
	ErrUnknownInstrument = errors.New("invalid stock name")
	ErrInvalidTradeType  = errors.New("invalid transaction type")
	ErrNegativeVolume    = errors.New("num stocks traded should be non negative")
	ErrInsufficientStock = errors.New("not enough stock")
)

var (
	// ErrPeerUnreachable is logged during replication, heartbeat, notify or sync-up and never reaches a client
	ErrPeerUnreachable = errors.New("peer unreachable")
	// ErrNoLeaderAvailable means every replica failed its heartbeat
	ErrNoLeaderAvailable = errors.New("no order replica is responding")
)

// IsRejected reports whether err is a validation or stock rejection
func IsRejected(err error) bool {
	for _, sentinel := range rejections {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

var rejections = []error{ErrUnknownInstrument, ErrInvalidTradeType, ErrNegativeVolume, ErrInsufficientStock}

// RejectionMessage returns the client-facing message of a rejection, the bare sentinel text without call details.
// It returns err.Error() for anything else.
func RejectionMessage(err error) string {
	for _, sentinel := range rejections {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
