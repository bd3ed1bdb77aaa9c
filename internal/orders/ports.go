package orders

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// GatewayResult is what a successful create-transaction call hands back:
// the snap token / redirect handle the client pays with, plus the raw
// provider response kept as an audit trail.
type GatewayResult struct {
	Token         string
	RedirectURL   string
	TransactionID string
	Raw           json.RawMessage
	Expiry        *time.Time
}

// CallbackUpdate is a gateway notification mapped onto our payment axis.
type CallbackUpdate struct {
	OrderID       string
	TransactionID string
	Target        PaymentStatus
	Raw           json.RawMessage
	Expiry        *time.Time
}

type Store interface {
	PlaceOrder(ctx context.Context, o *Order) error
	GetOrderForActor(ctx context.Context, id string, actor Actor) (*Order, error)
	ListOrders(ctx context.Context, actor Actor) ([]*Order, error)
	AttachGatewayResult(ctx context.Context, orderID string, res *GatewayResult) error
	UpdateOrderStatus(ctx context.Context, id string, actor Actor, target Status) (*Order, bool, error)
	UpdatePaymentStatus(ctx context.Context, id, sellerID string, target PaymentStatus) (*Order, bool, error)
	ApplyGatewayPayment(ctx context.Context, upd CallbackUpdate) (*Order, bool, error)
}

// Directory is the user/seller directory collaborator. Account CRUD lives
// elsewhere; the order core only reads it.
type Directory interface {
	GetUser(ctx context.Context, id string) (*User, error)
	SellerExists(ctx context.Context, id string) (bool, error)
}

// Gateway creates a payment transaction with the external provider.
// No retries here; retrying payment creation without a provider-side
// idempotency key is not safe, so retry policy stays with the caller.
type Gateway interface {
	CreateTransaction(ctx context.Context, o *Order, buyer *User) (*GatewayResult, error)
}

// Publisher emits domain events; fire-and-forget like the kafka producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// StatusEntry is the slice of an order mirrored into the status cache.
// Owner ids ride along so a cache hit can be scoped to the asking actor
// the same way the store reads are.
type StatusEntry struct {
	BuyerID       string        `json:"buyer_id"`
	SellerID      string        `json:"seller_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

func (e StatusEntry) OwnedBy(a Actor) bool {
	if a.Role == RoleSeller {
		return e.SellerID == a.ID
	}
	return e.BuyerID == a.ID
}

// StatusCache mirrors the order's lifecycle fields for cheap status reads.
type StatusCache interface {
	SetStatus(ctx context.Context, orderID string, e StatusEntry)
	GetStatus(ctx context.Context, orderID string) (StatusEntry, bool)
}
