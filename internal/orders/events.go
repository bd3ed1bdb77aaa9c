package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventPaymentStatusChanged = "PaymentStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       string        `json:"order_id"`
	BuyerID       string        `json:"buyer_id"`
	SellerID      string        `json:"seller_id"`
	TotalPrice    int64         `json:"total_price"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Lines         []Line        `json:"lines"`
}

type OrderStatusChangedPayload struct {
	OrderID       string        `json:"order_id"`
	BuyerID       string        `json:"buyer_id"`
	SellerID      string        `json:"seller_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Released      bool          `json:"released,omitempty"` // stock restored in this change
}

type PaymentStatusChangedPayload struct {
	OrderID       string        `json:"order_id"`
	BuyerID       string        `json:"buyer_id"`
	SellerID      string        `json:"seller_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Released      bool          `json:"released,omitempty"`
}
