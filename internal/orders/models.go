package orders

import (
	"encoding/json"
	"time"
)

type PaymentMethod string

const (
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCash     PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentTransfer || m == PaymentCash
}

type Address struct {
	Province string `json:"province"`
	Regency  string `json:"regency"`
	District string `json:"district"`
	Village  string `json:"village"`
	Street   string `json:"street"`
	Detail   string `json:"detail"`
}

type Product struct {
	ID          string
	SellerID    string
	Name        string
	Description string
	Price       int64 // IDR, no minor units
	Stock       int
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Line is a point-in-time snapshot of a product at order creation.
// Name/price/image are never re-read from the live catalog.
type Line struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	Qty       int    `json:"quantity"`
	Price     int64  `json:"price"`
}

func (l Line) Subtotal() int64 { return l.Price * int64(l.Qty) }

type Order struct {
	ID              string
	BuyerID         string
	SellerID        string
	Lines           []Line
	DeliveryAddress Address
	TotalPrice      int64
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Status          Status
	TransactionID   string
	PaymentToken    string
	RedirectURL     string
	PaymentResponse json.RawMessage
	PaymentExpiry   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o *Order) StatusEntry() StatusEntry {
	return StatusEntry{
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
	}
}

// User is the slice of the user directory the order core needs:
// contact info for the gateway payload plus the delivery address snapshot.
type User struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Address Address
}

type Actor struct {
	ID   string
	Role Role
}
