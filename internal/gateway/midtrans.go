// Package gateway wraps the payment provider's snap "create transaction"
// API. The provider is treated as an unreliable remote: every non-success
// response surfaces as a typed gateway error and a circuit breaker keeps a
// flapping provider from dragging checkout latency down with it.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lokapasar/marketplace/internal/metrics"
	"github.com/lokapasar/marketplace/internal/orders"
)

type Config struct {
	BaseURL   string // snap create-transaction endpoint
	ServerKey string
	Timeout   time.Duration
}

type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0). // retry policy belongs to the caller
		SetBasicAuth(cfg.ServerKey, "").
		SetHeader("Content-Type", "application/json")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.GatewayCircuitState.Set(state)
			log.Info("gateway circuit state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{http: httpc, breaker: cb, baseURL: cfg.BaseURL, log: log}
}

type snapItem struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails     []snapItem `json:"item_details"`
	CustomerDetails struct {
		FirstName string `json:"first_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"customer_details"`
}

type snapResponse struct {
	Token         string `json:"token"`
	RedirectURL   string `json:"redirect_url"`
	TransactionID string `json:"transaction_id"`
	ExpiryTime    string `json:"expiry_time"`
}

// CreateTransaction performs a single outbound create-transaction call.
// gross_amount is our locally computed total; the provider response is
// returned raw for the audit trail, never used to reprice the order.
func (c *Client) CreateTransaction(ctx context.Context, o *orders.Order, buyer *orders.User) (*orders.GatewayResult, error) {
	var payload snapRequest
	payload.TransactionDetails.OrderID = o.ID
	payload.TransactionDetails.GrossAmount = o.TotalPrice
	for _, l := range o.Lines {
		payload.ItemDetails = append(payload.ItemDetails, snapItem{
			ID: l.ProductID, Price: l.Price, Quantity: l.Qty, Name: l.Name,
		})
	}
	payload.CustomerDetails.FirstName = buyer.Name
	payload.CustomerDetails.Email = buyer.Email
	payload.CustomerDetails.Phone = buyer.Phone

	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(payload).
			Post(c.baseURL)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode(), resp.String())
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, orders.GatewayErr(err)
	}

	raw := out.([]byte)
	var parsed snapResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, orders.GatewayErr(fmt.Errorf("decode gateway response: %w", err))
	}

	res := &orders.GatewayResult{
		Token:         parsed.Token,
		RedirectURL:   parsed.RedirectURL,
		TransactionID: parsed.TransactionID,
		Raw:           json.RawMessage(raw),
	}
	if parsed.ExpiryTime != "" {
		if t, perr := time.Parse("2006-01-02 15:04:05", parsed.ExpiryTime); perr == nil {
			res.Expiry = &t
		}
	}
	return res, nil
}
