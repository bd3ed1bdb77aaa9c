package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lokapasar/marketplace/internal/metrics"
)

type PlaceOrderRequest struct {
	SellerID      string        `json:"seller_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Products      []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"products"`
}

type PlaceOrderResult struct {
	OrderID       string        `json:"order_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Token         string        `json:"token,omitempty"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
}

// GatewayCallback is the webhook body sent by the payment provider.
type GatewayCallback struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	ExpiryTime        string `json:"expiry_time"`

	Raw json.RawMessage `json:"-"`
}

const gatewayTimeLayout = "2006-01-02 15:04:05"

// Service ties the order workflow together: composing and pricing the
// order, reserving stock, talking to the payment gateway, driving the
// lifecycle state machine, and reconciling gateway callbacks.
type Service struct {
	store   Store
	dir     Directory
	gw      Gateway
	pub     Publisher
	cache   StatusCache
	log     *zap.Logger
	service string
}

func NewService(store Store, dir Directory, gw Gateway, pub Publisher, cache StatusCache, log *zap.Logger, service string) *Service {
	return &Service{store: store, dir: dir, gw: gw, pub: pub, cache: cache, log: log, service: service}
}

// Place validates the cart, reserves stock all-or-nothing, persists the
// snapshot, and for transfer orders creates a gateway transaction. A
// gateway failure leaves the order persisted in pending; the caller gets
// a gateway error and can retry payment initiation later.
func (s *Service) Place(ctx context.Context, buyerID string, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.SellerID == "" {
		return nil, Validationf("seller_id is required")
	}
	if !req.PaymentMethod.Valid() {
		return nil, Validationf("payment_method must be transfer or cash")
	}
	if len(req.Products) == 0 {
		return nil, Validationf("products must not be empty")
	}
	for _, p := range req.Products {
		if p.ProductID == "" {
			return nil, Validationf("product_id is required")
		}
		if p.Quantity < 1 {
			return nil, Validationf("quantity for product %s must be at least 1", p.ProductID)
		}
	}

	buyer, err := s.dir.GetUser(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	ok, err := s.dir.SellerExists(ctx, req.SellerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NotFoundf("seller %s not found", req.SellerID)
	}

	o := &Order{
		ID:              uuid.NewString(),
		BuyerID:         buyerID,
		SellerID:        req.SellerID,
		DeliveryAddress: buyer.Address, // copy, not a live reference
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
	}
	// Repeated cart lines for one product collapse into a single line;
	// the ledger tracks reserved qty per (order, product).
	idx := map[string]int{}
	for _, p := range req.Products {
		if i, ok := idx[p.ProductID]; ok {
			o.Lines[i].Qty += p.Quantity
			continue
		}
		idx[p.ProductID] = len(o.Lines)
		o.Lines = append(o.Lines, Line{ProductID: p.ProductID, Qty: p.Quantity})
	}

	if err := s.store.PlaceOrder(ctx, o); err != nil {
		if KindOf(err) == KindInsufficientStock {
			metrics.StockRejectionsTotal.Inc()
		}
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(StatusPending)).Inc()
	s.cache.SetStatus(ctx, o.ID, o.StatusEntry())
	s.publish(TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		TotalPrice:    o.TotalPrice,
		PaymentMethod: o.PaymentMethod,
		Lines:         o.Lines,
	})

	res := &PlaceOrderResult{OrderID: o.ID, PaymentMethod: o.PaymentMethod}
	if o.PaymentMethod == PaymentCash {
		return res, nil
	}

	gwRes, err := s.gw.CreateTransaction(ctx, o, buyer)
	if err != nil {
		s.log.Warn("payment initiation failed, order kept pending",
			zap.String("order_id", o.ID), zap.Error(err))
		return nil, err
	}
	if err := s.store.AttachGatewayResult(ctx, o.ID, gwRes); err != nil {
		return nil, err
	}
	res.Token = gwRes.Token
	res.RedirectURL = gwRes.RedirectURL
	return res, nil
}

func (s *Service) List(ctx context.Context, actor Actor) ([]*Order, error) {
	return s.store.ListOrders(ctx, actor)
}

func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Order, error) {
	return s.store.GetOrderForActor(ctx, id, actor)
}

// Status serves the lightweight status read, cache first. A cache hit is
// scoped to the order's owner just like the store read behind it.
func (s *Service) Status(ctx context.Context, actor Actor, id string) (Status, PaymentStatus, error) {
	if e, ok := s.cache.GetStatus(ctx, id); ok {
		if !e.OwnedBy(actor) {
			return "", "", NotFoundf("order not found")
		}
		return e.Status, e.PaymentStatus, nil
	}
	o, err := s.store.GetOrderForActor(ctx, id, actor)
	if err != nil {
		return "", "", err
	}
	s.cache.SetStatus(ctx, o.ID, o.StatusEntry())
	return o.Status, o.PaymentStatus, nil
}

// UpdateStatus applies a role-gated lifecycle transition. Targets outside
// the actor's allow-list are validation errors; impossible transitions
// (e.g. out of cancelled) come back as conflicts from the state machine.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id string, target Status) (*Order, error) {
	if !RoleAllowsStatus(actor.Role, target) {
		return nil, Validationf("status %s is not allowed for role %s", target, actor.Role)
	}
	o, released, err := s.store.UpdateOrderStatus(ctx, id, actor, target)
	if err != nil {
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(o.Status)).Inc()
	s.cache.SetStatus(ctx, o.ID, o.StatusEntry())
	s.publish(TopicOrderStatus, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID, BuyerID: o.BuyerID, SellerID: o.SellerID,
		Status: o.Status, PaymentStatus: o.PaymentStatus, Released: released,
	})
	return o, nil
}

// UpdatePaymentStatus is the seller-driven settlement path for out-of-band
// payments (cash orders, manual reconciliation).
func (s *Service) UpdatePaymentStatus(ctx context.Context, actor Actor, id string, target PaymentStatus) (*Order, error) {
	if actor.Role != RoleSeller {
		return nil, Validationf("only sellers may update payment status")
	}
	if target != PaymentSuccess && target != PaymentFailed {
		return nil, Validationf("payment status must be success or failed")
	}
	o, released, err := s.store.UpdatePaymentStatus(ctx, id, actor.ID, target)
	if err != nil {
		return nil, err
	}
	if target == PaymentFailed {
		// a failed payment moved the order into cancelled
		metrics.OrdersTotal.WithLabelValues(string(o.Status)).Inc()
	}
	s.cache.SetStatus(ctx, o.ID, o.StatusEntry())
	s.publish(TopicPaymentStatus, EventPaymentStatusChanged, o.ID, PaymentStatusChangedPayload{
		OrderID: o.ID, BuyerID: o.BuyerID, SellerID: o.SellerID,
		Status: o.Status, PaymentStatus: o.PaymentStatus,
		TransactionID: o.TransactionID, Released: released,
	})
	return o, nil
}

// HandleGatewayCallback reconciles an asynchronous gateway notification.
// Replays of a callback the order has already absorbed are no-ops: the
// store reports changed=false and no event is emitted, no stock moves.
func (s *Service) HandleGatewayCallback(ctx context.Context, cb GatewayCallback) (*Order, error) {
	if cb.OrderID == "" && cb.TransactionID == "" {
		return nil, Validationf("callback carries no order or transaction id")
	}
	target := MapGatewayStatus(cb.TransactionStatus)

	var expiry *time.Time
	if cb.ExpiryTime != "" {
		if t, err := time.Parse(gatewayTimeLayout, cb.ExpiryTime); err == nil {
			expiry = &t
		}
	}

	o, changed, err := s.store.ApplyGatewayPayment(ctx, CallbackUpdate{
		OrderID:       cb.OrderID,
		TransactionID: cb.TransactionID,
		Target:        target,
		Raw:           cb.Raw,
		Expiry:        expiry,
	})
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.log.Warn("gateway callback for unknown order",
				zap.String("order_id", cb.OrderID), zap.String("transaction_id", cb.TransactionID))
		}
		metrics.PaymentCallbacksTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !changed {
		metrics.PaymentCallbacksTotal.WithLabelValues("noop").Inc()
		return o, nil
	}
	metrics.PaymentCallbacksTotal.WithLabelValues(string(target)).Inc()
	if target == PaymentFailed {
		metrics.OrdersTotal.WithLabelValues(string(o.Status)).Inc()
	}
	s.cache.SetStatus(ctx, o.ID, o.StatusEntry())
	s.publish(TopicPaymentStatus, EventPaymentStatusChanged, o.ID, PaymentStatusChangedPayload{
		OrderID: o.ID, BuyerID: o.BuyerID, SellerID: o.SellerID,
		Status: o.Status, PaymentStatus: o.PaymentStatus,
		TransactionID: o.TransactionID, Released: target == PaymentFailed,
	})
	return o, nil
}

func (s *Service) publish(topic, eventType, orderID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal event payload", zap.String("event", eventType), zap.Error(err))
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.service,
		CorrelationID: orderID,
		Payload:       body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		s.log.Error("marshal event envelope", zap.String("event", eventType), zap.Error(err))
		return
	}
	s.pub.Publish(topic, PartitionKey(orderID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
