// Package projector keeps the redis order-status cache in step with the
// order event stream, so status polls are served without touching Postgres.
package projector

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lokapasar/marketplace/internal/kafka"
	"github.com/lokapasar/marketplace/internal/orders"
)

type Cache interface {
	SetStatus(ctx context.Context, orderID string, e orders.StatusEntry)
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) bool
}

type Service struct {
	Cache Cache
	Dedup Deduper
	Log   *zap.Logger
}

// HandleOrderEvent is wired as the consumer handler for all order topics.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, commit and move on
		s.Log.Warn("undecodable event", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}
	if s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafka.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Cache.SetStatus(ctx, p.OrderID, orders.StatusEntry{
			BuyerID: p.BuyerID, SellerID: p.SellerID,
			Status: orders.StatusPending, PaymentStatus: orders.PaymentPending,
		})
	case orders.EventOrderStatusChanged:
		p, err := kafka.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Cache.SetStatus(ctx, p.OrderID, orders.StatusEntry{
			BuyerID: p.BuyerID, SellerID: p.SellerID,
			Status: p.Status, PaymentStatus: p.PaymentStatus,
		})
	case orders.EventPaymentStatusChanged:
		p, err := kafka.UnwrapPayload[orders.PaymentStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Cache.SetStatus(ctx, p.OrderID, orders.StatusEntry{
			BuyerID: p.BuyerID, SellerID: p.SellerID,
			Status: p.Status, PaymentStatus: p.PaymentStatus,
		})
	default:
		s.Log.Debug("ignoring event", zap.String("type", env.EventType))
	}
	return nil
}
