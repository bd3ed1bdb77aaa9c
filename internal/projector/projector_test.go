package projector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lokapasar/marketplace/internal/orders"
)

type fakeCache struct {
	entries map[string]orders.StatusEntry
	calls   int
}

func (f *fakeCache) SetStatus(_ context.Context, orderID string, e orders.StatusEntry) {
	if f.entries == nil {
		f.entries = map[string]orders.StatusEntry{}
	}
	f.entries[orderID] = e
	f.calls++
}

type fakeDedup struct{ seen map[string]bool }

func (f *fakeDedup) Seen(_ context.Context, eventID string) bool {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[eventID] {
		return true
	}
	f.seen[eventID] = true
	return false
}

func envelope(t *testing.T, eventID, eventType string, payload any) kafkago.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	env := orders.Envelope{
		EventID:      eventID,
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test",
		Payload:      body,
	}
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Value: value}
}

func TestHandleOrderEvent(t *testing.T) {
	cache := &fakeCache{}
	svc := &Service{Cache: cache, Dedup: &fakeDedup{}, Log: zap.NewNop()}
	ctx := context.Background()

	m := envelope(t, "ev-1", orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID: "o1", BuyerID: "buyer-1", SellerID: "seller-1",
	})
	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	assert.Equal(t, orders.StatusPending, cache.entries["o1"].Status)
	assert.Equal(t, orders.PaymentPending, cache.entries["o1"].PaymentStatus)
	assert.Equal(t, "buyer-1", cache.entries["o1"].BuyerID)
	assert.Equal(t, "seller-1", cache.entries["o1"].SellerID)

	m = envelope(t, "ev-2", orders.EventPaymentStatusChanged, orders.PaymentStatusChangedPayload{
		OrderID: "o1", BuyerID: "buyer-1", SellerID: "seller-1",
		Status: orders.StatusCancelled, PaymentStatus: orders.PaymentFailed,
	})
	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	assert.Equal(t, orders.StatusCancelled, cache.entries["o1"].Status)
	assert.Equal(t, orders.PaymentFailed, cache.entries["o1"].PaymentStatus)
	assert.Equal(t, "seller-1", cache.entries["o1"].SellerID)
}

func TestHandleOrderEventDedup(t *testing.T) {
	cache := &fakeCache{}
	svc := &Service{Cache: cache, Dedup: &fakeDedup{}, Log: zap.NewNop()}
	ctx := context.Background()

	m := envelope(t, "ev-1", orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "o1", Status: orders.StatusConfirmed, PaymentStatus: orders.PaymentPending,
	})
	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	require.NoError(t, svc.HandleOrderEvent(ctx, m)) // redelivery
	assert.Equal(t, 1, cache.calls)
}

func TestHandleOrderEventBadMessage(t *testing.T) {
	cache := &fakeCache{}
	svc := &Service{Cache: cache, Dedup: &fakeDedup{}, Log: zap.NewNop()}

	// undecodable messages are committed, not retried forever
	err := svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("not json")})
	require.NoError(t, err)
	assert.Zero(t, cache.calls)
}

func TestHandleOrderEventIgnoresUnknownType(t *testing.T) {
	cache := &fakeCache{}
	svc := &Service{Cache: cache, Dedup: &fakeDedup{}, Log: zap.NewNop()}

	m := envelope(t, "ev-9", "SomethingElse", map[string]string{"x": "y"})
	require.NoError(t, svc.HandleOrderEvent(context.Background(), m))
	assert.Zero(t, cache.calls)
}
