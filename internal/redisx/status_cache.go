package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lokapasar/marketplace/internal/orders"
)

// StatusCache mirrors order lifecycle fields in redis. Best-effort on the
// write path: the DB stays the source of truth, a miss just costs a query.
type StatusCache struct {
	RDB *redis.Client
}

type cachedStatus struct {
	orders.StatusEntry
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *StatusCache) SetStatus(ctx context.Context, orderID string, e orders.StatusEntry) {
	b, err := json.Marshal(cachedStatus{StatusEntry: e, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	_ = c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

func (c *StatusCache) GetStatus(ctx context.Context, orderID string) (orders.StatusEntry, bool) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if err != nil || s == "" {
		return orders.StatusEntry{}, false
	}
	var st cachedStatus
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return orders.StatusEntry{}, false
	}
	return st.StatusEntry, true
}

// Deduper marks event ids as seen with a TTL; used by consumers to skip
// redelivered messages.
type Deduper struct {
	RDB      *redis.Client
	Consumer string
}

func (d *Deduper) Seen(ctx context.Context, eventID string) bool {
	key := fmt.Sprintf(KeyDedup, d.Consumer, eventID)
	ok, err := d.RDB.SetNX(ctx, key, "1", TTLDedup).Result()
	if err != nil {
		// on redis trouble, prefer reprocessing over dropping
		return false
	}
	return !ok
}
