package redisx

import "time"

const (
	// Cache of an order's lifecycle fields:
	// order_status:{order_id} -> {"status": "...", "payment_status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup of event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
