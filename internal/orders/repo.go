package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lokapasar/marketplace/internal/inventory"
)

// Repo persists orders in Postgres. Every multi-step mutation (place,
// transition, release) runs in a single transaction so a crash can never
// leave stock decremented without a matching order, or an order cancelled
// without its stock restored.
type Repo struct {
	DB     *pgxpool.Pool
	Ledger inventory.Ledger
}

// PlaceOrder runs the whole placement as one transaction: snapshot the
// products, insert the order, reserve stock line by line, insert the
// snapshot items. Any missing product or stock shortage rolls the whole
// thing back, so no partial reservation survives.
//
// o.Lines must carry ProductID and Qty; name/price/image and TotalPrice
// are filled here from the catalog row read in the same transaction.
func (r *Repo) PlaceOrder(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Internal("begin place order", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ProductID)
	}
	rows, err := tx.Query(ctx, `
		SELECT id, name, price, image_url FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return Internal("load products", err)
	}
	type snap struct {
		name  string
		price int64
		image string
	}
	snaps := map[string]snap{}
	for rows.Next() {
		var id string
		var s snap
		if err := rows.Scan(&id, &s.name, &s.price, &s.image); err != nil {
			rows.Close()
			return Internal("scan product", err)
		}
		snaps[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Internal("load products", err)
	}

	var total int64
	for i := range o.Lines {
		s, ok := snaps[o.Lines[i].ProductID]
		if !ok {
			return NotFoundf("product %s not found", o.Lines[i].ProductID)
		}
		o.Lines[i].Name = s.name
		o.Lines[i].Price = s.price
		o.Lines[i].ImageURL = s.image
		total += o.Lines[i].Subtotal()
	}
	o.TotalPrice = total

	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, seller_id, status, payment_status, payment_method,
		                   total_price, province, regency, district, village, street, detail,
		                   created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)`,
		o.ID, o.BuyerID, o.SellerID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.TotalPrice, o.DeliveryAddress.Province, o.DeliveryAddress.Regency,
		o.DeliveryAddress.District, o.DeliveryAddress.Village, o.DeliveryAddress.Street,
		o.DeliveryAddress.Detail, now)
	if err != nil {
		return Internal("insert order", err)
	}

	items := make([]inventory.ItemQty, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, inventory.ItemQty{ProductID: l.ProductID, Qty: l.Qty})
	}
	rejects, err := r.Ledger.ReserveAll(ctx, tx, o.ID, items)
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			return NotFoundf("product not found")
		}
		return Internal("reserve stock", err)
	}
	if len(rejects) > 0 {
		rj := rejects[0]
		return InsufficientStock(rj.Name, rj.Required, rj.Available)
	}

	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, image_url, qty, price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, l.ProductID, l.Name, l.ImageURL, l.Qty, l.Price); err != nil {
			return Internal("insert order item", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Internal("commit place order", err)
	}
	return nil
}

func ownerColumn(role Role) string {
	if role == RoleSeller {
		return "seller_id"
	}
	return "buyer_id"
}

const orderColumns = `
	id, buyer_id, seller_id, status, payment_status, payment_method, total_price,
	province, regency, district, village, street, detail,
	transaction_id, payment_token, redirect_url, payment_response, payment_expiry,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.TotalPrice,
		&o.DeliveryAddress.Province, &o.DeliveryAddress.Regency, &o.DeliveryAddress.District,
		&o.DeliveryAddress.Village, &o.DeliveryAddress.Street, &o.DeliveryAddress.Detail,
		&o.TransactionID, &o.PaymentToken, &o.RedirectURL, &o.PaymentResponse, &o.PaymentExpiry,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) loadLines(ctx context.Context, orderIDs []string) (map[string][]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, name, image_url, qty, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]Line{}
	for rows.Next() {
		var oid string
		var l Line
		if err := rows.Scan(&oid, &l.ProductID, &l.Name, &l.ImageURL, &l.Qty, &l.Price); err != nil {
			return nil, err
		}
		out[oid] = append(out[oid], l)
	}
	return out, rows.Err()
}

// GetOrderForActor loads one order scoped to its buyer or seller.
func (r *Repo) GetOrderForActor(ctx context.Context, id string, actor Actor) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 AND `+ownerColumn(actor.Role)+`=$2`, id, actor.ID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundf("order not found")
	}
	if err != nil {
		return nil, Internal("load order", err)
	}
	lines, err := r.loadLines(ctx, []string{o.ID})
	if err != nil {
		return nil, Internal("load order items", err)
	}
	o.Lines = lines[o.ID]
	return o, nil
}

// ListOrders returns the actor's orders, newest first.
func (r *Repo) ListOrders(ctx context.Context, actor Actor) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+ownerColumn(actor.Role)+`=$1 ORDER BY created_at DESC`, actor.ID)
	if err != nil {
		return nil, Internal("list orders", err)
	}
	defer rows.Close()

	var out []*Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, Internal("scan order", err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, Internal("list orders", err)
	}
	if len(ids) == 0 {
		return out, nil
	}
	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, Internal("load order items", err)
	}
	for _, o := range out {
		o.Lines = lines[o.ID]
	}
	return out, nil
}

// AttachGatewayResult stores the gateway handle on an already-persisted
// order. The order stays pending either way; the gateway response is an
// audit trail, not a source of truth for the total.
func (r *Repo) AttachGatewayResult(ctx context.Context, orderID string, res *GatewayResult) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET transaction_id=$2, payment_token=$3, redirect_url=$4,
		                  payment_response=$5, payment_expiry=$6, updated_at=now()
		WHERE id=$1`,
		orderID, res.TransactionID, res.Token, res.RedirectURL, res.Raw, res.Expiry)
	if err != nil {
		return Internal("attach gateway result", err)
	}
	return nil
}

// lockOrder reads an order's lifecycle fields under FOR UPDATE so the
// transition decision and its side effects happen against a stable row.
func lockOrder(ctx context.Context, tx pgx.Tx, where string, args ...any) (string, Status, PaymentStatus, error) {
	var id string
	var st Status
	var ps PaymentStatus
	err := tx.QueryRow(ctx, `SELECT id, status, payment_status FROM orders WHERE `+where+` FOR UPDATE`, args...).Scan(&id, &st, &ps)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", "", NotFoundf("order not found")
	}
	if err != nil {
		return "", "", "", Internal("lock order", err)
	}
	return id, st, ps, nil
}

func (r *Repo) applyChange(ctx context.Context, tx pgx.Tx, orderID string, ch Change) (bool, error) {
	released := false
	if ch.Release {
		n, err := r.Ledger.ReleaseAll(ctx, tx, orderID)
		if err != nil {
			return false, Internal("release stock", err)
		}
		released = n > 0
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, updated_at=now() WHERE id=$1`,
		orderID, ch.Status, ch.PaymentStatus); err != nil {
		return false, Internal("update order status", err)
	}
	return released, nil
}

// UpdateOrderStatus applies a buyer/seller-driven lifecycle transition.
// The compensating stock release for a cancellation happens in the same
// transaction as the status write.
func (r *Repo) UpdateOrderStatus(ctx context.Context, id string, actor Actor, target Status) (*Order, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, Internal("begin status update", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	oid, st, ps, err := lockOrder(ctx, tx, "id=$1 AND "+ownerColumn(actor.Role)+"=$2", id, actor.ID)
	if err != nil {
		return nil, false, err
	}
	ch, err := ApplyStatusChange(st, ps, target)
	if err != nil {
		return nil, false, err
	}
	released, err := r.applyChange(ctx, tx, oid, ch)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, Internal("commit status update", err)
	}
	o, err := r.GetOrderForActor(ctx, id, actor)
	return o, released, err
}

// UpdatePaymentStatus applies a seller-driven payment transition. Marking
// the payment failed cancels the order and restores stock in the same
// transaction, exactly once.
func (r *Repo) UpdatePaymentStatus(ctx context.Context, id, sellerID string, target PaymentStatus) (*Order, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, Internal("begin payment update", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	oid, st, ps, err := lockOrder(ctx, tx, "id=$1 AND seller_id=$2", id, sellerID)
	if err != nil {
		return nil, false, err
	}
	ch, err := ApplyPaymentChange(st, ps, target)
	if err != nil {
		return nil, false, err
	}
	released, err := r.applyChange(ctx, tx, oid, ch)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, Internal("commit payment update", err)
	}
	o, err := r.GetOrderForActor(ctx, id, Actor{ID: sellerID, Role: RoleSeller})
	return o, released, err
}

// ApplyGatewayPayment reconciles a gateway callback. Lookup is by our
// order id with a fallback on the stored gateway transaction id. A
// callback repeating the order's current payment status only refreshes
// the audit fields and reports changed=false.
func (r *Repo) ApplyGatewayPayment(ctx context.Context, upd CallbackUpdate) (*Order, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, Internal("begin callback", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	oid, st, ps, err := lockOrder(ctx, tx, "id=$1", upd.OrderID)
	if KindOf(err) == KindNotFound && upd.TransactionID != "" {
		oid, st, ps, err = lockOrder(ctx, tx, "transaction_id=$1", upd.TransactionID)
	}
	if err != nil {
		return nil, false, err
	}

	changed := false
	if upd.Target != ps {
		ch, err := ApplyPaymentChange(st, ps, upd.Target)
		if err != nil {
			return nil, false, err
		}
		if _, err := r.applyChange(ctx, tx, oid, ch); err != nil {
			return nil, false, err
		}
		changed = true
	}

	// Audit trail: keep the latest raw notification and transaction id.
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET payment_response=$2, transaction_id=COALESCE(NULLIF($3, ''), transaction_id), payment_expiry=COALESCE($4, payment_expiry), updated_at=now()
		WHERE id=$1`, oid, upd.Raw, upd.TransactionID, upd.Expiry); err != nil {
		return nil, false, Internal("store callback payload", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, Internal("commit callback", err)
	}

	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, oid)
	o, err := scanOrder(row)
	if err != nil {
		return nil, false, Internal("reload order", err)
	}
	return o, changed, nil
}
