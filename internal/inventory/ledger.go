package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrProductNotFound = errors.New("inventory: product not found")

type ItemQty struct {
	ProductID string
	Qty       int
}

type Reject struct {
	ProductID string
	Name      string
	Required  int
	Available int
}

// Ledger owns Product.stock. Stock is only ever mutated through the
// conditional decrement in ReserveAll and the reservation-guarded
// increment in ReleaseAll; no read-modify-write anywhere else.
type Ledger struct{}

// ReserveAll decrements stock for every item inside the caller's
// transaction. Each decrement is a single conditional UPDATE, so two
// concurrent checkouts can never both take the last unit. Any shortage
// is reported as a reject; the caller rolls the transaction back, which
// makes the whole reservation all-or-nothing.
//
// A reservation row is recorded per (order, product); repeated items for
// one product accumulate into the row's qty, so ReleaseAll restores
// exactly what was decremented. ReleaseAll later flips these rows to
// RELEASED so stock is restored exactly once.
func (Ledger) ReserveAll(ctx context.Context, tx pgx.Tx, orderID string, items []ItemQty) ([]Reject, error) {
	var rejects []Reject
	for _, it := range items {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2`, it.ProductID, it.Qty)
		if err != nil {
			return nil, fmt.Errorf("reserve stock %s: %w", it.ProductID, err)
		}
		if ct.RowsAffected() == 0 {
			var name string
			var stock int
			err := tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1`, it.ProductID).Scan(&name, &stock)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
			}
			if err != nil {
				return nil, err
			}
			rejects = append(rejects, Reject{
				ProductID: it.ProductID, Name: name, Required: it.Qty, Available: stock,
			})
			continue
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, product_id, qty, status)
			VALUES ($1,$2,$3,'RESERVED')
			ON CONFLICT (order_id, product_id)
			DO UPDATE SET qty = reservations.qty + EXCLUDED.qty`, orderID, it.ProductID, it.Qty); err != nil {
			return nil, fmt.Errorf("record reservation %s: %w", it.ProductID, err)
		}
	}
	return rejects, nil
}

// ReleaseAll restores stock for every still-RESERVED line of the order
// and marks the lines RELEASED, all inside the caller's transaction.
// Re-running for an already-released order touches zero rows, which is
// what makes the compensating action exactly-once.
func (Ledger) ReleaseAll(ctx context.Context, tx pgx.Tx, orderID string) (int, error) {
	rows, err := tx.Query(ctx, `
		SELECT product_id, qty FROM reservations
		WHERE order_id=$1 AND status='RESERVED'
		FOR UPDATE`, orderID)
	if err != nil {
		return 0, err
	}
	var recs []ItemQty
	for rows.Next() {
		var x ItemQty
		if err := rows.Scan(&x.ProductID, &x.Qty); err != nil {
			rows.Close()
			return 0, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now()
			WHERE id=$1`, x.ProductID, x.Qty); err != nil {
			return 0, fmt.Errorf("restore stock %s: %w", x.ProductID, err)
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status='RELEASED', released_at=now()
		WHERE order_id=$1 AND status='RESERVED'`, orderID); err != nil {
		return 0, err
	}
	return len(recs), nil
}
