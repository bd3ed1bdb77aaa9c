// Package directory reads buyer and seller accounts. Account management
// (registration, profile, credentials) lives outside the order core; this
// is the read-only collaborator view the workflow needs.
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lokapasar/marketplace/internal/orders"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetUser(ctx context.Context, id string) (*orders.User, error) {
	var u orders.User
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, email, phone, province, regency, district, village, street, detail
		FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone,
			&u.Address.Province, &u.Address.Regency, &u.Address.District,
			&u.Address.Village, &u.Address.Street, &u.Address.Detail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.NotFoundf("user %s not found", id)
	}
	if err != nil {
		return nil, orders.Internal("load user", err)
	}
	return &u, nil
}

func (r *Repo) SellerExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM sellers WHERE id=$1`, id).Scan(&n); err != nil {
		return false, orders.Internal("check seller", err)
	}
	return n > 0, nil
}
