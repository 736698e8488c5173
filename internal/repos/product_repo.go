package repos

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"openmarket/internal/domain"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

type productRow struct {
	domain.Product
	ExtraJSON sql.NullString `db:"extra_json"`
}

func (r productRow) product() domain.Product {
	p := r.Product
	if r.ExtraJSON.Valid && r.ExtraJSON.String != "" {
		_ = json.Unmarshal([]byte(r.ExtraJSON.String), &p.Extra)
	}
	return p
}

const productCols = `
  id, seller_id, name, price, shipping_fees, quantity, buy_quantity,
  COALESCE(main_image,'') AS main_image, active, show, extra_json,
  COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at`

// Get returns an active product or ProductNotFoundError.
func (r *ProductRepo) Get(id int64) (domain.Product, error) {
	var row productRow
	err := r.db.Get(&row, `SELECT`+productCols+` FROM products WHERE id = ? AND active = 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return domain.Product{}, err
	}
	return row.product(), nil
}
