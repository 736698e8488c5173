package repos

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"openmarket/internal/domain"
)

type InventoryRepo struct{ db *sqlx.DB }

func NewInventoryRepo(db *sqlx.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// Available returns the sellable quantity for a product.
func (r *InventoryRepo) Available(productID int64) (int, error) {
	var avail int
	err := r.db.Get(&avail, `
		SELECT quantity - buy_quantity FROM products WHERE id = ? AND active = 1
	`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &domain.ProductNotFoundError{ProductID: productID}
	}
	return avail, err
}

// Reserve commits stock by bumping the cumulative sold counter. The check
// and the increment are a single conditional statement, so concurrent
// reservations for the same product can never oversell.
func (r *InventoryRepo) Reserve(productID int64, qty int) error {
	res, err := r.db.Exec(`
		UPDATE products
		SET buy_quantity = buy_quantity + ?, updated_at = ?
		WHERE id = ? AND active = 1 AND buy_quantity + ? <= quantity
	`, qty, domain.Now(), productID, qty)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		avail, aerr := r.Available(productID)
		if aerr != nil {
			return aerr
		}
		return &domain.InsufficientStockError{ProductID: productID, Requested: qty, Available: avail}
	}
	return nil
}

// Release undoes a reservation. Used only as the compensating step when a
// later line or the order write fails; cancellations and returns do not
// restock.
func (r *InventoryRepo) Release(productID int64, qty int) error {
	_, err := r.db.Exec(`
		UPDATE products
		SET buy_quantity = MAX(buy_quantity - ?, 0), updated_at = ?
		WHERE id = ?
	`, qty, domain.Now(), productID)
	return err
}
