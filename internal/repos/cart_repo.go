package repos

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"openmarket/internal/domain"
)

type CartRepo struct{ db *sqlx.DB }

func NewCartRepo(db *sqlx.DB) *CartRepo { return &CartRepo{db: db} }

// Upsert adds a line or, when one exists for (user, product), merges by
// summing the quantity. The snapshot columns keep the add-time values.
func (r *CartRepo) Upsert(userID, productID int64, qty int, snap domain.ProductSnapshot) error {
	id, err := NextSeq(r.db, "cart")
	if err != nil {
		return err
	}
	now := domain.Now()
	_, err = r.db.Exec(`
		INSERT INTO carts(id,user_id,product_id,quantity,product_name,product_price,product_image,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(user_id,product_id) DO UPDATE
		SET quantity = carts.quantity + excluded.quantity, updated_at = excluded.updated_at
	`, id, userID, productID, qty, snap.Name, snap.Price, snap.Image, now, now)
	return err
}

type cartItemRow struct {
	ID          int64          `db:"id"`
	ProductID   int64          `db:"product_id"`
	Quantity    int            `db:"quantity"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
	SellerID    int64          `db:"seller_id"`
	Name        string         `db:"name"`
	Price       int            `db:"price"`
	Shipping    int            `db:"shipping_fees"`
	PQuantity   int            `db:"p_quantity"`
	BuyQuantity int            `db:"buy_quantity"`
	Image       string         `db:"image"`
	ExtraJSON   sql.NullString `db:"extra_json"`
}

// ListForUser joins each line to the live product row so callers see
// current price and stock, newest line first.
func (r *CartRepo) ListForUser(userID int64) ([]domain.CartItem, error) {
	var rows []cartItemRow
	if err := r.db.Select(&rows, `
		SELECT c.id, c.product_id, c.quantity,
		       COALESCE(c.created_at,'') AS created_at, COALESCE(c.updated_at,'') AS updated_at,
		       p.seller_id, p.name, p.price, p.shipping_fees,
		       p.quantity AS p_quantity, p.buy_quantity,
		       COALESCE(p.main_image,'') AS image, p.extra_json
		FROM carts c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = ?
		ORDER BY c.id DESC
	`, userID); err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, 0, len(rows))
	for _, row := range rows {
		item := domain.CartItem{
			ID:        row.ID,
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Product: domain.CartProduct{
				ID:           row.ProductID,
				SellerID:     row.SellerID,
				Name:         row.Name,
				Price:        row.Price,
				ShippingFees: row.Shipping,
				Quantity:     row.PQuantity,
				BuyQuantity:  row.BuyQuantity,
				Image:        row.Image,
			},
		}
		if row.ExtraJSON.Valid && row.ExtraJSON.String != "" {
			_ = json.Unmarshal([]byte(row.ExtraJSON.String), &item.Product.Extra)
		}
		items = append(items, item)
	}
	return items, nil
}

type cartLineRow struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"user_id"`
	ProductID int64  `db:"product_id"`
	Quantity  int    `db:"quantity"`
	Name      string `db:"product_name"`
	Price     int    `db:"product_price"`
	Image     string `db:"product_image"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r *CartRepo) Get(id int64) (domain.CartLine, error) {
	var row cartLineRow
	err := r.db.Get(&row, `
		SELECT id, user_id, product_id, quantity,
		       product_name, product_price, COALESCE(product_image,'') AS product_image,
		       COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM carts WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CartLine{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CartLine{}, err
	}
	return domain.CartLine{
		ID: row.ID, UserID: row.UserID, ProductID: row.ProductID, Quantity: row.Quantity,
		Product:   domain.ProductSnapshot{Name: row.Name, Price: row.Price, Image: row.Image},
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (r *CartRepo) UpdateQuantity(id int64, qty int) (string, error) {
	now := domain.Now()
	res, err := r.db.Exec(`UPDATE carts SET quantity = ?, updated_at = ? WHERE id = ?`, qty, now, id)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", domain.ErrNotFound
	}
	return now, nil
}

func (r *CartRepo) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM carts WHERE id = ?`, id)
	return err
}

func (r *CartRepo) DeleteMany(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM carts WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(r.db.Rebind(query), args...)
	return err
}

// CountNotOwned reports how many of the given line ids exist but belong to
// someone other than userID. Used for the bulk-delete ownership gate.
func (r *CartRepo) CountNotOwned(ids []int64, userID int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM carts WHERE id IN (?) AND user_id != ?`, ids, userID)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.Get(&n, r.db.Rebind(query), args...)
	return n, err
}

func (r *CartRepo) DeleteForUser(userID int64) error {
	_, err := r.db.Exec(`DELETE FROM carts WHERE user_id = ?`, userID)
	return err
}

// DeleteForUserProducts removes the user's lines for the given products.
// Order creation calls this to reconcile the cart after a purchase.
func (r *CartRepo) DeleteForUserProducts(userID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM carts WHERE user_id = ? AND product_id IN (?)`, userID, productIDs)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(r.db.Rebind(query), args...)
	return err
}
