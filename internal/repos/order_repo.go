package repos

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"openmarket/internal/domain"
)

type OrderRepo struct{ db *sqlx.DB }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

// OrderFilter narrows and pages a list query. SortBy must already be
// whitelisted by the caller.
type OrderFilter struct {
	State   string
	Keyword string
	Page    int
	Limit   int
	SortBy  string
	Asc     bool
}

func (f OrderFilter) orderClause() string {
	col := "created_at"
	switch f.SortBy {
	case "updatedAt":
		col = "updated_at"
	case "state":
		col = "state"
	case "_id":
		col = "id"
	}
	dir := "DESC"
	if f.Asc {
		dir = "ASC"
	}
	return "ORDER BY o." + col + " " + dir + ", o.id DESC"
}

func (f OrderFilter) window() (limit, offset int) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	if f.Limit <= 0 {
		return -1, 0 // sqlite: LIMIT -1 means unbounded
	}
	return f.Limit, (page - 1) * f.Limit
}

type orderRow struct {
	ID           int64          `db:"id"`
	UserID       int64          `db:"user_id"`
	State        string         `db:"state"`
	AddressJSON  sql.NullString `db:"address_json"`
	CostJSON     sql.NullString `db:"cost_json"`
	DeliveryJSON sql.NullString `db:"delivery_json"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
}

func (r orderRow) order() domain.Order {
	o := domain.Order{
		ID: r.ID, UserID: r.UserID, State: r.State,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	unmarshalInto(r.AddressJSON, &o.Address)
	unmarshalInto(r.CostJSON, &o.Cost)
	unmarshalInto(r.DeliveryJSON, &o.Delivery)
	return o
}

type orderLineRow struct {
	OrderID      int64          `db:"order_id"`
	ProductID    int64          `db:"product_id"`
	SellerID     int64          `db:"seller_id"`
	Name         string         `db:"name"`
	Image        string         `db:"image"`
	Quantity     int            `db:"quantity"`
	Price        int            `db:"price"`
	State        string         `db:"state"`
	DeliveryJSON sql.NullString `db:"delivery_json"`
	ReplyID      sql.NullInt64  `db:"reply_id"`
	ExtraJSON    sql.NullString `db:"extra_json"`
}

func (r orderLineRow) line() domain.OrderLine {
	l := domain.OrderLine{
		ProductID: r.ProductID, SellerID: r.SellerID, Name: r.Name, Image: r.Image,
		Quantity: r.Quantity, Price: r.Price, State: r.State, ReplyID: r.ReplyID.Int64,
	}
	unmarshalInto(r.DeliveryJSON, &l.Delivery)
	unmarshalInto(r.ExtraJSON, &l.Extra)
	return l
}

type historyRow struct {
	OrderID     int64         `db:"order_id"`
	ProductID   sql.NullInt64 `db:"product_id"`
	Actor       int64         `db:"actor"`
	UpdatedJSON string        `db:"updated_json"`
	CreatedAt   string        `db:"created_at"`
}

func (r historyRow) entry() domain.AuditEntry {
	e := domain.AuditEntry{Actor: r.Actor, CreatedAt: r.CreatedAt}
	_ = json.Unmarshal([]byte(r.UpdatedJSON), &e.Updated)
	return e
}

// Create persists the order header and its lines in one transaction.
// The id comes from the shared sequence so it stays monotonic with the
// rest of the collections.
func (r *OrderRepo) Create(o domain.Order, externalID string) (domain.Order, error) {
	id, err := NextSeq(r.db, "order")
	if err != nil {
		return domain.Order{}, err
	}
	o.ID = id

	tx, err := r.db.Beginx()
	if err != nil {
		return domain.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var ext any
	if externalID != "" {
		ext = externalID
	}
	if _, err := tx.Exec(`
		INSERT INTO orders(id,external_id,user_id,state,address_json,cost_json,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?)
	`, o.ID, ext, o.UserID, o.State, marshalJSON(o.Address), marshalJSON(o.Cost), o.CreatedAt, o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}

	for _, l := range o.Products {
		if _, err := tx.Exec(`
			INSERT INTO order_lines(order_id,product_id,seller_id,name,image,quantity,price,state,extra_json)
			VALUES(?,?,?,?,?,?,?,?,?)
		`, o.ID, l.ProductID, l.SellerID, l.Name, l.Image, l.Quantity, l.Price, l.State, marshalJSON(l.Extra)); err != nil {
			return domain.Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// GetByExternalID resolves an idempotency key to its existing order.
func (r *OrderRepo) GetByExternalID(externalID string) (domain.Order, bool, error) {
	var id int64
	err := r.db.Get(&id, `SELECT id FROM orders WHERE external_id = ?`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	o, err := r.Get(id, 0)
	return o, err == nil, err
}

// Get loads one order with lines and history. A non-zero userID scopes the
// read to that buyer.
func (r *OrderRepo) Get(id, userID int64) (domain.Order, error) {
	query := `
		SELECT id, user_id, state, address_json, cost_json, delivery_json,
		       COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM orders WHERE id = ?`
	args := []any{id}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	var row orderRow
	err := r.db.Get(&row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	orders, err := r.attach([]domain.Order{row.order()}, 0)
	if err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// ListForUser pages a buyer's orders, keyword-matching line product names.
func (r *OrderRepo) ListForUser(userID int64, f OrderFilter) ([]domain.Order, int, error) {
	where := `o.user_id = ?`
	args := []any{userID}
	if f.State != "" {
		where += ` AND o.state = ?`
		args = append(args, f.State)
	}
	if f.Keyword != "" {
		where += ` AND EXISTS (SELECT 1 FROM order_lines ol WHERE ol.order_id = o.id AND ol.name LIKE ?)`
		args = append(args, "%"+f.Keyword+"%")
	}
	return r.list(where, args, f, 0)
}

// ListForSeller pages orders containing the seller's lines. The caller's
// view of each order is restricted to those lines.
func (r *OrderRepo) ListForSeller(sellerID int64, f OrderFilter) ([]domain.Order, int, error) {
	where := `EXISTS (SELECT 1 FROM order_lines ol WHERE ol.order_id = o.id AND ol.seller_id = ?)`
	args := []any{sellerID}
	if f.State != "" {
		where += ` AND o.state = ?`
		args = append(args, f.State)
	}
	if f.Keyword != "" {
		where += ` AND EXISTS (SELECT 1 FROM order_lines ol WHERE ol.order_id = o.id AND ol.seller_id = ? AND ol.name LIKE ?)`
		args = append(args, sellerID, "%"+f.Keyword+"%")
	}
	return r.list(where, args, f, sellerID)
}

// GetForSeller loads one order with only the given seller's lines; misses
// and foreign orders both read as not found.
func (r *OrderRepo) GetForSeller(id, sellerID int64) (domain.Order, error) {
	var row orderRow
	err := r.db.Get(&row, `
		SELECT id, user_id, state, address_json, cost_json, delivery_json,
		       COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM orders o WHERE id = ?
		  AND EXISTS (SELECT 1 FROM order_lines ol WHERE ol.order_id = o.id AND ol.seller_id = ?)
	`, id, sellerID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	orders, err := r.attach([]domain.Order{row.order()}, sellerID)
	if err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *OrderRepo) list(where string, args []any, f OrderFilter, sellerOnly int64) ([]domain.Order, int, error) {
	var total int
	if err := r.db.Get(&total, `SELECT COUNT(*) FROM orders o WHERE `+where, args...); err != nil {
		return nil, 0, err
	}

	limit, offset := f.window()
	var rows []orderRow
	query := `
		SELECT id, user_id, state, address_json, cost_json, delivery_json,
		       COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at
		FROM orders o WHERE ` + where + ` ` + f.orderClause() + ` LIMIT ? OFFSET ?`
	if err := r.db.Select(&rows, query, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.order())
	}
	orders, err := r.attach(orders, sellerOnly)
	return orders, total, err
}

// attach loads lines and audit history for the given orders. sellerOnly
// narrows each order's lines to one seller.
func (r *OrderRepo) attach(orders []domain.Order, sellerOnly int64) ([]domain.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]int64, 0, len(orders))
	idx := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		idx[o.ID] = i
	}

	lineQuery := `
		SELECT order_id, product_id, seller_id, name, COALESCE(image,'') AS image,
		       quantity, price, state, delivery_json, reply_id, extra_json
		FROM order_lines WHERE order_id IN (?)`
	lineArgs := []any{ids}
	if sellerOnly != 0 {
		lineQuery += ` AND seller_id = ?`
		lineArgs = append(lineArgs, sellerOnly)
	}
	lineQuery += ` ORDER BY rowid`
	query, args, err := sqlx.In(lineQuery, lineArgs...)
	if err != nil {
		return nil, err
	}
	var lineRows []orderLineRow
	if err := r.db.Select(&lineRows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, lr := range lineRows {
		i := idx[lr.OrderID]
		orders[i].Products = append(orders[i].Products, lr.line())
	}

	query, args, err = sqlx.In(`
		SELECT order_id, product_id, actor, updated_json, created_at
		FROM order_history WHERE order_id IN (?) ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	var histRows []historyRow
	if err := r.db.Select(&histRows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, hr := range histRows {
		i := idx[hr.OrderID]
		if !hr.ProductID.Valid {
			orders[i].History = append(orders[i].History, hr.entry())
			continue
		}
		for j := range orders[i].Products {
			if orders[i].Products[j].ProductID == hr.ProductID.Int64 {
				orders[i].Products[j].History = append(orders[i].Products[j].History, hr.entry())
				break
			}
		}
	}
	return orders, nil
}

// ListStates returns only the state fields of a buyer's orders, newest
// first.
func (r *OrderRepo) ListStates(userID int64) ([]domain.OrderStateDigest, error) {
	type row struct {
		ID        int64          `db:"id"`
		State     string         `db:"state"`
		LineState sql.NullString `db:"line_state"`
	}
	var rows []row
	if err := r.db.Select(&rows, `
		SELECT o.id, o.state, ol.state AS line_state
		FROM orders o LEFT JOIN order_lines ol ON ol.order_id = o.id
		WHERE o.user_id = ?
		ORDER BY o.id DESC, ol.rowid
	`, userID); err != nil {
		return nil, err
	}

	digests := []domain.OrderStateDigest{}
	var lastID int64 = -1
	for _, rw := range rows {
		if rw.ID != lastID {
			digests = append(digests, domain.OrderStateDigest{ID: rw.ID, State: rw.State})
			lastID = rw.ID
		}
		if rw.LineState.Valid {
			d := &digests[len(digests)-1]
			d.Products = append(d.Products, domain.LineState{State: rw.LineState.String})
		}
	}
	return digests, nil
}

// UpdateState sets the order-level state (and optionally delivery) and
// appends exactly one audit entry, atomically.
func (r *OrderRepo) UpdateState(orderID int64, state string, delivery map[string]any, entry domain.AuditEntry) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE orders SET state = ?, updated_at = ?`
	args := []any{state, domain.Now()}
	if delivery != nil {
		query += `, delivery_json = ?`
		args = append(args, marshalJSON(delivery))
	}
	query += ` WHERE id = ?`
	args = append(args, orderID)

	res, err := tx.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}

	if err := appendHistory(tx, orderID, nil, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateLineState sets one line's state (and optionally delivery) and
// appends one audit entry to that line's own history. Other lines are never
// touched.
func (r *OrderRepo) UpdateLineState(orderID, productID int64, state string, delivery map[string]any, entry domain.AuditEntry) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE order_lines SET state = ?`
	args := []any{state}
	if delivery != nil {
		query += `, delivery_json = ?`
		args = append(args, marshalJSON(delivery))
	}
	query += ` WHERE order_id = ? AND product_id = ?`
	args = append(args, orderID, productID)

	res, err := tx.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.Exec(`UPDATE orders SET updated_at = ? WHERE id = ?`, domain.Now(), orderID); err != nil {
		return err
	}

	if err := appendHistory(tx, orderID, &productID, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// SetReplyID denormalizes a review pointer onto a purchased line. The
// pointer is overwritten if written twice.
func (r *OrderRepo) SetReplyID(orderID, productID, replyID int64) error {
	res, err := r.db.Exec(`
		UPDATE order_lines SET reply_id = ? WHERE order_id = ? AND product_id = ?
	`, replyID, orderID, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func appendHistory(tx *sqlx.Tx, orderID int64, productID *int64, entry domain.AuditEntry) error {
	b, err := json.Marshal(entry.Updated)
	if err != nil {
		return err
	}
	var pid any
	if productID != nil {
		pid = *productID
	}
	_, err = tx.Exec(`
		INSERT INTO order_history(order_id,product_id,actor,updated_json,created_at)
		VALUES(?,?,?,?,?)
	`, orderID, pid, entry.Actor, string(b), entry.CreatedAt)
	return err
}

func marshalJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return string(b)
}

func unmarshalInto(s sql.NullString, dst any) {
	if s.Valid && s.String != "" {
		_ = json.Unmarshal([]byte(s.String), dst)
	}
}
