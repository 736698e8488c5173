package services_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"openmarket/internal/domain"
	"openmarket/internal/registry"
	"openmarket/internal/repos"
	"openmarket/internal/services"
)

// memdb opens a throwaway database with the full schema and seed data.
func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newEngine(t *testing.T, db *sqlx.DB) *services.OrderService {
	t.Helper()
	reg := registry.New(repos.NewCodeRepo(db))
	if err := reg.Reload(); err != nil {
		t.Fatal(err)
	}
	est := services.NewStandardEstimator(reg)
	inv := services.NewInventoryService(repos.NewInventoryRepo(db))
	return services.NewOrderService(
		repos.NewOrderRepo(db), repos.NewProductRepo(db), inv,
		repos.NewCartRepo(db), repos.NewUserRepo(db), reg, est,
	)
}

func buyQuantity(t *testing.T, db *sqlx.DB, productID int64) int {
	t.Helper()
	var n int
	if err := db.Get(&n, `SELECT buy_quantity FROM products WHERE id = ?`, productID); err != nil {
		t.Fatal(err)
	}
	return n
}

// Seeded product 4: Walnut Chess Set, price 45000, quantity 20, sold 0.
// Seeded buyer 101 (alice) is membership class MC02 (5% discount).
func TestCreateOrderRoundTrip(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	o, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 2}},
		Address:  domain.Address{Name: "home", Value: "12 Birch Lane"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.ID == 0 {
		t.Fatal("order id not assigned")
	}
	if o.State != services.DefaultOrderState {
		t.Fatalf("default state: got %q", o.State)
	}
	if len(o.Products) != 1 {
		t.Fatalf("want 1 line, got %d", len(o.Products))
	}
	line := o.Products[0]
	if line.Price != 90000 || line.Quantity != 2 || line.SellerID != 103 {
		t.Fatalf("line wrong: %+v", line)
	}
	if line.State != services.DefaultOrderState {
		t.Fatalf("line state: %q", line.State)
	}

	// 2×45000 products + 3000 shipping, 5% membership discount on products
	if o.Cost.Products != 90000 || o.Cost.ShippingFees != 3000 {
		t.Fatalf("cost sums wrong: %+v", o.Cost)
	}
	if o.Cost.Discount.Products != 4500 {
		t.Fatalf("membership discount: %+v", o.Cost.Discount)
	}
	if o.Cost.Total != 90000+3000-4500 {
		t.Fatalf("total: %d", o.Cost.Total)
	}

	if bq := buyQuantity(t, db, 4); bq != 2 {
		t.Fatalf("reservation not committed, buy_quantity=%d", bq)
	}

	// Reads back identically through the buyer-scoped getter.
	got, err := eng.FindByID(o.ID, 101)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != o.ID || len(got.Products) != 1 || got.Cost.Total != o.Cost.Total {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

// Seeded product 3: quantity 10, buy_quantity 9, so exactly 1 left.
func TestCreateOrderInsufficientStock(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	_, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 3, Quantity: 2}},
	})
	var ise *domain.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if ise.Requested != 2 || ise.Available != 1 {
		t.Fatalf("error detail: %+v", ise)
	}
	if bq := buyQuantity(t, db, 3); bq != 9 {
		t.Fatalf("buy_quantity changed: %d", bq)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM orders`); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("failed order must not persist")
	}
}

// The same product twice: each line passes the upfront check seeing 1
// unit free, but the second reservation loses and the first is rolled
// back.
func TestCreateOrderCompensatingRelease(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	_, err := eng.Create(services.CreateOrderRequest{
		UserID: 101,
		Products: []services.LineRequest{
			{ProductID: 3, Quantity: 1},
			{ProductID: 3, Quantity: 1},
		},
	})
	var ise *domain.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if bq := buyQuantity(t, db, 3); bq != 9 {
		t.Fatalf("first reservation not released, buy_quantity=%d", bq)
	}
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	req := services.CreateOrderRequest{
		UserID:     101,
		Products:   []services.LineRequest{{ProductID: 4, Quantity: 1}},
		ExternalID: "client-key-1",
	}
	first, err := eng.Create(req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.Create(req)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay created a new order: %d vs %d", second.ID, first.ID)
	}
	if bq := buyQuantity(t, db, 4); bq != 1 {
		t.Fatalf("replay reserved again, buy_quantity=%d", bq)
	}
}

func TestCreateOrderDryRun(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	o, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 2}},
		DryRun:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.Cost.Total == 0 {
		t.Fatal("dry run should still price the order")
	}
	if o.ID != 0 {
		t.Fatal("dry run must not assign an id")
	}
	if bq := buyQuantity(t, db, 4); bq != 0 {
		t.Fatalf("dry run reserved stock: %d", bq)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM orders`); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("dry run must not persist")
	}
}

func TestCreateOrderUnknownState(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	_, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 1}},
		State:    "OS999",
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestCreateOrderFromCartReconciles(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)
	carts := repos.NewCartRepo(db)

	for _, pid := range []int64{4, 5} {
		snap := domain.ProductSnapshot{Name: "x", Price: 1}
		if err := carts.Upsert(101, pid, 1, snap); err != nil {
			t.Fatal(err)
		}
	}

	_, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 1}},
		FromCart: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	items, err := carts.ListForUser(101)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ProductID != 5 {
		t.Fatalf("ordered line should leave the cart, remaining: %+v", items)
	}
}

func TestTransitionOrderAppendsOneAuditEntry(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	o, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	admin := domain.Caller{ID: 104, Type: "admin"}
	got, err := eng.TransitionOrder(admin, o.ID, services.OrderPatch{
		State:    "OS030",
		Delivery: map[string]any{"company": "FastShip", "trackingNumber": "T100"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.State != "OS030" {
		t.Fatalf("state: %q", got.State)
	}
	if len(got.History) != 1 {
		t.Fatalf("want exactly 1 audit entry, got %d", len(got.History))
	}
	h := got.History[0]
	if h.Actor != 104 || h.Updated["state"] != "OS030" {
		t.Fatalf("audit entry: %+v", h)
	}
	if got.Delivery["trackingNumber"] != "T100" {
		t.Fatalf("delivery not stored: %+v", got.Delivery)
	}
	// Line states do not move with the order-level transition.
	if got.Products[0].State != services.DefaultOrderState {
		t.Fatalf("line state moved: %q", got.Products[0].State)
	}
}

func TestTransitionLineLeavesSiblingsUntouched(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	o, err := eng.Create(services.CreateOrderRequest{
		UserID: 101,
		Products: []services.LineRequest{
			{ProductID: 4, Quantity: 1},
			{ProductID: 5, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	siblingBefore, _ := json.Marshal(o.Products[1])

	buyer := domain.Caller{ID: 101, Type: "user"}
	got, err := eng.TransitionLine(buyer, o.ID, 4, services.OrderPatch{State: "OS110", Memo: "wrong size"})
	if err != nil {
		t.Fatal(err)
	}
	line, sibling := got.Products[0], got.Products[1]
	if line.ProductID != 4 || line.State != "OS110" {
		t.Fatalf("line transition: %+v", line)
	}
	if len(line.History) != 1 || line.History[0].Updated["memo"] != "wrong size" {
		t.Fatalf("line history: %+v", line.History)
	}
	siblingAfter, _ := json.Marshal(sibling)
	if string(siblingBefore) != string(siblingAfter) {
		t.Fatalf("sibling mutated:\n%s\n%s", siblingBefore, siblingAfter)
	}
	if got.State != services.DefaultOrderState {
		t.Fatalf("order state moved with the line: %q", got.State)
	}
}

func TestTransitionAuthz(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	o, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Bruno (102) sells nothing on this order.
	stranger := domain.Caller{ID: 102, Type: "seller"}
	if _, err := eng.TransitionOrder(stranger, o.ID, services.OrderPatch{State: "OS030"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}

	// Carol (103) owns the line and may move it.
	seller := domain.Caller{ID: 103, Type: "seller"}
	if _, err := eng.TransitionLine(seller, o.ID, 4, services.OrderPatch{State: "OS030"}); err != nil {
		t.Fatal(err)
	}
}

func TestSellerListingNarrowsLines(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	// Product 2 belongs to Bruno (102), product 4 to Carol (103).
	o, err := eng.Create(services.CreateOrderRequest{
		UserID: 101,
		Products: []services.LineRequest{
			{ProductID: 2, Quantity: 1},
			{ProductID: 4, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	page, err := eng.FindForSeller(102, repos.OrderFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("want 1 order, got %d", len(page.Items))
	}
	got := page.Items[0]
	if got.ID != o.ID || len(got.Products) != 1 || got.Products[0].SellerID != 102 {
		t.Fatalf("seller view leaked lines: %+v", got.Products)
	}
}

func TestOrderStateDigest(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	o, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	digests, err := eng.FindStates(101)
	if err != nil {
		t.Fatal(err)
	}
	if len(digests) != 1 {
		t.Fatalf("want 1 digest, got %d", len(digests))
	}
	d := digests[0]
	if d.ID != o.ID || d.State != services.DefaultOrderState {
		t.Fatalf("digest: %+v", d)
	}
}

func TestAttachReviewReference(t *testing.T) {
	db := memdb(t)
	eng := newEngine(t, db)

	o, err := eng.Create(services.CreateOrderRequest{
		UserID:   101,
		Products: []services.LineRequest{{ProductID: 4, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	buyer := domain.Caller{ID: 101, Type: "user"}
	if err := eng.AttachReviewReference(buyer, o.ID, 4, 555); err != nil {
		t.Fatal(err)
	}
	// Overwrite is allowed.
	if err := eng.AttachReviewReference(buyer, o.ID, 4, 556); err != nil {
		t.Fatal(err)
	}
	got, err := eng.FindByID(o.ID, 101)
	if err != nil {
		t.Fatal(err)
	}
	if got.Products[0].ReplyID != 556 {
		t.Fatalf("reply id: %d", got.Products[0].ReplyID)
	}

	stranger := domain.Caller{ID: 102, Type: "seller"}
	if err := eng.AttachReviewReference(stranger, o.ID, 4, 557); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}
