package services_test

import (
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	"openmarket/internal/domain"
	"openmarket/internal/registry"
	"openmarket/internal/repos"
	"openmarket/internal/services"
)

func newCartService(t *testing.T, db *sqlx.DB) *services.CartService {
	t.Helper()
	reg := registry.New(repos.NewCodeRepo(db))
	if err := reg.Reload(); err != nil {
		t.Fatal(err)
	}
	return services.NewCartService(
		repos.NewCartRepo(db), repos.NewProductRepo(db),
		repos.NewUserRepo(db), services.NewStandardEstimator(reg),
	)
}

func TestAddOrMergeSumsQuantities(t *testing.T) {
	db := memdb(t)
	svc := newCartService(t, db)

	if _, err := svc.AddOrMerge(101, 4, 2); err != nil {
		t.Fatal(err)
	}
	list, err := svc.AddOrMerge(101, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("duplicate add must merge into one line, got %d", len(list.Items))
	}
	if q := list.Items[0].Quantity; q != 5 {
		t.Fatalf("merged quantity: %d", q)
	}
}

func TestAddUnknownProduct(t *testing.T) {
	db := memdb(t)
	svc := newCartService(t, db)

	_, err := svc.AddOrMerge(101, 9999, 1)
	var pe *domain.ProductNotFoundError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProductNotFoundError, got %v", err)
	}
}

func TestListForUserPricesLiveProduct(t *testing.T) {
	db := memdb(t)
	svc := newCartService(t, db)

	if _, err := svc.AddOrMerge(101, 4, 2); err != nil {
		t.Fatal(err)
	}
	// Price changes after the add; listings price on the live row.
	if _, err := db.Exec(`UPDATE products SET price = 50000 WHERE id = 4`); err != nil {
		t.Fatal(err)
	}
	list, err := svc.ListForUser(101, nil)
	if err != nil {
		t.Fatal(err)
	}
	if list.Items[0].Product.Price != 50000 {
		t.Fatalf("live price: %d", list.Items[0].Product.Price)
	}
	if list.Cost.Products != 100000 {
		t.Fatalf("cost on live price: %+v", list.Cost)
	}
	// Alice is MC02: 5% on products.
	if list.Cost.Discount.Products != 5000 {
		t.Fatalf("membership discount: %+v", list.Cost.Discount)
	}
}

func TestClientDiscountOverridesMembership(t *testing.T) {
	db := memdb(t)
	svc := newCartService(t, db)

	if _, err := svc.AddOrMerge(101, 4, 1); err != nil {
		t.Fatal(err)
	}
	list, err := svc.ListForUser(101, &domain.Discount{Products: 1000, ShippingFees: 3000})
	if err != nil {
		t.Fatal(err)
	}
	if list.Cost.Discount.Products != 1000 || list.Cost.Discount.ShippingFees != 3000 {
		t.Fatalf("client discount not applied: %+v", list.Cost.Discount)
	}
	if list.Cost.Total != 45000+3000-1000-3000 {
		t.Fatalf("total: %d", list.Cost.Total)
	}
}

func TestQuoteLocal(t *testing.T) {
	db := memdb(t)
	svc := newCartService(t, db)

	quote, err := svc.QuoteLocal([]services.LineRequest{
		{ProductID: 4, Quantity: 2},
		{ProductID: 5, Quantity: 1},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(quote.Items) != 2 {
		t.Fatalf("items: %d", len(quote.Items))
	}
	if quote.Items[0].Price != 90000 || quote.Items[0].QuantityInStock != 20 {
		t.Fatalf("quoted line: %+v", quote.Items[0])
	}
	// Anonymous: no membership, no discount.
	if quote.Cost.Discount.Products != 0 {
		t.Fatalf("anonymous quote discounted: %+v", quote.Cost)
	}
	if quote.Cost.Products != 90000+32000 {
		t.Fatalf("products sum: %d", quote.Cost.Products)
	}
}

func TestCartOwnership(t *testing.T) {
	db := memdb(t)
	svc := newCartService(t, db)

	list, err := svc.AddOrMerge(101, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	lineID := list.Items[0].ID

	stranger := domain.Caller{ID: 102, Type: "user"}
	if _, err := svc.UpdateQuantity(stranger, lineID, 3); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if err := svc.Remove(stranger, lineID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}

	admin := domain.Caller{ID: 104, Type: "admin"}
	if _, err := svc.UpdateQuantity(admin, lineID, 3); err != nil {
		t.Fatal(err)
	}

	owner := domain.Caller{ID: 101, Type: "user"}
	if err := svc.Remove(owner, lineID); err != nil {
		t.Fatal(err)
	}
}

func TestMergeAndReplace(t *testing.T) {
	db := memdb(t)
	svc := newCartService(t, db)

	if _, err := svc.AddOrMerge(101, 4, 2); err != nil {
		t.Fatal(err)
	}
	list, err := svc.Merge(101, []services.LineRequest{
		{ProductID: 4, Quantity: 1},
		{ProductID: 5, Quantity: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("merge: %d lines", len(list.Items))
	}
	for _, it := range list.Items {
		if it.ProductID == 4 && it.Quantity != 3 {
			t.Fatalf("merge should sum, got %d", it.Quantity)
		}
	}

	list, err = svc.ReplaceAll(101, []services.LineRequest{{ProductID: 5, Quantity: 7}})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].ProductID != 5 || list.Items[0].Quantity != 7 {
		t.Fatalf("replace: %+v", list.Items)
	}
}
