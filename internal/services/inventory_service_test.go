package services_test

import (
	"errors"
	"testing"

	"openmarket/internal/domain"
	"openmarket/internal/repos"
	"openmarket/internal/services"
)

func TestReserveWithinAvailability(t *testing.T) {
	db := memdb(t)
	svc := services.NewInventoryService(repos.NewInventoryRepo(db))

	// Seeded product 2: quantity 30, buy_quantity 2.
	avail, err := svc.Available(2)
	if err != nil {
		t.Fatal(err)
	}
	if avail != 28 {
		t.Fatalf("available: %d", avail)
	}

	if err := svc.Reserve(2, 28); err != nil {
		t.Fatal(err)
	}
	avail, err = svc.Available(2)
	if err != nil {
		t.Fatal(err)
	}
	if avail != 0 {
		t.Fatalf("available after full reserve: %d", avail)
	}

	err = svc.Reserve(2, 1)
	var ise *domain.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if ise.Available != 0 || ise.Requested != 1 {
		t.Fatalf("error detail: %+v", ise)
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	db := memdb(t)
	svc := services.NewInventoryService(repos.NewInventoryRepo(db))

	err := svc.Reserve(9999, 1)
	var pe *domain.ProductNotFoundError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProductNotFoundError, got %v", err)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	db := memdb(t)
	svc := services.NewInventoryService(repos.NewInventoryRepo(db))

	if err := svc.Reserve(4, 3); err != nil {
		t.Fatal(err)
	}
	if err := svc.Release(4, 5); err != nil {
		t.Fatal(err)
	}
	avail, err := svc.Available(4)
	if err != nil {
		t.Fatal(err)
	}
	// Seeded quantity 20; over-release clamps to zero sold.
	if avail != 20 {
		t.Fatalf("available after over-release: %d", avail)
	}
}
