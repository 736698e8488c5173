package services

import (
	"openmarket/internal/repos"
)

// InventoryService is the stock ledger: it answers availability questions
// and commits reservations against the shared per-product counters.
type InventoryService struct {
	Inv *repos.InventoryRepo
}

func NewInventoryService(inv *repos.InventoryRepo) *InventoryService {
	return &InventoryService{Inv: inv}
}

// Available returns quantity minus the cumulative committed counter.
func (s *InventoryService) Available(productID int64) (int, error) {
	return s.Inv.Available(productID)
}

// Reserve commits stock for one line. The storage layer performs the check
// and increment as one conditional update, so callers may race freely.
func (s *InventoryService) Reserve(productID int64, qty int) error {
	return s.Inv.Reserve(productID, qty)
}

// Release is the compensating step for a failed multi-line reservation or
// order write. It is not exposed to cancellations; a cancelled order keeps
// its stock spent.
func (s *InventoryService) Release(productID int64, qty int) error {
	return s.Inv.Release(productID, qty)
}
