package services

import (
	"openmarket/internal/domain"
	"openmarket/internal/registry"
)

// PriceLine is one priced line handed to the estimator. Price is already
// unit price times quantity.
type PriceLine struct {
	ProductID    int64
	Quantity     int
	Price        int
	ShippingFees int
}

// CostInput bundles the lines with the discount context: the buyer's
// membership class and an optional client-side discount passthrough used
// by anonymous quotes.
type CostInput struct {
	Lines           []PriceLine
	MembershipClass string
	Client          *domain.Discount
}

// CostEstimator computes the cost breakdown for a set of lines. The order
// engine and the cart store treat it as an external collaborator.
type CostEstimator interface {
	GetCost(in CostInput) (domain.Cost, error)
}

// StandardEstimator sums the lines and applies the membership discount
// rate published by the code registry (membershipClass extra attribute
// "discountRate", in percent).
type StandardEstimator struct {
	Codes *registry.Registry
}

func NewStandardEstimator(codes *registry.Registry) *StandardEstimator {
	return &StandardEstimator{Codes: codes}
}

func (e *StandardEstimator) GetCost(in CostInput) (domain.Cost, error) {
	var cost domain.Cost
	for _, l := range in.Lines {
		cost.Products += l.Price
		cost.ShippingFees += l.ShippingFees
	}

	if in.Client != nil {
		cost.Discount = *in.Client
	} else if rate, ok := e.discountRate(in.MembershipClass); ok {
		cost.Discount.Products = cost.Products * rate / 100
	}

	cost.Total = cost.Products + cost.ShippingFees - cost.Discount.Products - cost.Discount.ShippingFees
	return cost, nil
}

func (e *StandardEstimator) discountRate(class string) (int, bool) {
	if class == "" {
		return 0, false
	}
	v, ok := e.Codes.Attr(class, "discountRate")
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64: // JSON numbers decode as float64
		return int(n), true
	}
	return 0, false
}
