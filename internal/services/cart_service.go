package services

import (
	"openmarket/internal/domain"
	"openmarket/internal/repos"
)

// CartService holds pending, unconfirmed selections per user. Adding a
// product twice merges into one line by summing quantities.
type CartService struct {
	Carts    *repos.CartRepo
	Products *repos.ProductRepo
	Users    *repos.UserRepo
	Cost     CostEstimator
}

func NewCartService(carts *repos.CartRepo, products *repos.ProductRepo, users *repos.UserRepo, cost CostEstimator) *CartService {
	return &CartService{Carts: carts, Products: products, Users: users, Cost: cost}
}

// LineRequest is a product selection as sent by clients.
type LineRequest struct {
	ProductID int64 `json:"_id"`
	Quantity  int   `json:"quantity"`
}

// CartList is a user's cart joined to live products, with the estimator's
// cost over current prices.
type CartList struct {
	Items []domain.CartItem `json:"item"`
	Cost  domain.Cost       `json:"cost"`
}

// AddOrMerge puts a product in the user's cart. The product snapshot
// (name, price, image) is captured only when a new line is created; a
// merge keeps the original snapshot and sums the quantity. Returns the
// refreshed cart.
func (s *CartService) AddOrMerge(userID, productID int64, qty int) (CartList, error) {
	if qty < 1 {
		return CartList{}, domain.Validationf("quantity", "must be at least 1")
	}
	p, err := s.Products.Get(productID)
	if err != nil {
		return CartList{}, err
	}
	snap := domain.ProductSnapshot{Name: p.Name, Price: p.Price, Image: p.MainImage}
	if err := s.Carts.Upsert(userID, productID, qty, snap); err != nil {
		return CartList{}, err
	}
	return s.ListForUser(userID, nil)
}

// ListForUser returns the cart joined to live product rows plus the
// aggregate cost. A client discount, when given, overrides the membership
// discount.
func (s *CartService) ListForUser(userID int64, client *domain.Discount) (CartList, error) {
	items, err := s.Carts.ListForUser(userID)
	if err != nil {
		return CartList{}, err
	}

	lines := make([]PriceLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, PriceLine{
			ProductID:    it.ProductID,
			Quantity:     it.Quantity,
			Price:        it.Product.Price * it.Quantity,
			ShippingFees: it.Product.ShippingFees,
		})
	}
	cost, err := s.Cost.GetCost(CostInput{
		Lines:           lines,
		MembershipClass: s.membershipClass(userID),
		Client:          client,
	})
	if err != nil {
		return CartList{}, err
	}
	return CartList{Items: items, Cost: cost}, nil
}

// LocalCartItem is one line of an anonymous quote, resolved against live
// products.
type LocalCartItem struct {
	ProductID       int64        `json:"_id"`
	Quantity        int          `json:"quantity"`
	QuantityInStock int          `json:"quantityInStock"`
	SellerID        int64        `json:"seller_id"`
	Name            string       `json:"name"`
	Image           string       `json:"image,omitempty"`
	Price           int          `json:"price"`
	Extra           domain.Extra `json:"extra,omitempty"`
}

type LocalCart struct {
	Items []LocalCartItem `json:"products"`
	Cost  domain.Cost     `json:"cost"`
}

// QuoteLocal prices a not-logged-in cart held on the client. Unknown
// products abort the quote.
func (s *CartService) QuoteLocal(reqs []LineRequest, client *domain.Discount) (LocalCart, error) {
	out := LocalCart{Items: []LocalCartItem{}}
	lines := make([]PriceLine, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity < 1 {
			return LocalCart{}, domain.Validationf("quantity", "must be at least 1")
		}
		p, err := s.Products.Get(req.ProductID)
		if err != nil {
			return LocalCart{}, err
		}
		out.Items = append(out.Items, LocalCartItem{
			ProductID:       p.ID,
			Quantity:        req.Quantity,
			QuantityInStock: p.Available(),
			SellerID:        p.SellerID,
			Name:            p.Name,
			Image:           p.MainImage,
			Price:           p.Price * req.Quantity,
			Extra:           p.Extra,
		})
		lines = append(lines, PriceLine{
			ProductID:    p.ID,
			Quantity:     req.Quantity,
			Price:        p.Price * req.Quantity,
			ShippingFees: p.ShippingFees,
		})
	}
	cost, err := s.Cost.GetCost(CostInput{Lines: lines, Client: client})
	if err != nil {
		return LocalCart{}, err
	}
	out.Cost = cost
	return out, nil
}

// UpdateQuantity changes one line's quantity. Only the owner or an admin
// may touch a line.
func (s *CartService) UpdateQuantity(caller domain.Caller, id int64, qty int) (domain.CartLine, error) {
	if qty < 1 {
		return domain.CartLine{}, domain.Validationf("quantity", "must be at least 1")
	}
	line, err := s.Carts.Get(id)
	if err != nil {
		return domain.CartLine{}, err
	}
	if !caller.IsAdmin() && line.UserID != caller.ID {
		return domain.CartLine{}, domain.ErrUnauthorized
	}
	updatedAt, err := s.Carts.UpdateQuantity(id, qty)
	if err != nil {
		return domain.CartLine{}, err
	}
	line.Quantity = qty
	line.UpdatedAt = updatedAt
	return line, nil
}

// Remove deletes one line after an ownership check.
func (s *CartService) Remove(caller domain.Caller, id int64) error {
	line, err := s.Carts.Get(id)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() && line.UserID != caller.ID {
		return domain.ErrUnauthorized
	}
	return s.Carts.Delete(id)
}

// RemoveMany deletes a batch of lines. Every id must belong to the caller
// (admins excepted); otherwise nothing is deleted.
func (s *CartService) RemoveMany(caller domain.Caller, ids []int64) error {
	if len(ids) == 0 {
		return domain.Validationf("carts", "at least one cart id is required")
	}
	if !caller.IsAdmin() {
		n, err := s.Carts.CountNotOwned(ids, caller.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrUnauthorized
		}
	}
	return s.Carts.DeleteMany(ids)
}

// Clear empties the user's cart.
func (s *CartService) Clear(userID int64) error {
	return s.Carts.DeleteForUser(userID)
}

// Merge folds client-held lines into the account cart, line by line with
// the usual quantity summation. Used on login to sync a local cart.
func (s *CartService) Merge(userID int64, reqs []LineRequest) (CartList, error) {
	for _, req := range reqs {
		if req.Quantity < 1 {
			return CartList{}, domain.Validationf("quantity", "must be at least 1")
		}
		p, err := s.Products.Get(req.ProductID)
		if err != nil {
			return CartList{}, err
		}
		snap := domain.ProductSnapshot{Name: p.Name, Price: p.Price, Image: p.MainImage}
		if err := s.Carts.Upsert(userID, req.ProductID, req.Quantity, snap); err != nil {
			return CartList{}, err
		}
	}
	return s.ListForUser(userID, nil)
}

// ReplaceAll is cleanup followed by merge: the account cart becomes
// exactly the given lines.
func (s *CartService) ReplaceAll(userID int64, reqs []LineRequest) (CartList, error) {
	if err := s.Carts.DeleteForUser(userID); err != nil {
		return CartList{}, err
	}
	return s.Merge(userID, reqs)
}

func (s *CartService) membershipClass(userID int64) string {
	u, err := s.Users.ByID(userID)
	if err != nil {
		return ""
	}
	return u.MembershipClass
}
