package services

import (
	"openmarket/internal/domain"
	"openmarket/internal/registry"
	"openmarket/internal/repos"
)

// DefaultOrderState is the initial order-level state when the caller does
// not supply one: payment has already completed by the time the order
// reaches this service.
const DefaultOrderState = "OS020"

// OrderService orchestrates order creation (validate, reserve, price,
// persist, reconcile cart) and the dual-granularity state machine whose
// valid states come from the code registry.
type OrderService struct {
	Orders   *repos.OrderRepo
	Products *repos.ProductRepo
	Inv      *InventoryService
	Carts    *repos.CartRepo
	Users    *repos.UserRepo
	Codes    *registry.Registry
	Cost     CostEstimator
}

func NewOrderService(orders *repos.OrderRepo, products *repos.ProductRepo, inv *InventoryService,
	carts *repos.CartRepo, users *repos.UserRepo, codes *registry.Registry, cost CostEstimator) *OrderService {
	return &OrderService{Orders: orders, Products: products, Inv: inv, Carts: carts, Users: users, Codes: codes, Cost: cost}
}

// CreateOrderRequest describes one purchase, from a cart or direct.
// ExternalID is the client-supplied idempotency key: a retried create with
// the same key returns the first order instead of reserving twice.
type CreateOrderRequest struct {
	UserID         int64
	Products       []LineRequest
	Address        domain.Address
	State          string
	FromCart       bool
	ClientDiscount *domain.Discount
	ExternalID     string
	DryRun         bool
}

// Create runs the order saga: validate every line, reserve stock line by
// line, price, persist, then reconcile the cart. A failure after partial
// reservation releases what was already reserved; nothing is persisted
// unless every step succeeded. DryRun stops before any write and returns
// the priced order.
func (s *OrderService) Create(req CreateOrderRequest) (domain.Order, error) {
	if len(req.Products) == 0 {
		return domain.Order{}, domain.Validationf("products", "at least one line is required")
	}
	for _, l := range req.Products {
		if l.Quantity < 1 {
			return domain.Order{}, domain.Validationf("products", "quantity for product %d must be at least 1", l.ProductID)
		}
	}

	if req.ExternalID != "" {
		if existing, ok, err := s.Orders.GetByExternalID(req.ExternalID); err != nil {
			return domain.Order{}, err
		} else if ok {
			return existing, nil
		}
	}

	state := req.State
	if state == "" {
		state = DefaultOrderState
	}
	if !s.Codes.Has(state) {
		return domain.Order{}, domain.Validationf("state", "unknown state code %q", state)
	}

	// Resolve and pre-validate every line before reserving anything, so a
	// late miss cannot strand earlier reservations.
	resolved := make([]domain.Product, 0, len(req.Products))
	for _, l := range req.Products {
		p, err := s.Products.Get(l.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if avail := p.Available(); avail < l.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID: p.ID, Requested: l.Quantity, Available: avail,
			}
		}
		resolved = append(resolved, p)
	}

	now := domain.Now()
	order := domain.Order{
		UserID:    req.UserID,
		State:     state,
		Address:   req.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	lines := make([]PriceLine, 0, len(req.Products))
	for i, l := range req.Products {
		p := resolved[i]
		order.Products = append(order.Products, domain.OrderLine{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      p.Name,
			Image:     p.MainImage,
			Quantity:  l.Quantity,
			Price:     p.Price * l.Quantity,
			State:     state,
			Extra:     p.Extra,
		})
		lines = append(lines, PriceLine{
			ProductID:    p.ID,
			Quantity:     l.Quantity,
			Price:        p.Price * l.Quantity,
			ShippingFees: p.ShippingFees,
		})
	}

	cost, err := s.Cost.GetCost(CostInput{
		Lines:           lines,
		MembershipClass: s.membershipClass(req.UserID),
		Client:          req.ClientDiscount,
	})
	if err != nil {
		return domain.Order{}, err
	}
	order.Cost = cost

	if req.DryRun {
		return order, nil
	}

	// Reserve sequentially in the order supplied; release earlier lines
	// if a later one loses the race despite the pre-check.
	reserved := make([]LineRequest, 0, len(req.Products))
	for _, l := range req.Products {
		if err := s.Inv.Reserve(l.ProductID, l.Quantity); err != nil {
			s.releaseAll(reserved)
			return domain.Order{}, err
		}
		reserved = append(reserved, l)
	}

	order, err = s.Orders.Create(order, req.ExternalID)
	if err != nil {
		s.releaseAll(reserved)
		return domain.Order{}, err
	}

	// Best-effort cart reconciliation; a failure here leaves stale lines
	// that the next cart read re-validates anyway.
	if req.FromCart {
		ids := make([]int64, 0, len(order.Products))
		for _, l := range order.Products {
			ids = append(ids, l.ProductID)
		}
		_ = s.Carts.DeleteForUserProducts(req.UserID, ids)
	}

	return order, nil
}

func (s *OrderService) releaseAll(lines []LineRequest) {
	for _, l := range lines {
		_ = s.Inv.Release(l.ProductID, l.Quantity)
	}
}

// OrderPatch is a requested state transition at either granularity.
type OrderPatch struct {
	State    string         `json:"state"`
	Delivery map[string]any `json:"delivery,omitempty"`
	Memo     string         `json:"memo,omitempty"`
}

func (p OrderPatch) updated() map[string]any {
	u := map[string]any{"state": p.State}
	if p.Delivery != nil {
		u["delivery"] = p.Delivery
	}
	if p.Memo != "" {
		u["memo"] = p.Memo
	}
	return u
}

// TransitionOrder moves the order-level state machine. The new state only
// has to exist in the registry; transition legality between known codes is
// an administrator concern, not enforced here. Exactly one audit entry is
// appended.
func (s *OrderService) TransitionOrder(caller domain.Caller, orderID int64, patch OrderPatch) (domain.Order, error) {
	o, err := s.Orders.Get(orderID, 0)
	if err != nil {
		return domain.Order{}, err
	}
	if !s.mayTouchOrder(caller, o) {
		return domain.Order{}, domain.ErrUnauthorized
	}
	if err := s.checkState(patch.State); err != nil {
		return domain.Order{}, err
	}

	entry := domain.AuditEntry{Actor: caller.ID, Updated: patch.updated(), CreatedAt: domain.Now()}
	if err := s.Orders.UpdateState(orderID, patch.State, patch.Delivery, entry); err != nil {
		return domain.Order{}, err
	}
	return s.Orders.Get(orderID, 0)
}

// TransitionLine moves one line's state machine, leaving the parent order
// state and every sibling line untouched. The audit entry lands on the
// line's own history.
func (s *OrderService) TransitionLine(caller domain.Caller, orderID, productID int64, patch OrderPatch) (domain.Order, error) {
	o, err := s.Orders.Get(orderID, 0)
	if err != nil {
		return domain.Order{}, err
	}
	line, ok := findLine(o, productID)
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if !caller.IsAdmin() && caller.ID != o.UserID && caller.ID != line.SellerID {
		return domain.Order{}, domain.ErrUnauthorized
	}
	if err := s.checkState(patch.State); err != nil {
		return domain.Order{}, err
	}

	entry := domain.AuditEntry{Actor: caller.ID, Updated: patch.updated(), CreatedAt: domain.Now()}
	if err := s.Orders.UpdateLineState(orderID, productID, patch.State, patch.Delivery, entry); err != nil {
		return domain.Order{}, err
	}
	return s.Orders.Get(orderID, 0)
}

// OrderPage is a filtered, sorted, paginated listing.
type OrderPage struct {
	Items      []domain.Order
	Pagination domain.Pagination
}

func (s *OrderService) FindForUser(userID int64, f repos.OrderFilter) (OrderPage, error) {
	items, total, err := s.Orders.ListForUser(userID, f)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{Items: items, Pagination: paginate(f, total)}, nil
}

// FindForSeller lists orders containing the seller's lines, each order
// narrowed to those lines so one seller never sees another's.
func (s *OrderService) FindForSeller(sellerID int64, f repos.OrderFilter) (OrderPage, error) {
	items, total, err := s.Orders.ListForSeller(sellerID, f)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{Items: items, Pagination: paginate(f, total)}, nil
}

// FindByID loads one order; a non-zero userID scopes it to that buyer.
func (s *OrderService) FindByID(orderID, userID int64) (domain.Order, error) {
	return s.Orders.Get(orderID, userID)
}

// FindForSellerByID loads one order narrowed to the seller's lines.
func (s *OrderService) FindForSellerByID(orderID, sellerID int64) (domain.Order, error) {
	return s.Orders.GetForSeller(orderID, sellerID)
}

// FindStates returns only the state fields of the buyer's orders.
func (s *OrderService) FindStates(userID int64) ([]domain.OrderStateDigest, error) {
	return s.Orders.ListStates(userID)
}

// AttachReviewReference points a purchased line at its review. Writing
// twice overwrites the pointer.
func (s *OrderService) AttachReviewReference(caller domain.Caller, orderID, productID, replyID int64) error {
	o, err := s.Orders.Get(orderID, 0)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() && caller.ID != o.UserID {
		return domain.ErrUnauthorized
	}
	if _, ok := findLine(o, productID); !ok {
		return domain.ErrNotFound
	}
	return s.Orders.SetReplyID(orderID, productID, replyID)
}

func (s *OrderService) checkState(state string) error {
	if state == "" {
		return domain.Validationf("state", "state code is required")
	}
	if !s.Codes.Has(state) {
		return domain.Validationf("state", "unknown state code %q", state)
	}
	return nil
}

func (s *OrderService) mayTouchOrder(caller domain.Caller, o domain.Order) bool {
	if caller.IsAdmin() || caller.ID == o.UserID {
		return true
	}
	for _, l := range o.Products {
		if l.SellerID == caller.ID {
			return true
		}
	}
	return false
}

func (s *OrderService) membershipClass(userID int64) string {
	u, err := s.Users.ByID(userID)
	if err != nil {
		return ""
	}
	return u.MembershipClass
}

func findLine(o domain.Order, productID int64) (domain.OrderLine, bool) {
	for _, l := range o.Products {
		if l.ProductID == productID {
			return l, true
		}
	}
	return domain.OrderLine{}, false
}

func paginate(f repos.OrderFilter, total int) domain.Pagination {
	page := f.Page
	if page < 1 {
		page = 1
	}
	pages := 1
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return domain.Pagination{Page: page, Limit: f.Limit, Total: total, TotalPages: pages}
}
