package domain

// Extra is the attribute bag administrators may attach to products, code
// entries and order lines. Values are whatever JSON carries: strings,
// numbers, bools, nested maps and arrays.
type Extra map[string]any

// CodeEntry is one row of an administrator-defined code table. Code is a
// globally unique key across every table. Parent/Depth are set only on
// tree-structured tables such as product categories.
type CodeEntry struct {
	Sort   int    `json:"sort" db:"sort"`
	Code   string `json:"code" db:"code"`
	Value  string `json:"value" db:"value"`
	Parent string `json:"parent,omitempty" db:"parent"`
	Depth  int    `json:"depth,omitempty" db:"depth"`
	Extra  Extra  `json:"extra,omitempty" db:"-"`
}

// CodeGroup is a named code table, e.g. "orderState" or "productCategory".
type CodeGroup struct {
	ID        string      `json:"_id" db:"id"`
	Title     string      `json:"title" db:"title"`
	Codes     []CodeEntry `json:"codes"`
	CreatedAt string      `json:"createdAt,omitempty" db:"created_at"`
	UpdatedAt string      `json:"updatedAt,omitempty" db:"updated_at"`
}

type Product struct {
	ID           int64  `json:"_id" db:"id"`
	SellerID     int64  `json:"seller_id" db:"seller_id"`
	Name         string `json:"name" db:"name"`
	Price        int    `json:"price" db:"price"`
	ShippingFees int    `json:"shippingFees" db:"shipping_fees"`
	Quantity     int    `json:"quantity" db:"quantity"`
	BuyQuantity  int    `json:"buyQuantity" db:"buy_quantity"`
	MainImage    string `json:"mainImage,omitempty" db:"main_image"`
	Active       bool   `json:"active" db:"active"`
	Show         bool   `json:"show" db:"show"`
	Extra        Extra  `json:"extra,omitempty" db:"-"`
	CreatedAt    string `json:"createdAt" db:"created_at"`
	UpdatedAt    string `json:"updatedAt" db:"updated_at"`
}

// Available is the sellable stock: total quantity minus cumulative committed.
func (p Product) Available() int { return p.Quantity - p.BuyQuantity }

type User struct {
	ID              int64  `json:"_id" db:"id"`
	Email           string `json:"email" db:"email"`
	Name            string `json:"name" db:"name"`
	Hash            string `json:"-" db:"password_hash"`
	Type            string `json:"type" db:"type"` // user | seller | admin
	MembershipClass string `json:"membershipClass,omitempty" db:"membership_class"`
}

// Caller identifies the authenticated principal of one request.
type Caller struct {
	ID   int64
	Type string // user | seller | admin
}

func (c Caller) IsAdmin() bool { return c.Type == "admin" }

// ProductSnapshot is the denormalized product view captured on a cart line
// at add time.
type ProductSnapshot struct {
	Name  string `json:"name" db:"product_name"`
	Price int    `json:"price" db:"product_price"`
	Image string `json:"image,omitempty" db:"product_image"`
}

// CartLine is a user's pending selection. At most one line exists per
// (user, product); duplicate adds merge by quantity summation.
type CartLine struct {
	ID        int64           `json:"_id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Product   ProductSnapshot `json:"product"`
	CreatedAt string          `json:"createdAt" db:"created_at"`
	UpdatedAt string          `json:"updatedAt" db:"updated_at"`
}

// CartItem is a cart line joined to the live product row, so listings show
// current price and stock rather than the add-time snapshot.
type CartItem struct {
	ID        int64       `json:"_id"`
	ProductID int64       `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Product   CartProduct `json:"product"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
}

type CartProduct struct {
	ID           int64  `json:"_id"`
	SellerID     int64  `json:"seller_id"`
	Name         string `json:"name"`
	Price        int    `json:"price"`
	ShippingFees int    `json:"shippingFees"`
	Quantity     int    `json:"quantity"`
	BuyQuantity  int    `json:"buyQuantity"`
	Image        string `json:"image,omitempty"`
	Extra        Extra  `json:"extra,omitempty"`
}

// AuditEntry records who changed what and when. Entries are append-only and
// never edited or removed.
type AuditEntry struct {
	Actor     int64          `json:"actor"`
	Updated   map[string]any `json:"updated"`
	CreatedAt string         `json:"createdAt"`
}

type Discount struct {
	Products     int `json:"products"`
	ShippingFees int `json:"shippingFees"`
}

// Cost is the breakdown returned by the cost estimator.
type Cost struct {
	Products     int      `json:"products"`
	ShippingFees int      `json:"shippingFees"`
	Discount     Discount `json:"discount"`
	Total        int      `json:"total"`
}

type Address struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OrderLine is one purchased product inside an order. Its state and history
// are independent of the parent order's own state and history; the two
// machines share the same code space. Price is the snapshotted unit price
// multiplied by quantity.
type OrderLine struct {
	ProductID int64          `json:"_id" db:"product_id"`
	SellerID  int64          `json:"seller_id" db:"seller_id"`
	Name      string         `json:"name" db:"name"`
	Image     string         `json:"image,omitempty" db:"image"`
	Quantity  int            `json:"quantity" db:"quantity"`
	Price     int            `json:"price" db:"price"`
	State     string         `json:"state" db:"state"`
	Delivery  map[string]any `json:"delivery,omitempty" db:"-"`
	History   []AuditEntry   `json:"history,omitempty" db:"-"`
	ReplyID   int64          `json:"reply_id,omitempty" db:"reply_id"`
	Extra     Extra          `json:"extra,omitempty" db:"-"`
}

// Order is a committed purchase. Line membership is immutable after
// creation; only state, delivery and history mutate, at either granularity.
type Order struct {
	ID        int64          `json:"_id" db:"id"`
	UserID    int64          `json:"user_id" db:"user_id"`
	State     string         `json:"state" db:"state"`
	Products  []OrderLine    `json:"products"`
	Cost      Cost           `json:"cost"`
	Address   Address        `json:"address"`
	Delivery  map[string]any `json:"delivery,omitempty"`
	History   []AuditEntry   `json:"history,omitempty"`
	CreatedAt string         `json:"createdAt" db:"created_at"`
	UpdatedAt string         `json:"updatedAt" db:"updated_at"`
}

// LineState is the per-line slice of the state digest.
type LineState struct {
	State string `json:"state"`
}

// OrderStateDigest carries only the state fields of one order, used by the
// buyer's state listing.
type OrderStateDigest struct {
	ID       int64       `json:"_id"`
	State    string      `json:"state"`
	Products []LineState `json:"products"`
}

// Pagination mirrors the list envelope of the storefront clients.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}
