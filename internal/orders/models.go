package orders

import "time"

type Round struct {
	ID        string
	Title     string
	Deadline  time.Time
	Status    RoundStatus
	CreatedAt time.Time
}

// Product is owned by the catalog; the core only reads it and maintains
// StockSold as a denormalized running total.
type Product struct {
	ID         string
	RoundID    string
	Name       string
	Price      int64
	StockLimit int
	StockSold  int
	Visible    bool
	SortOrder  int
}

type Order struct {
	ID          string
	RoundID     string
	UserID      string
	Status      Status // lihat status.go
	TotalQty    int
	TotalAmount int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem captures the unit price at submission time.
type OrderItem struct {
	OrderID   string `json:"-"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
}

// ItemInput is one requested line of a submit or resubmit call.
// UnitPrice, when set, is the price the caller displayed.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice *int64 `json:"unit_price,omitempty"`
}

// Availability is one row of the per-round stock listing.
type Availability struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	StockLimit     int    `json:"stock_limit"`
	StockRemaining int    `json:"stock_remaining"`
	// Set only when the caller holds a submitted order in the round.
	PreviousQty   *int `json:"previous_qty,omitempty"`
	MaxSelectable *int `json:"max_selectable,omitempty"`
}

// ProductTotal is one row of the organizer's per-product report.
type ProductTotal struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	TotalQty       int    `json:"total_qty"`
	TotalAmount    int64  `json:"total_amount"`
	StockLimit     int    `json:"stock_limit"`
	StockRemaining int    `json:"stock_remaining"`
}

// OrderItemRow is one line of a submitted order as the organizer sees it
// when packing the round.
type OrderItemRow struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Qty         int       `json:"qty"`
	UnitPrice   int64     `json:"unit_price"`
	LineAmount  int64     `json:"line_amount"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OrderView is a submitted order together with its items.
type OrderView struct {
	Order Order
	Items []OrderItem
}
