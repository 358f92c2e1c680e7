package orders

import (
	"context"
	"errors"
	"time"
)

// Storage sentinels. Backends wrap these so the service can classify
// failures without knowing the driver.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict marks a transaction that lost a serialization race or a
	// lock wait and may be retried as a whole.
	ErrConflict = errors.New("transaction conflict")
	// ErrCeiling is raised when the database-level stock check rejects a write.
	ErrCeiling = errors.New("stock ceiling violated")
)

// Store is the data-access component the order services run against.
// Implementations are constructed explicitly at process start and closed at
// shutdown.
type Store interface {
	// WithTx runs fn inside one transaction. A nil return commits; anything
	// else rolls back and is returned unchanged.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListAvailability(ctx context.Context, roundID string) ([]Availability, error)
	GetRound(ctx context.Context, roundID string) (Round, error)
	GetOrder(ctx context.Context, orderID string) (OrderView, error)
	FindSubmittedOrder(ctx context.Context, roundID, userID string) (OrderView, error)
	ProductTotals(ctx context.Context, roundID string) ([]ProductTotal, error)
	// RoundOrderItems lists every item of every submitted order in the round.
	RoundOrderItems(ctx context.Context, roundID string) ([]OrderItemRow, error)
}

// Tx is the set of reads and writes a submission or revision performs
// atomically.
type Tx interface {
	// GetRound reads the round and holds it against concurrent closing.
	GetRound(ctx context.Context, roundID string) (Round, error)
	// LockProducts locks the named products of the round in id order and
	// returns those that exist. Unknown ids are simply absent from the map.
	LockProducts(ctx context.Context, roundID string, productIDs []string) (map[string]Product, error)
	// CommittedQty sums qty over submitted orders per product, skipping
	// excludeOrderID when non-empty.
	CommittedQty(ctx context.Context, productIDs []string, excludeOrderID string) (map[string]int, error)
	// SubmittedOrderFor returns ErrNotFound when the user has no submitted order.
	SubmittedOrderFor(ctx context.Context, roundID, userID string) (Order, error)
	// LockOrder reads and locks one order row.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	OrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	// InsertOrder returns ErrDuplicate when a submitted order already exists
	// for the same round and user.
	InsertOrder(ctx context.Context, o Order) error
	// ReplaceOrderItems deletes every item of the order and inserts items.
	ReplaceOrderItems(ctx context.Context, orderID string, items []OrderItem) error
	UpdateOrderTotals(ctx context.Context, orderID string, totalQty int, totalAmount int64, updatedAt time.Time) error
	// SyncStockSold recomputes products.stock_sold from committed items.
	SyncStockSold(ctx context.Context, productIDs []string) error
	// EnsurePayment creates the unpaid payment record for a submitted order.
	EnsurePayment(ctx context.Context, orderID string, now time.Time) error
}
