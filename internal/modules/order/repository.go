package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductRow is the slice of a product the order transaction needs: its
// current price and stock, read under a row lock.
type ProductRow struct {
	ID    uuid.UUID
	Name  string
	Price decimal.Decimal
	Stock int
}

// Tx exposes the data operations available inside one order transaction.
// Everything done through a Tx either commits as a unit or rolls back as a
// unit.
type Tx interface {
	// LockProduct reads a product under a row lock, serializing concurrent
	// order transactions touching the same product. Returns
	// ErrProductNotFound when absent.
	LockProduct(ctx context.Context, productID uuid.UUID) (*ProductRow, error)

	// DecrementStock atomically decrements stock by qty, failing with
	// ErrInsufficientStock when fewer than qty units remain.
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error

	// RestockProduct returns qty units to a product's stock.
	RestockProduct(ctx context.Context, productID uuid.UUID, qty int) error

	// InsertOrder persists the order and its items as a single unit and
	// fills in the generated timestamps.
	InsertOrder(ctx context.Context, o *Order) error

	// GetOrderForUpdate reads an order with its items under a row lock.
	// Returns ErrOrderNotFound when absent.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)

	// UpdateOrderStatus sets an order's status. Returns ErrOrderNotFound
	// when absent.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error

	// DeleteOrder removes an order and its items. Returns ErrOrderNotFound
	// when absent.
	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

// Repository defines data access for orders.
type Repository interface {
	// InTx runs fn inside a single transaction. fn must be safe to re-run:
	// the transaction is retried on serialization conflicts.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// GetOrder retrieves an order with its items. A non-nil scopeUserID
	// restricts the lookup to orders owned by that user; a miss for either
	// reason is ErrOrderNotFound.
	GetOrder(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*Order, error)

	// ListOrders returns orders most recent first, restricted to one owner
	// when userID is non-nil.
	ListOrders(ctx context.Context, userID *uuid.UUID) ([]*Order, error)
}
