package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service defines the order management business logic.
type Service interface {
	// CreateOrder validates the request, prices each line item against live
	// product data, decrements stock, and persists the order. The whole
	// sequence is atomic: any failure rolls back every stock decrement.
	CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*Order, error)

	// ListOrders returns all orders for admins, or the caller's own orders
	// otherwise, most recent first.
	ListOrders(ctx context.Context, callerID string, admin bool) ([]*Order, error)

	// GetOrder retrieves one order. Non-admin callers only see their own;
	// anything else is ErrOrderNotFound.
	GetOrder(ctx context.Context, id string, callerID string, admin bool) (*Order, error)

	// UpdateStatus advances an order through its lifecycle, rejecting
	// transitions outside the state machine.
	UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Order, error)

	// CancelOrder deletes an order and restores its line items' stock.
	CancelOrder(ctx context.Context, id string) error
}

type service struct {
	repo          Repository
	createTimeout time.Duration
}

// NewService creates a new order service. createTimeout bounds each
// order-creation transaction; zero means no deadline.
func NewService(repo Repository, createTimeout time.Duration) Service {
	return &service{repo: repo, createTimeout: createTimeout}
}

// validTransitions defines the allowed status state machine:
// pending→processing→shipped→delivered, with cancellation only from
// pending.
var validTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func (s *service) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*Order, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidRequest)
	}
	productIDs := make([]uuid.UUID, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidRequest, item.ProductID)
		}
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid product id %q", ErrInvalidRequest, item.ProductID)
		}
		productIDs[i] = pid
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}

	if s.createTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.createTimeout)
		defer cancel()
	}

	var created *Order
	err = s.repo.InTx(ctx, func(tx Tx) error {
		total := decimal.Zero
		items := make([]*OrderItem, 0, len(req.Items))

		// Items are processed strictly in caller-supplied order. The stock
		// decrement is applied per item, before the next item is examined;
		// the enclosing transaction undoes all of it on any failure.
		for i, item := range req.Items {
			product, err := tx.LockProduct(ctx, productIDs[i])
			if err != nil {
				return err
			}
			if product.Stock < item.Quantity {
				return fmt.Errorf("product %s: %w", product.Name, ErrInsufficientStock)
			}

			total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			items = append(items, &OrderItem{
				ID:        uuid.New(),
				ProductID: product.ID,
				Quantity:  item.Quantity,
				Price:     product.Price,
				Size:      item.Size,
				Color:     item.Color,
				Position:  i,
			})

			if err := tx.DecrementStock(ctx, product.ID, item.Quantity); err != nil {
				return err
			}
		}

		o := &Order{
			ID:              uuid.New(),
			UserID:          uid,
			Items:           items,
			Total:           total,
			ShippingAddress: req.ShippingAddress,
			Status:          StatusPending,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: order creation timed out", ErrOperationAborted)
		}
		return nil, err
	}
	return created, nil
}

func (s *service) ListOrders(ctx context.Context, callerID string, admin bool) ([]*Order, error) {
	if admin {
		return s.repo.ListOrders(ctx, nil)
	}
	uid, err := uuid.Parse(callerID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrInvalidRequest)
	}
	return s.repo.ListOrders(ctx, &uid)
}

func (s *service) GetOrder(ctx context.Context, id string, callerID string, admin bool) (*Order, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	var scope *uuid.UUID
	if !admin {
		uid, err := uuid.Parse(callerID)
		if err != nil {
			return nil, ErrOrderNotFound
		}
		scope = &uid
	}
	return s.repo.GetOrder(ctx, oid, scope)
}

// UpdateStatus validates and applies the transition inside one transaction,
// holding the order's row lock so two concurrent updates cannot both read
// the same starting status. A transition into cancelled restores each line
// item's stock, same as deletion.
func (s *service) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Order, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	newStatus := OrderStatus(req.Status)
	switch newStatus {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.Status)
	}

	var updated *Order
	err = s.repo.InTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, oid)
		if err != nil {
			return err
		}

		valid := false
		for _, next := range validTransitions[o.Status] {
			if next == newStatus {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, o.Status, newStatus)
		}

		if newStatus == StatusCancelled {
			for _, item := range o.Items {
				if err := tx.RestockProduct(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateOrderStatus(ctx, oid, newStatus); err != nil {
			return err
		}
		o.Status = newStatus
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelOrder deletes the order and, in the same transaction, returns each
// line item's quantity to its product's stock.
func (s *service) CancelOrder(ctx context.Context, id string) error {
	oid, err := uuid.Parse(id)
	if err != nil {
		return ErrOrderNotFound
	}

	return s.repo.InTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, oid)
		if err != nil {
			return err
		}
		for _, item := range o.Items {
			if err := tx.RestockProduct(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return tx.DeleteOrder(ctx, oid)
	})
}

func validateAddress(a ShippingAddress) error {
	if a.Street == "" || a.City == "" || a.State == "" || a.ZipCode == "" || a.Country == "" {
		return fmt.Errorf("%w: shipping address requires street, city, state, zipCode and country", ErrInvalidRequest)
	}
	return nil
}
