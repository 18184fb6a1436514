package order

import "errors"

var (
	// ErrProductNotFound aborts order creation when a referenced product
	// does not exist. No stock mutation survives the abort.
	ErrProductNotFound = errors.New("product not found")

	// ErrInsufficientStock aborts order creation when a requested quantity
	// exceeds the product's available stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOrderNotFound covers both a missing order and an order outside the
	// caller's scope; the two are deliberately indistinguishable.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition rejects a status update not permitted by the
	// order lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrOperationAborted signals that order creation hit its deadline and
	// was rolled back.
	ErrOperationAborted = errors.New("operation aborted")

	// ErrInvalidRequest covers malformed create-order input.
	ErrInvalidRequest = errors.New("invalid order request")
)
