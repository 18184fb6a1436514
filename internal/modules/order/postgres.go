package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/threadline/shop-backend/internal/database"
)

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

func (r *postgresRepo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithRetry(ctx, r.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return fn(&orderTx{tx: tx})
	})
}

// orderTx implements Tx on top of one *sql.Tx.
type orderTx struct{ tx *sql.Tx }

func (t *orderTx) LockProduct(ctx context.Context, productID uuid.UUID) (*ProductRow, error) {
	p := &ProductRow{}
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, price, stock
		FROM products
		WHERE id = $1
		FOR UPDATE`, productID).Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock product %s: %w", productID, err)
	}
	return p, nil
}

// DecrementStock is conditional on sufficient stock so the check and the
// write are one atomic statement even outside the row lock.
func (t *orderTx) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1`, qty, productID)
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", productID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	return nil
}

func (t *orderTx) RestockProduct(ctx context.Context, productID uuid.UUID, qty int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2`, qty, productID)
	if err != nil {
		return fmt.Errorf("restock product %s: %w", productID, err)
	}
	return nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o *Order) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders
		  (id, user_id, total, status, street, city, state, zip_code, country)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Total, o.Status,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.State,
		o.ShippingAddress.ZipCode, o.ShippingAddress.Country,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		item.OrderID = o.ID
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO order_items
			  (id, order_id, product_id, quantity, price, size, color, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING created_at`,
			item.ID, o.ID, item.ProductID, item.Quantity,
			item.Price, item.Size, item.Color, item.Position,
		).Scan(&item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *orderTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = queryItems(ctx, t.tx, id)
	return o, err
}

func (t *orderTx) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *orderTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const orderColumns = `id, user_id, total, status, street, city, state, zip_code, country, created_at, updated_at`

func (r *postgresRepo) GetOrder(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	args := []interface{}{id}
	if scopeUserID != nil {
		query += ` AND user_id=$2`
		args = append(args, *scopeUserID)
	}

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	o.Items, err = queryItems(ctx, r.db, id)
	return o, err
}

func (r *postgresRepo) ListOrders(ctx context.Context, userID *uuid.UUID) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []interface{}{}
	if userID != nil {
		query += ` WHERE user_id=$1`
		args = append(args, *userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o := &Order{}
		if err := scanOrderFields(rows.Scan, o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if o.Items, err = queryItems(ctx, r.db, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func scanOrder(row *sql.Row) (*Order, error) {
	o := &Order{}
	err := scanOrderFields(row.Scan, o)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrderFields(scan func(...interface{}) error, o *Order) error {
	return scan(
		&o.ID, &o.UserID, &o.Total, &o.Status,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.ZipCode, &o.ShippingAddress.Country,
		&o.CreatedAt, &o.UpdatedAt)
}

// queryItems returns line items in the caller-supplied request order.
func queryItems(ctx context.Context, q querier, orderID uuid.UUID) ([]*OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price, size, color, position, created_at
		FROM order_items
		WHERE order_id=$1
		ORDER BY position ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*OrderItem
	for rows.Next() {
		item := &OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID,
			&item.Quantity, &item.Price, &item.Size, &item.Color,
			&item.Position, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
