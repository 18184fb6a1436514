package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo mimics the postgres repository's transactional semantics in
// memory: InTx serializes transactions (standing in for row locks) and
// restores a snapshot when the closure fails, so rollback behaviour is
// observable in tests.
type fakeRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*fakeProduct
	orders   map[uuid.UUID]*Order
	seq      int
}

type fakeProduct struct {
	name  string
	price decimal.Decimal
	stock int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: make(map[uuid.UUID]*fakeProduct),
		orders:   make(map[uuid.UUID]*Order),
	}
}

func (r *fakeRepo) addProduct(name, price string, stock int) uuid.UUID {
	id := uuid.New()
	r.products[id] = &fakeProduct{name: name, price: decimal.RequireFromString(price), stock: stock}
	return id
}

func (r *fakeRepo) stockOf(id uuid.UUID) int { return r.products[id].stock }

func (r *fakeRepo) snapshot() (map[uuid.UUID]*fakeProduct, map[uuid.UUID]*Order) {
	products := make(map[uuid.UUID]*fakeProduct, len(r.products))
	for id, p := range r.products {
		copied := *p
		products[id] = &copied
	}
	orders := make(map[uuid.UUID]*Order, len(r.orders))
	for id, o := range r.orders {
		orders[id] = o
	}
	return products, orders
}

func (r *fakeRepo) InTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	products, orders := r.snapshot()
	err := fn(&fakeTx{r: r})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.products, r.orders = products, orders
		return err
	}
	return nil
}

func (r *fakeRepo) GetOrder(ctx context.Context, id uuid.UUID, scopeUserID *uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || (scopeUserID != nil && o.UserID != *scopeUserID) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeRepo) ListOrders(ctx context.Context, userID *uuid.UUID) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []*Order
	for _, o := range r.orders {
		if userID == nil || o.UserID == *userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

type fakeTx struct{ r *fakeRepo }

func (t *fakeTx) LockProduct(ctx context.Context, productID uuid.UUID) (*ProductRow, error) {
	p, ok := t.r.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	return &ProductRow{ID: productID, Name: p.name, Price: p.price, Stock: p.stock}, nil
}

func (t *fakeTx) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	p, ok := t.r.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	if p.stock < qty {
		return fmt.Errorf("product %s: %w", p.name, ErrInsufficientStock)
	}
	p.stock -= qty
	return nil
}

func (t *fakeTx) RestockProduct(ctx context.Context, productID uuid.UUID, qty int) error {
	p, ok := t.r.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	p.stock += qty
	return nil
}

func (t *fakeTx) InsertOrder(ctx context.Context, o *Order) error {
	t.r.seq++
	o.CreatedAt = time.Unix(int64(t.r.seq), 0)
	o.UpdatedAt = o.CreatedAt
	for _, item := range o.Items {
		item.OrderID = o.ID
	}
	t.r.orders[o.ID] = o
	return nil
}

func (t *fakeTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, ok := t.r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (t *fakeTx) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error {
	o, ok := t.r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (t *fakeTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.r.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(t.r.orders, id)
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAddress() ShippingAddress {
	return ShippingAddress{
		Street:  "12 Cairo Rd",
		City:    "Lusaka",
		State:   "Lusaka",
		ZipCode: "10101",
		Country: "ZM",
	}
}

func orderRequest(items ...RequestedItem) CreateOrderRequest {
	return CreateOrderRequest{Items: items, ShippingAddress: testAddress()}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestCreateOrderComputesTotalAndDecrementsStock(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	o, err := svc.CreateOrder(context.Background(), uuid.NewString(),
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 3, Size: "M", Color: "black"}))
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(dec("30.00")), "total = %s", o.Total)
	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Price.Equal(dec("10.00")))
	assert.Equal(t, "M", o.Items[0].Size)
	assert.Equal(t, 2, repo.stockOf(pid))
}

func TestCreateOrderSnapshotsPrice(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	userID := uuid.NewString()
	o, err := svc.CreateOrder(context.Background(), userID,
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 3}))
	require.NoError(t, err)

	// A later price change must not affect the persisted line item.
	repo.products[pid].price = dec("99.99")

	got, err := svc.GetOrder(context.Background(), o.ID.String(), userID, false)
	require.NoError(t, err)
	assert.True(t, got.Items[0].Price.Equal(dec("10.00")))
	assert.True(t, got.Total.Equal(dec("30.00")))
}

func TestCreateOrderMultiItemTotal(t *testing.T) {
	repo := newFakeRepo()
	shirt := repo.addProduct("shirt", "19.99", 10)
	jeans := repo.addProduct("jeans", "45.50", 4)
	svc := NewService(repo, 0)

	o, err := svc.CreateOrder(context.Background(), uuid.NewString(), orderRequest(
		RequestedItem{ProductID: shirt.String(), Quantity: 2},
		RequestedItem{ProductID: jeans.String(), Quantity: 1},
	))
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(dec("85.48")), "total = %s", o.Total)
	assert.Equal(t, 8, repo.stockOf(shirt))
	assert.Equal(t, 3, repo.stockOf(jeans))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 2)
	svc := NewService(repo, 0)

	_, err := svc.CreateOrder(context.Background(), uuid.NewString(),
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 5}))
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, repo.stockOf(pid))
}

func TestCreateOrderUnknownProductRollsBackEarlierDecrements(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	_, err := svc.CreateOrder(context.Background(), uuid.NewString(), orderRequest(
		RequestedItem{ProductID: pid.String(), Quantity: 2},
		RequestedItem{ProductID: uuid.NewString(), Quantity: 1},
	))
	require.ErrorIs(t, err, ErrProductNotFound)

	assert.Equal(t, 5, repo.stockOf(pid), "first item's decrement must be rolled back")
	orders, err := repo.ListOrders(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, orders, "no partial order may be visible")
}

func TestCreateOrderInsufficientStockMidOrderRollsBack(t *testing.T) {
	repo := newFakeRepo()
	first := repo.addProduct("tee", "10.00", 5)
	second := repo.addProduct("hat", "7.50", 1)
	svc := NewService(repo, 0)

	_, err := svc.CreateOrder(context.Background(), uuid.NewString(), orderRequest(
		RequestedItem{ProductID: first.String(), Quantity: 3},
		RequestedItem{ProductID: second.String(), Quantity: 2},
	))
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 5, repo.stockOf(first))
	assert.Equal(t, 1, repo.stockOf(second))
}

func TestCreateOrderPreservesItemOrder(t *testing.T) {
	repo := newFakeRepo()
	a := repo.addProduct("a", "1.00", 10)
	b := repo.addProduct("b", "2.00", 10)
	c := repo.addProduct("c", "3.00", 10)
	svc := NewService(repo, 0)

	o, err := svc.CreateOrder(context.Background(), uuid.NewString(), orderRequest(
		RequestedItem{ProductID: b.String(), Quantity: 1},
		RequestedItem{ProductID: c.String(), Quantity: 1},
		RequestedItem{ProductID: a.String(), Quantity: 1},
	))
	require.NoError(t, err)

	require.Len(t, o.Items, 3)
	assert.Equal(t, []uuid.UUID{b, c, a}, []uuid.UUID{o.Items[0].ProductID, o.Items[1].ProductID, o.Items[2].ProductID})
	for i, item := range o.Items {
		assert.Equal(t, i, item.Position)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)
	userID := uuid.NewString()

	missingZip := orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 1})
	missingZip.ShippingAddress.ZipCode = ""

	tests := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"no items", orderRequest()},
		{"zero quantity", orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 0})},
		{"negative quantity", orderRequest(RequestedItem{ProductID: pid.String(), Quantity: -1})},
		{"bad product id", orderRequest(RequestedItem{ProductID: "not-a-uuid", Quantity: 1})},
		{"missing zip code", missingZip},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), userID, tc.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, 5, repo.stockOf(pid))
		})
	}
}

func TestCreateOrderConcurrentStockRace(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateOrder(context.Background(), uuid.NewString(),
				orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 3}))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, successes, "exactly one of two competing orders must win")
	assert.Equal(t, 2, repo.stockOf(pid), "stock must never go negative or double-count")
}

func TestCreateOrderTimeout(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, time.Nanosecond)

	_, err := svc.CreateOrder(context.Background(), uuid.NewString(),
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 3}))
	require.ErrorIs(t, err, ErrOperationAborted)
	assert.Equal(t, 5, repo.stockOf(pid))
}

func TestGetOrderScope(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	owner := uuid.NewString()
	stranger := uuid.NewString()
	o, err := svc.CreateOrder(context.Background(), owner,
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), o.ID.String(), owner, false)
	assert.NoError(t, err)

	// A non-owner and a nonexistent id must be indistinguishable.
	_, err = svc.GetOrder(context.Background(), o.ID.String(), stranger, false)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = svc.GetOrder(context.Background(), uuid.NewString(), owner, false)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.GetOrder(context.Background(), o.ID.String(), stranger, true)
	assert.NoError(t, err, "admins see every order")
}

func TestListOrdersScoping(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 100)
	svc := NewService(repo, 0)

	alice := uuid.NewString()
	bob := uuid.NewString()
	for i := 0; i < 2; i++ {
		_, err := svc.CreateOrder(context.Background(), alice,
			orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 1}))
		require.NoError(t, err)
	}
	_, err := svc.CreateOrder(context.Background(), bob,
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 1}))
	require.NoError(t, err)

	mine, err := svc.ListOrders(context.Background(), alice, false)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, alice, o.UserID.String())
	}
	assert.True(t, !mine[0].CreatedAt.Before(mine[1].CreatedAt), "most recent first")

	all, err := svc.ListOrders(context.Background(), bob, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      string
		allowed bool
	}{
		{StatusPending, "processing", true},
		{StatusPending, "cancelled", true},
		{StatusProcessing, "shipped", true},
		{StatusShipped, "delivered", true},
		{StatusPending, "shipped", false},
		{StatusPending, "delivered", false},
		{StatusProcessing, "cancelled", false},
		{StatusShipped, "pending", false},
		{StatusDelivered, "processing", false},
		{StatusCancelled, "processing", false},
		{StatusPending, "misplaced", false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			repo := newFakeRepo()
			pid := repo.addProduct("tee", "10.00", 5)
			svc := NewService(repo, 0)

			o, err := svc.CreateOrder(context.Background(), uuid.NewString(),
				orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 1}))
			require.NoError(t, err)
			repo.orders[o.ID].Status = tc.from

			updated, err := svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{Status: tc.to})
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, OrderStatus(tc.to), updated.Status)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tc.from, repo.orders[o.ID].Status)
			}
		})
	}
}

func TestUpdateStatusToCancelledRestocks(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	userID := uuid.NewString()
	o, err := svc.CreateOrder(context.Background(), userID,
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, 2, repo.stockOf(pid))

	updated, err := svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, 5, repo.stockOf(pid), "cancelling via status update restores stock")

	// Unlike deletion, the cancelled order stays on record.
	got, err := svc.GetOrder(context.Background(), o.ID.String(), userID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestUpdateStatusConcurrentTransitions(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	o, err := svc.CreateOrder(context.Background(), uuid.NewString(),
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 3}))
	require.NoError(t, err)

	// Two updates race from pending. Both targets are valid from pending
	// but not from each other, so whichever lands second must fail.
	targets := []string{"processing", "cancelled"}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = svc.UpdateStatus(context.Background(), o.ID.String(), UpdateStatusRequest{Status: target})
		}(i, target)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	require.Equal(t, 1, successes, "exactly one of two competing updates must win")

	final := repo.orders[o.ID].Status
	if final == StatusCancelled {
		assert.Equal(t, 5, repo.stockOf(pid), "stock restored exactly once")
	} else {
		assert.Equal(t, StatusProcessing, final)
		assert.Equal(t, 2, repo.stockOf(pid), "losing cancellation must not restock")
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	svc := NewService(newFakeRepo(), 0)
	_, err := svc.UpdateStatus(context.Background(), uuid.NewString(), UpdateStatusRequest{Status: "processing"})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelOrderRestocksAndDeletes(t *testing.T) {
	repo := newFakeRepo()
	pid := repo.addProduct("tee", "10.00", 5)
	svc := NewService(repo, 0)

	userID := uuid.NewString()
	o, err := svc.CreateOrder(context.Background(), userID,
		orderRequest(RequestedItem{ProductID: pid.String(), Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, 2, repo.stockOf(pid))

	require.NoError(t, svc.CancelOrder(context.Background(), o.ID.String()))
	assert.Equal(t, 5, repo.stockOf(pid), "cancellation restores stock")

	_, err = svc.GetOrder(context.Background(), o.ID.String(), userID, true)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	err = svc.CancelOrder(context.Background(), o.ID.String())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
