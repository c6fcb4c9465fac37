package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	cartdomain "github.com/vendora/marketplace/internal/cart/domain"
	cartrepo "github.com/vendora/marketplace/internal/cart/repository"
	"github.com/vendora/marketplace/internal/order/domain"
	"github.com/vendora/marketplace/internal/storage"
)

func setupTestDB(t *testing.T) (*Repository, *cartrepo.Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &storage.Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../../../migrations",
	}

	db, err := storage.Open(creds)
	require.NoError(t, err)

	require.NoError(t, storage.RunMigrations(db, creds))

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return NewRepository(db), cartrepo.NewRepository(db), cleanup
}

func seedCart(t *testing.T, carts *cartrepo.Repository, identifier string) *cartdomain.Cart {
	ctx := context.Background()
	delivery := cartdomain.DeliveryWindow{From: time.Now(), To: time.Now().AddDate(0, 0, 5)}

	cart, err := carts.GetOrCreate(ctx, identifier, true, delivery)
	require.NoError(t, err)

	require.NoError(t, carts.UpsertItem(ctx, cart.ID, cartdomain.CartItem{
		ProductID: 1, VendorID: 1, ProductName: "Desk Lamp", Quantity: 2,
		ListPrice: decimal.RequireFromString("45.50"),
	}))

	cart, err = carts.Get(ctx, identifier, true)
	require.NoError(t, err)
	return cart
}

func newTestOrder(cart *cartdomain.Cart) *domain.Order {
	items := make([]domain.OrderItem, len(cart.Items))
	for i, ci := range cart.Items {
		items[i] = domain.OrderItem{
			ProductID: ci.ProductID, VendorID: ci.VendorID, ProductName: ci.ProductName,
			Quantity: ci.Quantity, UnitPrice: ci.EffectivePrice(),
		}
	}
	return &domain.Order{
		ID:            uuid.New(),
		UserID:        cart.UserID,
		Items:         items,
		Subtotal:      decimal.RequireFromString("91.00"),
		Total:         decimal.RequireFromString("91.00"),
		Currency:      "USD",
		OrderStatus:   domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
	}
}

func TestCreateFromCart_SnapshotsAndDestroysCart(t *testing.T) {
	orders, carts, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cart := seedCart(t, carts, "user-1")
	order := newTestOrder(cart)

	require.NoError(t, orders.CreateFromCart(ctx, order, cart.ID))

	fetched, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, "Desk Lamp", fetched.Items[0].ProductName)
	assert.True(t, fetched.Items[0].UnitPrice.Equal(decimal.RequireFromString("45.50")))
	assert.Equal(t, domain.OrderStatusPending, fetched.OrderStatus)

	// the source cart is gone
	_, err = carts.Get(ctx, "user-1", true)
	assert.ErrorIs(t, err, cartrepo.ErrCartNotFound)
}

func TestUpdateOrderStatus_CompareAndSwap(t *testing.T) {
	orders, carts, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cart := seedCart(t, carts, "user-1")
	order := newTestOrder(cart)
	require.NoError(t, orders.CreateFromCart(ctx, order, cart.ID))

	require.NoError(t, orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusConfirmed))

	// the same swap again loses: the row is no longer pending
	err := orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, ErrStatusConflict)

	// skipping a state is rejected before touching the database
	err = orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusDelivered)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestCancel_DeliveredOrderIsImmutable(t *testing.T) {
	orders, carts, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cart := seedCart(t, carts, "user-1")
	order := newTestOrder(cart)
	require.NoError(t, orders.CreateFromCart(ctx, order, cart.ID))

	for _, step := range []struct{ from, to domain.OrderStatus }{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed},
		{domain.OrderStatusConfirmed, domain.OrderStatusProcessing},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered},
	} {
		require.NoError(t, orders.UpdateOrderStatus(ctx, order.ID, step.from, step.to))
	}

	err := orders.Cancel(ctx, order.ID, "too late")
	assert.ErrorIs(t, err, ErrStatusConflict)

	fetched, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, fetched.OrderStatus)
	assert.Nil(t, fetched.CancellationReason)
}

func TestCancel_RecordsReasonAndTime(t *testing.T) {
	orders, carts, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cart := seedCart(t, carts, "user-1")
	order := newTestOrder(cart)
	require.NoError(t, orders.CreateFromCart(ctx, order, cart.ID))

	require.NoError(t, orders.Cancel(ctx, order.ID, "customer request"))

	fetched, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, fetched.OrderStatus)
	require.NotNil(t, fetched.CancellationReason)
	assert.Equal(t, "customer request", *fetched.CancellationReason)
	assert.NotNil(t, fetched.CancelledAt)
}

func TestUpdatePaymentStatus_TerminalStatesNeverFlip(t *testing.T) {
	orders, carts, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	cart := seedCart(t, carts, "user-1")
	order := newTestOrder(cart)
	require.NoError(t, orders.CreateFromCart(ctx, order, cart.ID))

	require.NoError(t, orders.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusPending, domain.PaymentStatusPaid))

	err := orders.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusPaid, domain.PaymentStatusFailed)
	assert.ErrorIs(t, err, ErrStatusConflict)

	fetched, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, fetched.PaymentStatus)
}

func TestUpdateOrderStatus_MissingOrder(t *testing.T) {
	orders, _, cleanup := setupTestDB(t)
	defer cleanup()

	err := orders.UpdateOrderStatus(context.Background(), uuid.New(), domain.OrderStatusPending, domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
