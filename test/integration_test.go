//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tanmaydg/bazario/internal/domain"
	"github.com/tanmaydg/bazario/internal/messaging"
	"github.com/tanmaydg/bazario/internal/orders"
	"github.com/tanmaydg/bazario/internal/outbox"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedProduct(t *testing.T, db *sql.DB, productID string, stock int, price int64) {
	t.Helper()

	if _, err := db.Exec(`
		INSERT INTO users (id, name, email, role, verification_status)
		VALUES ('vendor-1', 'Test Vendor', 'vendor@example.com', 'vendor', 'approved')
		ON CONFLICT (id) DO NOTHING
	`); err != nil {
		t.Fatalf("failed to seed vendor: %v", err)
	}

	if _, err := db.Exec(`
		INSERT INTO products (id, vendor_id, title, description, price, stock, category,
			replacement_days, verification_status, is_active)
		VALUES ($1, 'vendor-1', 'Widget', 'A fine widget', $2, $3, 'tools', 7, 'approved', TRUE)
	`, productID, price, stock); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
}

func seedCartItem(t *testing.T, db *sql.DB, userID, productID string, qty int) {
	t.Helper()
	if _, err := db.Exec(`
		INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
	`, userID, productID, qty); err != nil {
		t.Fatalf("failed to seed cart item: %v", err)
	}
}

func productStock(t *testing.T, db *sql.DB, productID string) int {
	t.Helper()
	var stock int
	if err := db.QueryRow(`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("failed to read stock: %v", err)
	}
	return stock
}

func outboxEventTypes(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT event_type FROM outbox ORDER BY id`)
	if err != nil {
		t.Fatalf("failed to read outbox: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var types []string
	for rows.Next() {
		var et string
		if err := rows.Scan(&et); err != nil {
			t.Fatalf("failed to scan outbox row: %v", err)
		}
		types = append(types, et)
	}
	return types
}

func placeInput(productID string) orders.PlaceOrderInput {
	return orders.PlaceOrderInput{
		BuyerID:   "buyer-1",
		ProductID: productID,
		Quantity:  2,
		Address: domain.Address{
			Name: "A", Phone: "9999999999", Address: "12 Lane", City: "Pune", Pincode: "411001",
		},
		Amount:         2075,
		DeliveryCharge: 50,
		ServiceCharge:  25,
		PaymentMethod:  domain.PaymentMethodCOD,
	}
}

func TestOrderLifecycleFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedProduct(t, db, "prod-1", 5, 1000)
	seedCartItem(t, db, "buyer-1", "prod-1", 2)

	repo := orders.NewOrderRepository(db, outbox.NewRepository(db))

	order, err := repo.PlaceOrder(ctx, placeInput("prod-1"))
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	if order.OrderStatus != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.OrderStatus)
	}
	if order.ProductsTotal != 2000 {
		t.Fatalf("expected products total 2000, got %d", order.ProductsTotal)
	}
	if got := productStock(t, db, "prod-1"); got != 3 {
		t.Fatalf("expected stock 3 after placement, got %d", got)
	}

	var cartCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cart_items WHERE user_id = 'buyer-1'`).Scan(&cartCount); err != nil {
		t.Fatalf("failed to count cart items: %v", err)
	}
	if cartCount != 0 {
		t.Fatalf("expected cart cleared, got %d items", cartCount)
	}

	// Placing again without a cart entry must fail.
	if _, err := repo.PlaceOrder(ctx, placeInput("prod-1")); !errors.Is(err, orders.ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}

	if _, err := repo.Transition(ctx, order.ID, domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("failed to confirm: %v", err)
	}
	if _, err := repo.Transition(ctx, order.ID, domain.OrderStatusShipped); err != nil {
		t.Fatalf("failed to ship: %v", err)
	}
	// Confirming a shipped order must be refused.
	if _, err := repo.Transition(ctx, order.ID, domain.OrderStatusConfirmed); !errors.Is(err, orders.ErrTransitionBlocked) {
		t.Fatalf("expected ErrTransitionBlocked, got %v", err)
	}

	expiry := time.Now().UTC().Add(orders.OtpTTL)
	issued, err := repo.IssueOtp(ctx, order.ID, "123456", expiry)
	if err != nil {
		t.Fatalf("failed to issue otp: %v", err)
	}
	if issued.OrderStatus != domain.OrderStatusShipped {
		t.Fatalf("issuing a code must not change status, got %s", issued.OrderStatus)
	}

	// A wrong guess burns an attempt but leaves the order shipped.
	if _, err := repo.VerifyDelivery(ctx, order.ID, "000000", time.Now().UTC()); !errors.Is(err, orders.ErrInvalidOtp) {
		t.Fatalf("expected ErrInvalidOtp, got %v", err)
	}

	delivered, err := repo.VerifyDelivery(ctx, order.ID, "123456", time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to verify delivery: %v", err)
	}
	if delivered.OrderStatus != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", delivered.OrderStatus)
	}
	if !delivered.IsPaid {
		t.Fatal("expected cod order paid on delivery")
	}
	if delivered.DeliveryDate == nil {
		t.Fatal("expected delivery date set")
	}

	// The code is single-use.
	if _, err := repo.VerifyDelivery(ctx, order.ID, "123456", time.Now().UTC()); !errors.Is(err, orders.ErrInvalidOtp) {
		t.Fatalf("expected ErrInvalidOtp on reuse, got %v", err)
	}

	returned, err := repo.Return(ctx, order.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to return: %v", err)
	}
	if returned.ReturnedAmount != returned.ProductsTotal {
		t.Fatalf("expected refund of products total %d, got %d", returned.ProductsTotal, returned.ReturnedAmount)
	}
	if _, err := repo.Return(ctx, order.ID, time.Now().UTC()); !errors.Is(err, orders.ErrAlreadyReturned) {
		t.Fatalf("expected ErrAlreadyReturned, got %v", err)
	}

	// Returns do not restock; the goods come back through inspection.
	if got := productStock(t, db, "prod-1"); got != 3 {
		t.Fatalf("expected stock unchanged by return, got %d", got)
	}

	types := outboxEventTypes(t, db)
	expected := []string{"order.placed", "order.status_updated", "order.status_updated",
		"order.otp_issued", "order.delivered", "order.returned"}
	if len(types) != len(expected) {
		t.Fatalf("expected %d outbox rows, got %v", len(expected), types)
	}
	for i := range expected {
		if types[i] != expected[i] {
			t.Fatalf("outbox row %d: expected %s, got %s", i, expected[i], types[i])
		}
	}
}

func TestCancelRestoresStock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedProduct(t, db, "prod-1", 5, 1000)
	seedCartItem(t, db, "buyer-1", "prod-1", 2)

	repo := orders.NewOrderRepository(db, outbox.NewRepository(db))

	order, err := repo.PlaceOrder(ctx, placeInput("prod-1"))
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	if got := productStock(t, db, "prod-1"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}

	cancelled, err := repo.Cancel(ctx, order.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}
	if cancelled.OrderStatus != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.OrderStatus)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("expected cancelled_at set")
	}
	if got := productStock(t, db, "prod-1"); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}

	if _, err := repo.Cancel(ctx, order.ID, time.Now().UTC()); !errors.Is(err, orders.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
}

func TestInsufficientStockRejectsPlacement(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedProduct(t, db, "prod-1", 1, 1000)
	seedCartItem(t, db, "buyer-1", "prod-1", 2)

	repo := orders.NewOrderRepository(db, outbox.NewRepository(db))

	if _, err := repo.PlaceOrder(ctx, placeInput("prod-1")); !errors.Is(err, orders.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := productStock(t, db, "prod-1"); got != 1 {
		t.Fatalf("stock must be untouched on failure, got %d", got)
	}
	if types := outboxEventTypes(t, db); len(types) != 0 {
		t.Fatalf("expected empty outbox, got %v", types)
	}
}

func TestExpiredOtpRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedProduct(t, db, "prod-1", 5, 1000)
	seedCartItem(t, db, "buyer-1", "prod-1", 2)

	repo := orders.NewOrderRepository(db, outbox.NewRepository(db))

	order, err := repo.PlaceOrder(ctx, placeInput("prod-1"))
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	if _, err := repo.Transition(ctx, order.ID, domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("failed to confirm: %v", err)
	}
	if _, err := repo.IssueOtp(ctx, order.ID, "123456", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("failed to issue otp: %v", err)
	}

	if _, err := repo.VerifyDelivery(ctx, order.ID, "123456", time.Now().UTC()); !errors.Is(err, orders.ErrInvalidOtp) {
		t.Fatalf("expected ErrInvalidOtp for expired code, got %v", err)
	}
}

func TestOtpAttemptLockout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedProduct(t, db, "prod-1", 5, 1000)
	seedCartItem(t, db, "buyer-1", "prod-1", 2)

	repo := orders.NewOrderRepository(db, outbox.NewRepository(db))

	order, err := repo.PlaceOrder(ctx, placeInput("prod-1"))
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	if _, err := repo.Transition(ctx, order.ID, domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("failed to confirm: %v", err)
	}
	if _, err := repo.Transition(ctx, order.ID, domain.OrderStatusShipped); err != nil {
		t.Fatalf("failed to ship: %v", err)
	}
	if _, err := repo.IssueOtp(ctx, order.ID, "123456", time.Now().UTC().Add(10*time.Minute)); err != nil {
		t.Fatalf("failed to issue otp: %v", err)
	}

	for i := 0; i < orders.MaxOtpAttempts; i++ {
		if _, err := repo.VerifyDelivery(ctx, order.ID, "000000", time.Now().UTC()); !errors.Is(err, orders.ErrInvalidOtp) {
			t.Fatalf("guess %d: expected ErrInvalidOtp, got %v", i+1, err)
		}
	}

	// The code itself is now spent; even the right one is refused.
	if _, err := repo.VerifyDelivery(ctx, order.ID, "123456", time.Now().UTC()); !errors.Is(err, orders.ErrInvalidOtp) {
		t.Fatalf("expected ErrInvalidOtp after exhausting attempts, got %v", err)
	}

	got, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to get order: %v", err)
	}
	if got.OrderStatus != domain.OrderStatusShipped {
		t.Errorf("expected order to stay shipped, got %s", got.OrderStatus)
	}
	if got.IsPaid {
		t.Error("expected order to remain unpaid")
	}
}

func TestOutboxDispatchToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedProduct(t, db, "prod-1", 5, 1000)
	seedCartItem(t, db, "buyer-1", "prod-1", 2)

	outboxRepo := outbox.NewRepository(db)
	repo := orders.NewOrderRepository(db, outboxRepo)

	order, err := repo.PlaceOrder(ctx, placeInput("prod-1"))
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}

	const topic = "order.events"
	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	dispatcher := outbox.NewDispatcher(outboxRepo, producer, testLogger())
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go dispatcher.Run(dispatchCtx)

	consumer := messaging.NewConsumer(brokers, topic, "integration-test")
	defer func() { _ = consumer.Close() }()

	received := make(chan domain.OrderEvent, 1)
	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()
	go func() {
		_ = consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
			var evt domain.OrderEvent
			if err := json.Unmarshal(payload, &evt); err != nil {
				return err
			}
			select {
			case received <- evt:
			default:
			}
			stopConsume()
			return nil
		})
	}()

	select {
	case evt := <-received:
		if evt.Type != domain.EventOrderPlaced {
			t.Fatalf("expected order.placed, got %s", evt.Type)
		}
		if evt.Order.ID != order.ID {
			t.Fatalf("expected order %s, got %s", order.ID, evt.Order.ID)
		}
	case <-time.After(90 * time.Second):
		t.Fatal("no event arrived on the topic")
	}
}
