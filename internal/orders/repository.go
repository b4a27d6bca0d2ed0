package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tanmaydg/bazario/internal/domain"
	"github.com/tanmaydg/bazario/internal/outbox"
)

type OrderRepository struct {
	db     *sql.DB
	outbox *outbox.Repository
}

func NewOrderRepository(db *sql.DB, outboxRepo *outbox.Repository) *OrderRepository {
	return &OrderRepository{db: db, outbox: outboxRepo}
}

type PlaceOrderInput struct {
	BuyerID        string
	ProductID      string
	Quantity       int
	Address        domain.Address
	Amount         int64
	DeliveryCharge int64
	ServiceCharge  int64
	PaymentMethod  domain.PaymentMethod
}

// PlaceOrder converts a cart entry into a durable order. Every check and
// write happens inside one transaction: the stock decrement is a
// conditional update so two buyers cannot take the last unit, and the
// cart entry, order rows and outbox event commit together or not at all.
func (r *OrderRepository) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		title    string
		price    int64
		vendorID string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT title, price, vendor_id
		FROM products
		WHERE id = $1
	`, in.ProductID).Scan(&title, &price, &vendorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	// Placement is only permitted from an existing cart entry.
	var cartQty int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM cart_items
		WHERE user_id = $1 AND product_id = $2
	`, in.BuyerID, in.ProductID).Scan(&cartQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}

	productsTotal := price * int64(in.Quantity)
	if in.Amount != productsTotal+in.DeliveryCharge+in.ServiceCharge {
		return nil, ErrAmountMismatch
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, in.ProductID, in.Quantity)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w for %s", ErrInsufficientStock, title)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:       uuid.New().String(),
		BuyerID:  in.BuyerID,
		VendorID: vendorID,
		Items: []domain.OrderItem{{
			ProductID: in.ProductID,
			Title:     title,
			Quantity:  in.Quantity,
			UnitPrice: price,
		}},
		ProductsTotal:   productsTotal,
		DeliveryCharge:  in.DeliveryCharge,
		ServiceCharge:   in.ServiceCharge,
		TotalAmount:     in.Amount,
		PaymentMethod:   in.PaymentMethod,
		OrderStatus:     domain.OrderStatusPending,
		ShippingAddress: in.Address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, buyer_id, vendor_id,
			products_total, delivery_charge, service_charge, total_amount, returned_amount,
			payment_method, is_paid, order_status,
			addr_name, addr_phone, addr_line, addr_city, addr_pincode,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, FALSE, $9, $10, $11, $12, $13, $14, $15, $15)
	`, order.ID, order.BuyerID, order.VendorID,
		order.ProductsTotal, order.DeliveryCharge, order.ServiceCharge, order.TotalAmount,
		order.PaymentMethod, order.OrderStatus,
		in.Address.Name, in.Address.Phone, in.Address.Address, in.Address.City, in.Address.Pincode,
		now)
	if err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, title, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), order.ID, item.ProductID, item.Title, item.Quantity, item.UnitPrice)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2
	`, in.BuyerID, in.ProductID)
	if err != nil {
		return nil, err
	}

	event := domain.OrderEvent{
		Type:       domain.EventOrderPlaced,
		Order:      *order,
		VendorID:   order.VendorID,
		OccurredAt: now,
	}
	if err := r.outbox.Append(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// Transition advances an order along the vendor happy path. The update
// is conditioned on the expected prior status; a concurrent cancel or a
// repeated request leaves zero rows affected and is reported as a state
// conflict. The delivery OTP is cleared on every advance.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	prior, ok := expectedPrior(to)
	if !ok {
		return nil, ErrInvalidStatus
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $2, delivery_otp = '', otp_expires_at = NULL, otp_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND order_status = $3
	`, orderID, to, prior)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		if exists, err := r.exists(ctx, tx, orderID); err != nil {
			return nil, err
		} else if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrTransitionBlocked
	}

	order, err := r.getByIDTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	event := domain.OrderEvent{
		Type:       domain.EventStatusUpdated,
		Order:      *order,
		UserID:     order.BuyerID,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.outbox.Append(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// IssueOtp stores a fresh delivery code without touching the order
// status; only a successful verification moves the order to delivered.
// The code travels to the buyer via the otp_issued event.
func (r *OrderRepository) IssueOtp(ctx context.Context, orderID, otp string, expiresAt time.Time) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET delivery_otp = $2, otp_expires_at = $3, otp_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND order_status IN ('pending', 'confirmed', 'shipped')
	`, orderID, otp, expiresAt)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		if exists, err := r.exists(ctx, tx, orderID); err != nil {
			return nil, err
		} else if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrTransitionBlocked
	}

	order, err := r.getByIDTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	event := domain.OrderEvent{
		Type:       domain.EventOtpIssued,
		Order:      *order,
		UserID:     order.BuyerID,
		Otp:        otp,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.outbox.Append(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// VerifyDelivery finalizes an order when the supplied code matches the
// stored one inside its validity window. Match, expiry and the attempt
// budget are all checked by the conditional update itself; a miss burns
// one attempt.
func (r *OrderRepository) VerifyDelivery(ctx context.Context, orderID, otp string, now time.Time) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET order_status = 'delivered', is_paid = TRUE, delivery_date = $3,
		    delivery_otp = '', otp_expires_at = NULL, otp_attempts = 0, updated_at = NOW()
		WHERE id = $1
		  AND delivery_otp <> ''
		  AND delivery_otp = $2
		  AND otp_expires_at > $3
		  AND otp_attempts < $4
	`, orderID, otp, now, MaxOtpAttempts)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		if exists, err := r.exists(ctx, tx, orderID); err != nil {
			return nil, err
		} else if !exists {
			return nil, ErrOrderNotFound
		}
		// Burn an attempt against whatever code is outstanding.
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET otp_attempts = otp_attempts + 1, updated_at = NOW()
			WHERE id = $1 AND delivery_otp <> ''
		`, orderID)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, ErrInvalidOtp
	}

	order, err := r.getByIDTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	event := domain.OrderEvent{
		Type:       domain.EventOrderDelivered,
		Order:      *order,
		UserID:     order.BuyerID,
		OccurredAt: now,
	}
	if err := r.outbox.Append(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel is buyer-initiated and only valid before delivery. Stock goes
// back to the shelf because the goods never left the warehouse.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string, now time.Time) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET order_status = 'cancelled', cancelled_at = $2,
		    delivery_otp = '', otp_expires_at = NULL, otp_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND order_status = ANY($3)
	`, orderID, now, pq.Array(cancellableStatuses))
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		var status domain.OrderStatus
		err := tx.QueryRowContext(ctx, `SELECT order_status FROM orders WHERE id = $1`, orderID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		if status == domain.OrderStatusCancelled {
			return nil, ErrAlreadyCancelled
		}
		return nil, ErrNotCancellable
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products p
		SET stock = p.stock + oi.quantity, updated_at = NOW()
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.product_id = p.id
	`, orderID)
	if err != nil {
		return nil, err
	}

	order, err := r.getByIDTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	event := domain.OrderEvent{
		Type:       domain.EventOrderCancelled,
		Order:      *order,
		VendorID:   order.VendorID,
		OccurredAt: now,
	}
	if err := r.outbox.Append(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// Return refunds the products total for a delivered order. Delivery and
// service charges are not refunded. Stock is not restored; returned
// goods need inspection before they can be resold.
func (r *OrderRepository) Return(ctx context.Context, orderID string, now time.Time) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET order_status = 'returned', returned_amount = products_total, updated_at = NOW()
		WHERE id = $1 AND order_status = 'delivered'
	`, orderID)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		var status domain.OrderStatus
		err := tx.QueryRowContext(ctx, `SELECT order_status FROM orders WHERE id = $1`, orderID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		switch status {
		case domain.OrderStatusCancelled:
			return nil, ErrAlreadyCancelled
		case domain.OrderStatusReturned:
			return nil, ErrAlreadyReturned
		default:
			return nil, ErrNotDelivered
		}
	}

	order, err := r.getByIDTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	event := domain.OrderEvent{
		Type:       domain.EventOrderReturned,
		Order:      *order,
		VendorID:   order.VendorID,
		OccurredAt: now,
	}
	if err := r.outbox.Append(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkPaid reconciles a gateway payment confirmation with the order.
// It is idempotent; duplicate webhook deliveries affect zero rows and
// emit nothing.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET is_paid = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT is_paid
	`, orderID)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	order, err := r.getByIDTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if rowsAffected > 0 {
		event := domain.OrderEvent{
			Type:       domain.EventOrderPaid,
			Order:      *order,
			UserID:     order.BuyerID,
			OccurredAt: time.Now().UTC(),
		}
		if err := r.outbox.Append(ctx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return r.list(ctx, `buyer_id`, buyerID)
}

func (r *OrderRepository) ListByVendor(ctx context.Context, vendorID string) ([]domain.Order, error) {
	return r.list(ctx, `vendor_id`, vendorID)
}

// ReplacementDays reads the configured return window for a product.
func (r *OrderRepository) ReplacementDays(ctx context.Context, productID string) (int, error) {
	var days int
	err := r.db.QueryRowContext(ctx, `
		SELECT replacement_days FROM products WHERE id = $1
	`, productID).Scan(&days)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}
	return days, nil
}

func (r *OrderRepository) exists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const orderColumns = `
	id, buyer_id, vendor_id,
	products_total, delivery_charge, service_charge, total_amount, returned_amount,
	payment_method, is_paid, order_status,
	delivery_otp, otp_expires_at, otp_attempts, delivery_date, cancelled_at,
	addr_name, addr_phone, addr_line, addr_city, addr_pincode,
	created_at, updated_at
`

func (r *OrderRepository) getByIDTx(ctx context.Context, tx *sql.Tx, id string) (*domain.Order, error) {
	return r.getByID(ctx, tx, id)
}

func (r *OrderRepository) getByID(ctx context.Context, q queryer, id string) (*domain.Order, error) {
	order := &domain.Order{}
	err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, title, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Title, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}

func (r *OrderRepository) list(ctx context.Context, column, id string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.product_id, oi.title, oi.quantity, oi.unit_price
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.`+column+` = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Title, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		if order, ok := orderMap[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, oid := range orderIDs {
		orders = append(orders, *orderMap[oid])
	}
	return orders, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner, order *domain.Order) error {
	var (
		otpExpiresAt sql.NullTime
		deliveryDate sql.NullTime
		cancelledAt  sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.BuyerID, &order.VendorID,
		&order.ProductsTotal, &order.DeliveryCharge, &order.ServiceCharge, &order.TotalAmount, &order.ReturnedAmount,
		&order.PaymentMethod, &order.IsPaid, &order.OrderStatus,
		&order.DeliveryOtp, &otpExpiresAt, &order.OtpAttempts, &deliveryDate, &cancelledAt,
		&order.ShippingAddress.Name, &order.ShippingAddress.Phone, &order.ShippingAddress.Address,
		&order.ShippingAddress.City, &order.ShippingAddress.Pincode,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if otpExpiresAt.Valid {
		order.OtpExpiresAt = &otpExpiresAt.Time
	}
	if deliveryDate.Valid {
		order.DeliveryDate = &deliveryDate.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = &cancelledAt.Time
	}
	return nil
}
