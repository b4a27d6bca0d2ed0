package cart

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tanmaydg/bazario/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("cart item not found")
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// AddItem puts a product in the user's cart. An existing entry has its
// quantity bumped by quantity, or replaced outright when newQty is set.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID string, quantity, newQty int) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
	`, productID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrProductNotFound
	}

	if newQty > 0 {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity, added_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = $3
		`, userID, productID, newQty)
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + $3
	`, userID, productID, quantity)
	return err
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// List returns the cart joined with current product data. Prices here
// are live; they get snapshotted only at order placement.
func (r *CartRepository) List(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.vendor_id, p.title, p.description, p.price, p.stock, p.category,
		       p.replacement_days, p.free_delivery, p.pay_on_delivery, p.warranty,
		       p.verification_status, p.is_active, p.created_at, p.updated_at,
		       ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		p := &line.Product
		err := rows.Scan(
			&p.ID, &p.VendorID, &p.Title, &p.Description, &p.Price, &p.Stock, &p.Category,
			&p.ReplacementDays, &p.FreeDelivery, &p.PayOnDelivery, &p.Warranty,
			&p.VerificationStatus, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
			&line.Quantity,
		)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}
