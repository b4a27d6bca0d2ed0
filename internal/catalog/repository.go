package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tanmaydg/bazario/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVendorNotFound  = errors.New("vendor not found")
	ErrNotOwner        = errors.New("product does not belong to this vendor")
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create stores a new listing. Every new product starts unverified and
// inactive; it reaches buyers only after admin approval and the vendor
// switching it on.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.VerificationStatus = domain.VerificationPending
	p.RequestedAt = &now
	p.IsActive = false
	p.CreatedAt = now
	p.UpdatedAt = now

	images, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, vendor_id, title, description, price, stock, category,
			images, replacement_days, free_delivery, pay_on_delivery, warranty, detail_points,
			verification_status, requested_at, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, FALSE, $16, $16)
	`, p.ID, p.VendorID, p.Title, p.Description, p.Price, p.Stock, p.Category,
		images, p.ReplacementDays, p.FreeDelivery, p.PayOnDelivery, p.Warranty, pq.Array(p.DetailPoints),
		p.VerificationStatus, p.RequestedAt, now)
	return err
}

// Update rewrites the vendor-editable fields and sends the listing back
// through approval.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	images, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET title = $3, description = $4, price = $5, stock = $6, category = $7,
		    images = $8, replacement_days = $9, free_delivery = $10, pay_on_delivery = $11,
		    warranty = $12, detail_points = $13,
		    verification_status = 'pending', requested_at = NOW(), approved_at = NULL,
		    rejected_reason = '', is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND vendor_id = $2
	`, p.ID, p.VendorID, p.Title, p.Description, p.Price, p.Stock, p.Category,
		images, p.ReplacementDays, p.FreeDelivery, p.PayOnDelivery, p.Warranty, pq.Array(p.DetailPoints))
	if err != nil {
		return err
	}
	return r.checkOwned(ctx, result, p.ID)
}

func (r *ProductRepository) SetActive(ctx context.Context, productID, vendorID string, active bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET is_active = $3, updated_at = NOW()
		WHERE id = $1 AND vendor_id = $2 AND verification_status = 'approved'
	`, productID, vendorID, active)
	if err != nil {
		return err
	}
	return r.checkOwned(ctx, result, productID)
}

func (r *ProductRepository) Approve(ctx context.Context, productID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET verification_status = 'approved', approved_at = NOW(), rejected_reason = '',
		    is_active = TRUE, updated_at = NOW()
		WHERE id = $1
	`, productID)
	if err != nil {
		return err
	}
	return r.checkFound(result)
}

func (r *ProductRepository) Reject(ctx context.Context, productID, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET verification_status = 'rejected', rejected_reason = $2,
		    is_active = FALSE, updated_at = NOW()
		WHERE id = $1
	`, productID, reason)
	if err != nil {
		return err
	}
	return r.checkFound(result)
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}
	err := r.scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1
	`, id), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, rating, comment, created_at
		FROM product_reviews
		WHERE product_id = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var rev domain.Review
		if err := rows.Scan(&rev.ID, &rev.UserID, &rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, err
		}
		p.Reviews = append(p.Reviews, rev)
	}

	return p, rows.Err()
}

// ListPublic returns what buyers see: approved listings the vendor has
// switched on.
func (r *ProductRepository) ListPublic(ctx context.Context) ([]domain.Product, error) {
	return r.listWhere(ctx, `verification_status = 'approved' AND is_active`, nil)
}

func (r *ProductRepository) ListByVendor(ctx context.Context, vendorID string) ([]domain.Product, error) {
	return r.listWhere(ctx, `vendor_id = $1`, []any{vendorID})
}

func (r *ProductRepository) ListPendingApproval(ctx context.Context) ([]domain.Product, error) {
	return r.listWhere(ctx, `verification_status = 'pending'`, nil)
}

// Search matches buyers' queries against title, category and
// description, weighted in that order.
func (r *ProductRepository) Search(ctx context.Context, query string) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE verification_status = 'approved' AND is_active
		  AND (title ILIKE '%' || $1 || '%'
		   OR category ILIKE '%' || $1 || '%'
		   OR description ILIKE '%' || $1 || '%')
		ORDER BY
		  CASE
		    WHEN title ILIKE '%' || $1 || '%' THEN 0
		    WHEN category ILIKE '%' || $1 || '%' THEN 1
		    ELSE 2
		  END,
		  created_at DESC
	`, query)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *ProductRepository) AddReview(ctx context.Context, productID, userID string, rating int, comment string) (*domain.Review, error) {
	review := &domain.Review{
		ID:        uuid.New().String(),
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO product_reviews (id, product_id, user_id, rating, comment, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM products WHERE id = $2)
	`, review.ID, productID, userID, rating, comment, review.CreatedAt)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrProductNotFound
	}

	return review, nil
}

// Vendor approval mirrors product approval on the users table.

func (r *ProductRepository) ApproveVendor(ctx context.Context, vendorID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET verification_status = 'approved', approved_at = NOW(), rejected_reason = '', updated_at = NOW()
		WHERE id = $1 AND role = 'vendor'
	`, vendorID)
	if err != nil {
		return err
	}
	return r.checkVendorFound(result)
}

func (r *ProductRepository) RejectVendor(ctx context.Context, vendorID, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET verification_status = 'rejected', rejected_reason = $2, updated_at = NOW()
		WHERE id = $1 AND role = 'vendor'
	`, vendorID, reason)
	if err != nil {
		return err
	}
	return r.checkVendorFound(result)
}

func (r *ProductRepository) ListVendors(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), role,
		       COALESCE(shop_name, ''), COALESCE(shop_address, ''), COALESCE(gst_number, ''),
		       verification_status, requested_at, approved_at, COALESCE(rejected_reason, ''),
		       created_at, updated_at
		FROM users
		WHERE role = 'vendor'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var vendors []domain.User
	for rows.Next() {
		var u domain.User
		var requestedAt, approvedAt sql.NullTime
		err := rows.Scan(
			&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role,
			&u.ShopName, &u.ShopAddress, &u.GSTNumber,
			&u.VerificationStatus, &requestedAt, &approvedAt, &u.RejectedReason,
			&u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if requestedAt.Valid {
			u.RequestedAt = &requestedAt.Time
		}
		if approvedAt.Valid {
			u.ApprovedAt = &approvedAt.Time
		}
		vendors = append(vendors, u)
	}

	return vendors, rows.Err()
}

const productColumns = `
	id, vendor_id, title, description, price, stock, category,
	images, replacement_days, free_delivery, pay_on_delivery, warranty, detail_points,
	verification_status, requested_at, approved_at, COALESCE(rejected_reason, ''),
	is_active, created_at, updated_at
`

func (r *ProductRepository) listWhere(ctx context.Context, where string, args []any) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE `+where+`
		ORDER BY created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *ProductRepository) collect(rows *sql.Rows) ([]domain.Product, error) {
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := r.scanProduct(rows, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *ProductRepository) scanProduct(row scanner, p *domain.Product) error {
	var (
		images       []byte
		requestedAt  sql.NullTime
		approvedAt   sql.NullTime
		detailPoints pq.StringArray
	)
	err := row.Scan(
		&p.ID, &p.VendorID, &p.Title, &p.Description, &p.Price, &p.Stock, &p.Category,
		&images, &p.ReplacementDays, &p.FreeDelivery, &p.PayOnDelivery, &p.Warranty, &detailPoints,
		&p.VerificationStatus, &requestedAt, &approvedAt, &p.RejectedReason,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return err
		}
	}
	p.DetailPoints = detailPoints
	if requestedAt.Valid {
		p.RequestedAt = &requestedAt.Time
	}
	if approvedAt.Valid {
		p.ApprovedAt = &approvedAt.Time
	}
	return nil
}

func (r *ProductRepository) checkOwned(ctx context.Context, result sql.Result, productID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrProductNotFound
	}
	return ErrNotOwner
}

func (r *ProductRepository) checkFound(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) checkVendorFound(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrVendorNotFound
	}
	return nil
}
