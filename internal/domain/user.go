package domain

import "time"

type Role string

const (
	RoleUser   Role = "user"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  Role   `json:"role"`

	// Vendor profile, empty for plain users.
	ShopName    string `json:"shop_name,omitempty"`
	ShopAddress string `json:"shop_address,omitempty"`
	GSTNumber   string `json:"gst_number,omitempty"`

	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	RequestedAt        *time.Time         `json:"requested_at,omitempty"`
	ApprovedAt         *time.Time         `json:"approved_at,omitempty"`
	RejectedReason     string             `json:"rejected_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CartItem struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// CartLine is a cart item joined with its product, as served to clients.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}
