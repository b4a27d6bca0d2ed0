package domain

import "time"

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type Image struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a catalog listing owned by a vendor. Price is in minor
// currency units. Stock is the ledger decremented at order placement.
type Product struct {
	ID          string `json:"id"`
	VendorID    string `json:"vendor_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category"`

	Images []Image `json:"images"`

	ReplacementDays int    `json:"replacement_days"`
	FreeDelivery    bool   `json:"free_delivery"`
	PayOnDelivery   bool   `json:"pay_on_delivery"`
	Warranty        string `json:"warranty"`

	DetailPoints []string `json:"detail_points"`

	VerificationStatus VerificationStatus `json:"verification_status"`
	RequestedAt        *time.Time         `json:"requested_at,omitempty"`
	ApprovedAt         *time.Time         `json:"approved_at,omitempty"`
	RejectedReason     string             `json:"rejected_reason,omitempty"`

	IsActive bool `json:"is_active"`

	Reviews []Review `json:"reviews,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
