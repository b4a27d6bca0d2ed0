package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
)

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

// Address is the shipping address captured at checkout. It is a
// denormalized copy, not a reference into any address book.
type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Pincode string `json:"pincode"`
}

// OrderItem is one purchased line. UnitPrice is snapshotted from the
// product at placement time; later catalog price changes never affect it.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Order is one purchase transaction by a buyer against a single vendor.
// Monetary amounts are in minor currency units.
type Order struct {
	ID       string      `json:"id"`
	BuyerID  string      `json:"buyer_id"`
	VendorID string      `json:"vendor_id"`
	Items    []OrderItem `json:"items"`

	ProductsTotal  int64 `json:"products_total"`
	DeliveryCharge int64 `json:"delivery_charge"`
	ServiceCharge  int64 `json:"service_charge"`
	TotalAmount    int64 `json:"total_amount"`
	ReturnedAmount int64 `json:"returned_amount"`

	PaymentMethod PaymentMethod `json:"payment_method"`
	IsPaid        bool          `json:"is_paid"`

	OrderStatus OrderStatus `json:"order_status"`

	// The OTP fields never leave the server in API responses.
	DeliveryOtp  string     `json:"-"`
	OtpExpiresAt *time.Time `json:"-"`
	OtpAttempts  int        `json:"-"`

	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	ShippingAddress Address `json:"address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
