package domain

import "time"

type EventType string

const (
	EventOrderPlaced    EventType = "order.placed"
	EventStatusUpdated  EventType = "order.status_updated"
	EventOtpIssued      EventType = "order.otp_issued"
	EventOrderDelivered EventType = "order.delivered"
	EventOrderCancelled EventType = "order.cancelled"
	EventOrderReturned  EventType = "order.returned"
	EventOrderPaid      EventType = "order.paid"
)

// OrderEvent is the envelope written to the outbox and published on the
// order events topic. It embeds a full order snapshot so relay consumers
// can fan out without a follow-up read; the pull API remains the source
// of truth for anything missed.
type OrderEvent struct {
	Type     EventType `json:"type"`
	Order    Order     `json:"order"`
	UserID   string    `json:"user_id,omitempty"`
	VendorID string    `json:"vendor_id,omitempty"`

	// Otp is set only on otp_issued events; the order itself never
	// serializes the code. The relay delivers it to the buyer out of
	// band, since the vendor-facing API response must not contain it.
	Otp string `json:"otp,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
