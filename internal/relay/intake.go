package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tanmaydg/bazario/internal/domain"
)

// Publisher addresses an event to a single user. *Hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, data []byte) error
}

// Intake consumes order events from Kafka and republishes them on the
// hub, addressed to the buyer and, for the events a vendor cares
// about, to the vendor as well.
type Intake struct {
	hub    Publisher
	logger *slog.Logger
}

func NewIntake(hub Publisher, logger *slog.Logger) *Intake {
	return &Intake{hub: hub, logger: logger}
}

func (i *Intake) Handle(ctx context.Context, payload []byte) error {
	var evt domain.OrderEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		// A malformed payload never becomes valid; log and commit.
		i.logger.Error("discarding undecodable order event", "error", err)
		return nil
	}

	if evt.UserID != "" {
		if err := i.hub.Publish(ctx, evt.UserID, string(evt.Type), payload); err != nil {
			return fmt.Errorf("failed to relay event to buyer: %w", err)
		}
	}

	if evt.VendorID != "" && vendorVisible(evt.Type) {
		// The vendor copy must never carry the delivery OTP.
		vendorEvt := evt
		vendorEvt.Otp = ""
		data, err := json.Marshal(vendorEvt)
		if err != nil {
			return fmt.Errorf("failed to marshal vendor event: %w", err)
		}
		if err := i.hub.Publish(ctx, evt.VendorID, string(evt.Type), data); err != nil {
			return fmt.Errorf("failed to relay event to vendor: %w", err)
		}
	}

	return nil
}

func vendorVisible(t domain.EventType) bool {
	switch t {
	case domain.EventOrderPlaced, domain.EventOrderCancelled, domain.EventOrderReturned, domain.EventOrderDelivered, domain.EventOrderPaid:
		return true
	}
	return false
}
