package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/tanmaydg/bazario/internal/domain"
)

// OtpTTL is how long a delivery confirmation code stays valid.
const OtpTTL = 10 * time.Minute

// MaxOtpAttempts bounds guesses against one issued code. A 6-digit
// space is brute-forceable without this.
const MaxOtpAttempts = 5

// GenerateOtp returns a 6-digit numeric delivery code.
func GenerateOtp() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// expectedPrior maps a vendor-requested status to the status the order
// must currently hold. The happy path is strictly monotonic; every
// transition is applied as a compare-and-swap on this prior state so
// concurrent requests cannot silently overwrite each other.
func expectedPrior(to domain.OrderStatus) (domain.OrderStatus, bool) {
	switch to {
	case domain.OrderStatusConfirmed:
		return domain.OrderStatusPending, true
	case domain.OrderStatusShipped:
		return domain.OrderStatusConfirmed, true
	default:
		return "", false
	}
}

// cancellableStatuses are the states a buyer may cancel from. Delivered
// orders go through the return flow instead.
var cancellableStatuses = []string{
	string(domain.OrderStatusPending),
	string(domain.OrderStatusConfirmed),
	string(domain.OrderStatusShipped),
}

// ReturnEligibility reports whether a delivered order is still inside
// the product's replacement window. Both dates are truncated to the
// calendar day in UTC, so a delivery at 23:59 and a check at 00:01
// count as one day apart regardless of the host's time zone.
type ReturnEligibility struct {
	Eligible        bool `json:"eligible"`
	ReplacementDays int  `json:"replacement_days"`
	DaysSince       int  `json:"days_since_delivery"`
	DaysLeft        int  `json:"days_left"`
}

func ComputeReturnEligibility(deliveryDate time.Time, replacementDays int, now time.Time) ReturnEligibility {
	delivered := truncateToDay(deliveryDate.UTC())
	today := truncateToDay(now.UTC())
	daysSince := int(today.Sub(delivered).Hours() / 24)

	eligible := replacementDays > 0 && daysSince <= replacementDays
	daysLeft := 0
	if eligible {
		daysLeft = replacementDays - daysSince
	}

	return ReturnEligibility{
		Eligible:        eligible,
		ReplacementDays: replacementDays,
		DaysSince:       daysSince,
		DaysLeft:        daysLeft,
	}
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
