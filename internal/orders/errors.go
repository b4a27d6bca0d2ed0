package orders

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrCartItemNotFound  = errors.New("cart item not found in user cart")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidOtp        = errors.New("invalid or expired OTP")
	ErrAmountMismatch    = errors.New("total amount does not match charges")

	// State-conflict rejections carry the business reason.
	ErrNotCancellable    = errors.New("only pending, confirmed or shipped orders can be cancelled")
	ErrAlreadyCancelled  = errors.New("cancelled order cannot be returned")
	ErrAlreadyReturned   = errors.New("order already returned")
	ErrNotDelivered      = errors.New("only delivered orders can be returned")
	ErrTransitionBlocked = errors.New("order is not in the expected state for this transition")
)
