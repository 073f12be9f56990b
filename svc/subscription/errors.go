package subscription

import "errors"

var (
	ErrNotFound          = errors.New("subscription not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidTransition = errors.New("invalid subscription state transition")
	ErrDuplicateOrderID  = errors.New("gateway order id already exists")
	ErrMissingOrderID    = errors.New("pending subscription requires a gateway order id")
)
