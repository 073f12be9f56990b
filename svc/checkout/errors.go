package checkout

import "errors"

var (
	ErrGatewayUnavailable   = errors.New("payment gateway is not configured")
	ErrSignatureMismatch    = errors.New("payment signature verification failed")
	ErrPendingNotFound      = errors.New("no pending subscription for this order")
	ErrUnauthorized         = errors.New("subscription belongs to another user")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrCheckoutInProgress   = errors.New("another checkout is already in progress")
)
