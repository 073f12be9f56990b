package payment

import "errors"

var (
	ErrNotConfigured       = errors.New("payment gateway is not configured")
	ErrFailedToCreateOrder = errors.New("failed to create payment gateway order")
	ErrUnexpectedStatus    = errors.New("unexpected payment gateway response status")
)
