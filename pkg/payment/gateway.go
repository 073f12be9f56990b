package payment

import "context"

// Order represents an order registered with the payment gateway.
// The gateway ID is the join key between a checkout start and the later
// payment confirmation callback.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor currency units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway defines the payment provider surface the checkout flow depends on.
type Gateway interface {
	// CreateOrder registers an order for the given amount (minor units) and
	// returns the gateway-issued order handle.
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)

	// VerifySignature reports whether the signature matches the expected
	// HMAC over "orderID|paymentID". This is the sole trust boundary
	// protecting against forged activation calls.
	VerifySignature(orderID, paymentID, signature string) bool

	// IsConfigured reports whether gateway credentials are present.
	IsConfigured() bool
}
