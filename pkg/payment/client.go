package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Client implements Gateway against a Razorpay-compatible orders API.
// Order creation is an authenticated POST; signature verification is a pure
// HMAC computation that never touches the network.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a gateway client. It does not validate credentials:
// a client without credentials is still useful for signature-free paths,
// and IsConfigured gates the paths that need them.
func NewClient(cfg Config) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// IsConfigured reports whether both API credentials are present.
func (c *Client) IsConfigured() bool {
	return c.config.KeyID != "" && c.config.KeySecret != ""
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder registers an order with the gateway and returns its handle.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateOrder, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateOrder, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.KeyID, c.config.KeySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateOrder, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(ErrFailedToCreateOrder,
			fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, errors.Join(ErrFailedToCreateOrder, err)
	}

	return &order, nil
}

// VerifySignature recomputes the expected HMAC-SHA256 over "orderID|paymentID"
// with the shared secret and compares it in constant time.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	if !c.IsConfigured() {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.config.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
