package payment

import "time"

// Config holds payment gateway credentials and endpoint settings.
// KeyID and KeySecret are optional so the rest of the application can start
// without a gateway; checkout start refuses to run until both are set.
type Config struct {
	KeyID      string        `env:"PAYMENT_KEY_ID"`
	KeySecret  string        `env:"PAYMENT_KEY_SECRET"`
	APIBaseURL string        `env:"PAYMENT_API_URL" envDefault:"https://api.razorpay.com/v1"`
	Timeout    time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"` // bounds each gateway call
}
