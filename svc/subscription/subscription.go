package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the subscription lifecycle state.
// Expired and canceled are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// Subscription is one purchase of a plan by a user.
//
// A pending record always carries a gateway order id and no payment id; an
// active record carries both plus a non-nil expiry. The order id is the join
// key between checkout start and the gateway's payment confirmation.
type Subscription struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	PlanID      uuid.UUID
	PromocodeID *uuid.UUID
	AutoRenew   bool
	Status      Status
	Amount      int64 // charged amount, minor currency units
	Currency    string
	OrderID     string  // gateway order id, assigned at pending creation
	PaymentID   *string // gateway payment id, assigned at activation
	StartedAt   *time.Time
	ExpiresAt   *time.Time

	// Independent idempotence markers for the two reminder types, so one
	// reminder never suppresses the other.
	RenewalRemindedAt *time.Time
	ExpiryRemindedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the subscription can no longer transition.
func (s *Subscription) IsTerminal() bool {
	return s.Status == StatusExpired || s.Status == StatusCanceled
}

// Entitles reports whether this subscription grants premium access at the
// given time. A canceled subscription keeps entitling until its natural
// expiry; that is the promise made to the user at cancellation.
func (s *Subscription) Entitles(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	switch s.Status {
	case StatusActive, StatusCanceled:
		return s.ExpiresAt.After(now)
	default:
		return false
	}
}

// User is the slice of the user record this service owns: the denormalized
// premium projection. It is a cache over the subscription table, rebuildable
// at any time via Lifecycle.RecomputePremium.
type User struct {
	ID               uuid.UUID
	Email            string
	IsPremium        bool
	PremiumPlanID    *uuid.UUID
	PremiumExpiresAt *time.Time
	PremiumAutoRenew bool
}
