package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Filter narrows the admin transaction listing.
type Filter struct {
	Status *Status
	PlanID *uuid.UUID
	Search string // matches order id, payment id, or user email
	Limit  int
	Offset int
}

// Normalize caps the page size to [1, 200] with a default of 50.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Store defines subscription lifecycle persistence and the premium
// projection mutators. State transitions are conditional updates: they fail
// with ErrInvalidTransition when the record is not in the expected source
// state, which keeps terminal states terminal under races.
type Store interface {
	// CreatePending inserts a new pending subscription tied to a gateway
	// order id. Fails ErrDuplicateOrderID on order id reuse.
	CreatePending(ctx context.Context, sub *Subscription) error

	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetByOrderID(ctx context.Context, orderID string) (*Subscription, error)

	// ActiveByUser returns the user's current active subscription, if any.
	ActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// LatestEntitlement returns the subscription that currently grants the
	// user premium access (active or canceled, not yet past expiry), the
	// one expiring last. ErrNotFound when nothing entitles.
	LatestEntitlement(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error)

	// Transitions
	Activate(ctx context.Context, id uuid.UUID, paymentID string, startedAt, expiresAt time.Time) (*Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Expire(ctx context.Context, id uuid.UUID) (*Subscription, error)
	SetAutoRenew(ctx context.Context, id uuid.UUID, enabled bool) error

	// Reminder idempotence markers
	MarkRenewalReminded(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkExpiryReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	// Scheduler scans
	ListDueRenewalReminder(ctx context.Context, now time.Time, window time.Duration) ([]Subscription, error)
	ListDueExpiryReminder(ctx context.Context, now time.Time, window time.Duration) ([]Subscription, error)
	ListExpiredActive(ctx context.Context, now time.Time) ([]Subscription, error)
	// ListLapsedCanceled returns canceled subscriptions past expiry whose
	// user still carries the premium projection.
	ListLapsedCanceled(ctx context.Context, now time.Time) ([]Subscription, error)
	ListStalePending(ctx context.Context, before time.Time) ([]Subscription, error)

	// Admin listing
	List(ctx context.Context, filter Filter) ([]Subscription, error)

	// Premium projection
	GetUser(ctx context.Context, userID uuid.UUID) (*User, error)
	SetPremium(ctx context.Context, userID, planID uuid.UUID, expiresAt time.Time, autoRenew bool) error
	ClearPremium(ctx context.Context, userID uuid.UUID) error
}
