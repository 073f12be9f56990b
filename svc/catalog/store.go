package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Store defines plan and promocode catalog persistence.
type Store interface {
	// Plans
	CreatePlan(ctx context.Context, plan *Plan) error
	UpdatePlan(ctx context.Context, plan *Plan) error
	DeletePlan(ctx context.Context, id uuid.UUID) error
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)

	// Promocodes
	CreatePromocode(ctx context.Context, promo *Promocode) error
	UpdatePromocode(ctx context.Context, promo *Promocode) error
	DeletePromocode(ctx context.Context, id uuid.UUID) error
	GetPromocode(ctx context.Context, id uuid.UUID) (*Promocode, error)
	GetPromocodeByCode(ctx context.Context, code string) (*Promocode, error)
	ListPromocodes(ctx context.Context) ([]Promocode, error)

	// SetPromocodePlans replaces the promo's plan restriction list.
	SetPromocodePlans(ctx context.Context, promoID uuid.UUID, planIDs []uuid.UUID) error

	// IncrementRedemptions bumps the usage counter, but only while it is
	// below the cap. Returns false without error when the cap was already
	// reached; the caller decides how to surface that.
	IncrementRedemptions(ctx context.Context, promoID uuid.UUID) (bool, error)
}
