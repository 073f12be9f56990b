package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Plan is a purchasable subscription tier. Price is stored in minor currency
// units (cents, paise); duration is whole days. A plan must be active to be
// purchasable.
type Plan struct {
	ID           uuid.UUID
	Name         string
	Slug         string
	Description  string
	DurationDays int
	Price        int64 // minor currency units
	Currency     string
	Features     []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DiscountType determines how a promocode adjusts the charge.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Promocode is a discount rule. Codes are case-insensitive and stored
// upper-cased. An empty PlanIDs list means the code applies to every plan.
type Promocode struct {
	ID               uuid.UUID
	Code             string
	DiscountType     DiscountType
	DiscountValue    int64
	StartAt          *time.Time // nil = valid immediately
	EndAt            *time.Time // nil = never expires
	MaxRedemptions   *int       // nil = uncapped
	RedemptionsCount int
	MinAmount        *int64 // minor units; floor checked against the adjusted amount
	AutoRenewOnly    bool
	PlanIDs          []uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeCode upper-cases and trims a promo code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AppliesToPlan reports whether the promo's plan restriction (if any) covers
// the given plan.
func (p *Promocode) AppliesToPlan(planID uuid.UUID) bool {
	if len(p.PlanIDs) == 0 {
		return true
	}
	for _, id := range p.PlanIDs {
		if id == planID {
			return true
		}
	}
	return false
}

// Description returns a human-readable summary of the discount, used on the
// checkout preview.
func (p *Promocode) Description() string {
	switch p.DiscountType {
	case DiscountPercent:
		return fmt.Sprintf("%d%% off", p.DiscountValue)
	case DiscountFixed:
		return fmt.Sprintf("%d off", p.DiscountValue)
	default:
		return ""
	}
}
