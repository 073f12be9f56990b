package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subflow/pkg/binder"
	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/checkout"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respondError maps service sentinels to HTTP statuses. Unknown errors
// surface as opaque 500s so internals never leak to clients.
func (h *handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrMissingContentType),
		errors.Is(err, binder.ErrUnsupportedMediaType),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, errBadRequest):
		status, message = http.StatusBadRequest, err.Error()

	case errors.Is(err, catalog.ErrPlanNotFound),
		errors.Is(err, catalog.ErrPlanInactive),
		errors.Is(err, catalog.ErrPromoNotFound),
		errors.Is(err, checkout.ErrPendingNotFound),
		errors.Is(err, checkout.ErrNoActiveSubscription),
		errors.Is(err, subscription.ErrNotFound),
		errors.Is(err, subscription.ErrUserNotFound):
		status, message = http.StatusNotFound, err.Error()

	case errors.Is(err, catalog.ErrPromoNotYetActive),
		errors.Is(err, catalog.ErrPromoExpired),
		errors.Is(err, catalog.ErrPromoUsageLimitReached),
		errors.Is(err, catalog.ErrPromoPlanNotApplicable),
		errors.Is(err, catalog.ErrPromoAutoRenewRequired),
		errors.Is(err, catalog.ErrPromoMinimumNotMet),
		errors.Is(err, errValidation):
		status, message = http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, checkout.ErrSignatureMismatch):
		status, message = http.StatusBadRequest, err.Error()

	case errors.Is(err, checkout.ErrUnauthorized):
		status, message = http.StatusForbidden, err.Error()

	case errors.Is(err, checkout.ErrCheckoutInProgress),
		errors.Is(err, catalog.ErrDuplicateCode),
		errors.Is(err, catalog.ErrDuplicateSlug),
		errors.Is(err, subscription.ErrInvalidTransition):
		status, message = http.StatusConflict, err.Error()

	case errors.Is(err, checkout.ErrGatewayUnavailable):
		status, message = http.StatusServiceUnavailable, err.Error()
	}

	if status == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "unhandled billing error",
			"path", r.URL.Path, "error", err.Error())
	}
	writeError(w, status, message)
}

var (
	errBadRequest = errors.New("invalid request")
	errValidation = errors.New("validation failed")
)

type planResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description,omitempty"`
	DurationDays int       `json:"duration_days"`
	Price        int64     `json:"price"`
	Currency     string    `json:"currency"`
	Features     []string  `json:"features,omitempty"`
	Active       bool      `json:"active"`
}

func toPlanResponse(p *catalog.Plan) planResponse {
	return planResponse{
		ID:           p.ID,
		Name:         p.Name,
		Slug:         p.Slug,
		Description:  p.Description,
		DurationDays: p.DurationDays,
		Price:        p.Price,
		Currency:     p.Currency,
		Features:     p.Features,
		Active:       p.Active,
	}
}

type promocodeResponse struct {
	ID               uuid.UUID   `json:"id"`
	Code             string      `json:"code"`
	DiscountType     string      `json:"discount_type"`
	DiscountValue    int64       `json:"discount_value"`
	Description      string      `json:"description"`
	StartAt          *time.Time  `json:"start_at,omitempty"`
	EndAt            *time.Time  `json:"end_at,omitempty"`
	MaxRedemptions   *int        `json:"max_redemptions,omitempty"`
	RedemptionsCount int         `json:"redemptions_count"`
	MinAmount        *int64      `json:"min_amount,omitempty"`
	AutoRenewOnly    bool        `json:"auto_renew_only"`
	PlanIDs          []uuid.UUID `json:"plan_ids,omitempty"`
}

func toPromocodeResponse(p *catalog.Promocode) promocodeResponse {
	return promocodeResponse{
		ID:               p.ID,
		Code:             p.Code,
		DiscountType:     string(p.DiscountType),
		DiscountValue:    p.DiscountValue,
		Description:      p.Description(),
		StartAt:          p.StartAt,
		EndAt:            p.EndAt,
		MaxRedemptions:   p.MaxRedemptions,
		RedemptionsCount: p.RedemptionsCount,
		MinAmount:        p.MinAmount,
		AutoRenewOnly:    p.AutoRenewOnly,
		PlanIDs:          p.PlanIDs,
	}
}

type subscriptionResponse struct {
	ID        uuid.UUID  `json:"id"`
	PlanID    uuid.UUID  `json:"plan_id"`
	Status    string     `json:"status"`
	AutoRenew bool       `json:"auto_renew"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	OrderID   string     `json:"order_id"`
	PaymentID *string    `json:"payment_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toSubscriptionResponse(s *subscription.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:        s.ID,
		PlanID:    s.PlanID,
		Status:    string(s.Status),
		AutoRenew: s.AutoRenew,
		Amount:    s.Amount,
		Currency:  s.Currency,
		OrderID:   s.OrderID,
		PaymentID: s.PaymentID,
		StartedAt: s.StartedAt,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}
