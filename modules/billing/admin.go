package billing

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subflow/pkg/binder"
	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

func (h *handlers) adminListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.ListPlans(r.Context(), false)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]planResponse, 0, len(plans))
	for i := range plans {
		out = append(out, toPlanResponse(&plans[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

type planRequest struct {
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Description  string   `json:"description"`
	DurationDays int      `json:"duration_days"`
	Price        int64    `json:"price"`
	Currency     string   `json:"currency"`
	Features     []string `json:"features"`
	Active       bool     `json:"active"`
}

func (req *planRequest) validate() error {
	switch {
	case req.Name == "":
		return fmt.Errorf("%w: name is required", errValidation)
	case req.Slug == "":
		return fmt.Errorf("%w: slug is required", errValidation)
	case req.DurationDays <= 0:
		return fmt.Errorf("%w: duration_days must be positive", errValidation)
	case req.Price <= 0:
		return fmt.Errorf("%w: price must be positive", errValidation)
	case req.Currency == "":
		return fmt.Errorf("%w: currency is required", errValidation)
	}
	return nil
}

func (h *handlers) adminCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(w, r, err)
		return
	}

	plan := &catalog.Plan{
		ID:           uuid.New(),
		Name:         req.Name,
		Slug:         req.Slug,
		Description:  req.Description,
		DurationDays: req.DurationDays,
		Price:        req.Price,
		Currency:     req.Currency,
		Features:     req.Features,
		Active:       req.Active,
	}
	if err := h.catalog.CreatePlan(r.Context(), plan); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanResponse(plan))
}

func (h *handlers) adminUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: invalid plan id", errBadRequest))
		return
	}

	var req planRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(w, r, err)
		return
	}

	plan, err := h.catalog.GetPlan(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	plan.Name = req.Name
	plan.Slug = req.Slug
	plan.Description = req.Description
	plan.DurationDays = req.DurationDays
	plan.Price = req.Price
	plan.Currency = req.Currency
	plan.Features = req.Features
	plan.Active = req.Active

	if err := h.catalog.UpdatePlan(r.Context(), plan); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanResponse(plan))
}

func (h *handlers) adminDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: invalid plan id", errBadRequest))
		return
	}
	if err := h.catalog.DeletePlan(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) adminListPromocodes(w http.ResponseWriter, r *http.Request) {
	promos, err := h.catalog.ListPromocodes(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]promocodeResponse, 0, len(promos))
	for i := range promos {
		out = append(out, toPromocodeResponse(&promos[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"promocodes": out})
}

type promocodeRequest struct {
	Code           string      `json:"code"`
	DiscountType   string      `json:"discount_type"`
	DiscountValue  int64       `json:"discount_value"`
	StartAt        *time.Time  `json:"start_at"`
	EndAt          *time.Time  `json:"end_at"`
	MaxRedemptions *int        `json:"max_redemptions"`
	MinAmount      *int64      `json:"min_amount"`
	AutoRenewOnly  bool        `json:"auto_renew_only"`
	PlanIDs        []uuid.UUID `json:"plan_ids"`
}

func (req *promocodeRequest) validate() error {
	switch {
	case catalog.NormalizeCode(req.Code) == "":
		return fmt.Errorf("%w: code is required", errValidation)
	case req.DiscountType != string(catalog.DiscountPercent) && req.DiscountType != string(catalog.DiscountFixed):
		return fmt.Errorf("%w: discount_type must be percent or fixed", errValidation)
	case req.DiscountType == string(catalog.DiscountPercent) && (req.DiscountValue < 1 || req.DiscountValue > 100):
		return fmt.Errorf("%w: percent discount must be between 1 and 100", errValidation)
	case req.DiscountType == string(catalog.DiscountFixed) && req.DiscountValue < 1:
		return fmt.Errorf("%w: fixed discount must be positive", errValidation)
	case req.MaxRedemptions != nil && *req.MaxRedemptions < 1:
		return fmt.Errorf("%w: max_redemptions must be positive", errValidation)
	case req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt):
		return fmt.Errorf("%w: end_at must be after start_at", errValidation)
	}
	return nil
}

func (h *handlers) adminCreatePromocode(w http.ResponseWriter, r *http.Request) {
	var req promocodeRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(w, r, err)
		return
	}

	promo := &catalog.Promocode{
		ID:             uuid.New(),
		Code:           catalog.NormalizeCode(req.Code),
		DiscountType:   catalog.DiscountType(req.DiscountType),
		DiscountValue:  req.DiscountValue,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		MaxRedemptions: req.MaxRedemptions,
		MinAmount:      req.MinAmount,
		AutoRenewOnly:  req.AutoRenewOnly,
		PlanIDs:        req.PlanIDs,
	}
	if err := h.catalog.CreatePromocode(r.Context(), promo); err != nil {
		h.respondError(w, r, err)
		return
	}
	if len(req.PlanIDs) > 0 {
		if err := h.catalog.SetPromocodePlans(r.Context(), promo.ID, req.PlanIDs); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toPromocodeResponse(promo))
}

func (h *handlers) adminUpdatePromocode(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: invalid promocode id", errBadRequest))
		return
	}

	var req promocodeRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.respondError(w, r, err)
		return
	}

	promo, err := h.catalog.GetPromocode(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	promo.Code = catalog.NormalizeCode(req.Code)
	promo.DiscountType = catalog.DiscountType(req.DiscountType)
	promo.DiscountValue = req.DiscountValue
	promo.StartAt = req.StartAt
	promo.EndAt = req.EndAt
	promo.MaxRedemptions = req.MaxRedemptions
	promo.MinAmount = req.MinAmount
	promo.AutoRenewOnly = req.AutoRenewOnly
	promo.PlanIDs = req.PlanIDs

	if err := h.catalog.UpdatePromocode(r.Context(), promo); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.catalog.SetPromocodePlans(r.Context(), promo.ID, req.PlanIDs); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPromocodeResponse(promo))
}

func (h *handlers) adminDeletePromocode(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: invalid promocode id", errBadRequest))
		return
	}
	if err := h.catalog.DeletePromocode(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listSubscriptionsRequest struct {
	Status string `query:"status"`
	PlanID string `query:"plan_id"`
	Search string `query:"q"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

func (h *handlers) adminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	var req listSubscriptionsRequest
	if err := binder.Query()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	filter := subscription.Filter{
		Search: req.Search,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if req.Status != "" {
		status := subscription.Status(req.Status)
		switch status {
		case subscription.StatusPending, subscription.StatusActive,
			subscription.StatusCanceled, subscription.StatusExpired:
			filter.Status = &status
		default:
			h.respondError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, req.Status))
			return
		}
	}
	if req.PlanID != "" {
		planID, err := uuid.Parse(req.PlanID)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: invalid plan_id", errBadRequest))
			return
		}
		filter.PlanID = &planID
	}

	subs, err := h.subs.Store().List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	filter.Normalize()
	out := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionResponse(&subs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": out,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}
