package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	plans  map[uuid.UUID]Plan
	promos map[uuid.UUID]Promocode
}

// NewMemoryStore creates an empty in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:  make(map[uuid.UUID]Plan),
		promos: make(map[uuid.UUID]Promocode),
	}
}

func (s *MemoryStore) CreatePlan(_ context.Context, plan *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.plans {
		if existing.Slug == plan.Slug {
			return ErrDuplicateSlug
		}
	}
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	now := time.Now().UTC()
	plan.CreatedAt, plan.UpdatedAt = now, now
	s.plans[plan.ID] = *plan
	return nil
}

func (s *MemoryStore) UpdatePlan(_ context.Context, plan *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[plan.ID]; !ok {
		return ErrPlanNotFound
	}
	plan.UpdatedAt = time.Now().UTC()
	s.plans[plan.ID] = *plan
	return nil
}

func (s *MemoryStore) DeletePlan(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[id]; !ok {
		return ErrPlanNotFound
	}
	delete(s.plans, id)
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id uuid.UUID) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &plan, nil
}

func (s *MemoryStore) ListPlans(_ context.Context, activeOnly bool) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var plans []Plan
	for _, plan := range s.plans {
		if activeOnly && !plan.Active {
			continue
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (s *MemoryStore) CreatePromocode(_ context.Context, promo *Promocode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo.Code = NormalizeCode(promo.Code)
	for _, existing := range s.promos {
		if existing.Code == promo.Code {
			return ErrDuplicateCode
		}
	}
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	now := time.Now().UTC()
	promo.CreatedAt, promo.UpdatedAt = now, now
	s.promos[promo.ID] = *promo
	return nil
}

func (s *MemoryStore) UpdatePromocode(_ context.Context, promo *Promocode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.promos[promo.ID]
	if !ok {
		return ErrPromoNotFound
	}
	promo.Code = NormalizeCode(promo.Code)
	promo.RedemptionsCount = existing.RedemptionsCount
	promo.UpdatedAt = time.Now().UTC()
	s.promos[promo.ID] = *promo
	return nil
}

func (s *MemoryStore) DeletePromocode(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.promos[id]; !ok {
		return ErrPromoNotFound
	}
	delete(s.promos, id)
	return nil
}

func (s *MemoryStore) GetPromocode(_ context.Context, id uuid.UUID) (*Promocode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, ok := s.promos[id]
	if !ok {
		return nil, ErrPromoNotFound
	}
	return &promo, nil
}

func (s *MemoryStore) GetPromocodeByCode(_ context.Context, code string) (*Promocode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code = NormalizeCode(code)
	for _, promo := range s.promos {
		if promo.Code == code {
			return &promo, nil
		}
	}
	return nil, ErrPromoNotFound
}

func (s *MemoryStore) ListPromocodes(_ context.Context) ([]Promocode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]Promocode, 0, len(s.promos))
	for _, promo := range s.promos {
		promos = append(promos, promo)
	}
	return promos, nil
}

func (s *MemoryStore) SetPromocodePlans(_ context.Context, promoID uuid.UUID, planIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, ok := s.promos[promoID]
	if !ok {
		return ErrPromoNotFound
	}
	promo.PlanIDs = append([]uuid.UUID(nil), planIDs...)
	s.promos[promoID] = promo
	return nil
}

func (s *MemoryStore) IncrementRedemptions(_ context.Context, promoID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, ok := s.promos[promoID]
	if !ok {
		return false, ErrPromoNotFound
	}
	if promo.MaxRedemptions != nil && promo.RedemptionsCount >= *promo.MaxRedemptions {
		return false, nil
	}
	promo.RedemptionsCount++
	s.promos[promoID] = promo
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
