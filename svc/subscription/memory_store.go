package subscription

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	subs  map[uuid.UUID]Subscription
	users map[uuid.UUID]User
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:  make(map[uuid.UUID]Subscription),
		users: make(map[uuid.UUID]User),
	}
}

// PutUser seeds a user record. Registration is outside this service's scope,
// so the memory store exposes seeding directly.
func (s *MemoryStore) PutUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutSubscription seeds a subscription record as-is, bypassing transition
// rules. Useful for tests that need historical state.
func (s *MemoryStore) PutSubscription(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
}

func (s *MemoryStore) CreatePending(_ context.Context, sub *Subscription) error {
	if sub.OrderID == "" {
		return ErrMissingOrderID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subs {
		if existing.OrderID == sub.OrderID {
			return ErrDuplicateOrderID
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.Status = StatusPending
	sub.PaymentID = nil
	now := time.Now().UTC()
	sub.CreatedAt, sub.UpdatedAt = now, now
	s.subs[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetByOrderID(_ context.Context, orderID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.OrderID == orderID {
			sub := sub
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ActiveByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Subscription
	for _, sub := range s.subs {
		if sub.UserID != userID || sub.Status != StatusActive {
			continue
		}
		sub := sub
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = &sub
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) LatestEntitlement(_ context.Context, userID uuid.UUID, now time.Time) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Subscription
	for _, sub := range s.subs {
		if sub.UserID != userID || !sub.Entitles(now) {
			continue
		}
		sub := sub
		if latest == nil || sub.ExpiresAt.After(*latest.ExpiresAt) {
			latest = &sub
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) Activate(_ context.Context, id uuid.UUID, paymentID string, startedAt, expiresAt time.Time) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sub.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	sub.Status = StatusActive
	sub.PaymentID = &paymentID
	sub.StartedAt = &startedAt
	sub.ExpiresAt = &expiresAt
	sub.UpdatedAt = time.Now().UTC()
	s.subs[id] = sub
	return &sub, nil
}

func (s *MemoryStore) Cancel(_ context.Context, id uuid.UUID) (*Subscription, error) {
	return s.transition(id, StatusCanceled, StatusActive)
}

func (s *MemoryStore) Expire(_ context.Context, id uuid.UUID) (*Subscription, error) {
	return s.transition(id, StatusExpired, StatusActive, StatusPending)
}

func (s *MemoryStore) transition(id uuid.UUID, to Status, from ...Status) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if sub.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}
	sub.Status = to
	sub.AutoRenew = false
	sub.UpdatedAt = time.Now().UTC()
	s.subs[id] = sub
	return &sub, nil
}

func (s *MemoryStore) SetAutoRenew(_ context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrNotFound
	}
	if sub.Status != StatusActive {
		return ErrInvalidTransition
	}
	sub.AutoRenew = enabled
	sub.UpdatedAt = time.Now().UTC()
	s.subs[id] = sub
	return nil
}

func (s *MemoryStore) MarkRenewalReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.mark(id, func(sub *Subscription) { sub.RenewalRemindedAt = &at })
}

func (s *MemoryStore) MarkExpiryReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.mark(id, func(sub *Subscription) { sub.ExpiryRemindedAt = &at })
}

func (s *MemoryStore) mark(id uuid.UUID, apply func(*Subscription)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrNotFound
	}
	apply(&sub)
	sub.UpdatedAt = time.Now().UTC()
	s.subs[id] = sub
	return nil
}

func (s *MemoryStore) ListDueRenewalReminder(_ context.Context, now time.Time, window time.Duration) ([]Subscription, error) {
	return s.filter(func(sub Subscription) bool {
		return sub.Status == StatusActive && sub.AutoRenew &&
			sub.RenewalRemindedAt == nil && dueWithin(sub.ExpiresAt, now, window)
	}), nil
}

func (s *MemoryStore) ListDueExpiryReminder(_ context.Context, now time.Time, window time.Duration) ([]Subscription, error) {
	return s.filter(func(sub Subscription) bool {
		return sub.Status == StatusActive && !sub.AutoRenew &&
			sub.ExpiryRemindedAt == nil && dueWithin(sub.ExpiresAt, now, window)
	}), nil
}

func (s *MemoryStore) ListExpiredActive(_ context.Context, now time.Time) ([]Subscription, error) {
	return s.filter(func(sub Subscription) bool {
		return sub.Status == StatusActive && sub.ExpiresAt != nil && !sub.ExpiresAt.After(now)
	}), nil
}

func (s *MemoryStore) ListLapsedCanceled(_ context.Context, now time.Time) ([]Subscription, error) {
	s.mu.RLock()
	premium := make(map[uuid.UUID]bool, len(s.users))
	for id, user := range s.users {
		premium[id] = user.IsPremium
	}
	s.mu.RUnlock()

	return s.filter(func(sub Subscription) bool {
		return sub.Status == StatusCanceled && sub.ExpiresAt != nil &&
			!sub.ExpiresAt.After(now) && premium[sub.UserID]
	}), nil
}

func (s *MemoryStore) ListStalePending(_ context.Context, before time.Time) ([]Subscription, error) {
	return s.filter(func(sub Subscription) bool {
		return sub.Status == StatusPending && !sub.CreatedAt.After(before)
	}), nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Subscription, error) {
	filter.Normalize()

	s.mu.RLock()
	users := make(map[uuid.UUID]User, len(s.users))
	for id, user := range s.users {
		users[id] = user
	}
	s.mu.RUnlock()

	matched := s.filter(func(sub Subscription) bool {
		if filter.Status != nil && sub.Status != *filter.Status {
			return false
		}
		if filter.PlanID != nil && sub.PlanID != *filter.PlanID {
			return false
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			email := strings.ToLower(users[sub.UserID].Email)
			paymentID := ""
			if sub.PaymentID != nil {
				paymentID = strings.ToLower(*sub.PaymentID)
			}
			if !strings.Contains(strings.ToLower(sub.OrderID), needle) &&
				!strings.Contains(paymentID, needle) &&
				!strings.Contains(email, needle) {
				return false
			}
		}
		return true
	})

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) filter(keep func(Subscription) bool) []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	return out
}

func dueWithin(expiresAt *time.Time, now time.Time, window time.Duration) bool {
	if expiresAt == nil {
		return false
	}
	return !expiresAt.Before(now) && !expiresAt.After(now.Add(window))
}

func (s *MemoryStore) GetUser(_ context.Context, userID uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (s *MemoryStore) SetPremium(_ context.Context, userID, planID uuid.UUID, expiresAt time.Time, autoRenew bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.IsPremium = true
	user.PremiumPlanID = &planID
	user.PremiumExpiresAt = &expiresAt
	user.PremiumAutoRenew = autoRenew
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) ClearPremium(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.IsPremium = false
	user.PremiumPlanID = nil
	user.PremiumExpiresAt = nil
	user.PremiumAutoRenew = false
	s.users[userID] = user
	return nil
}

var _ Store = (*MemoryStore)(nil)
