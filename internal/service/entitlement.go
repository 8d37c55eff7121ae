package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
)

// Errors returned by the entitlement gate.
var (
	ErrNoSubscription      = errors.New("no subscription")
	ErrSubscriptionExpired = errors.New("subscription expired")
	ErrQuotaExceeded       = errors.New("plan quota exceeded")
	ErrUnknownPlan         = errors.New("unknown plan")
)

// Resource kinds gated by plan quotas.
const (
	QuotaRestaurants = "restaurants"
	QuotaTables      = "tables"
	QuotaFoodItems   = "food_items"
)

// planQuota holds per-plan resource ceilings. -1 means unlimited.
type planQuota struct {
	restaurants int64
	tables      int64
	foodItems   int64
}

var planQuotas = map[string]planQuota{
	enum.PlanStarter: {restaurants: 1, tables: 4, foodItems: 10},
	enum.PlanMedium:  {restaurants: 2, tables: 10, foodItems: 25},
	enum.PlanPro:     {restaurants: 4, tables: -1, foodItems: -1},
}

// EntitlementStore defines the DB methods the gate needs.
// Satisfied by *database.Queries.
type EntitlementStore interface {
	GetSubscriptionByUser(ctx context.Context, userID uuid.UUID) (database.Subscription, error)
	DeactivateSubscription(ctx context.Context, userID uuid.UUID) error
	ForceCloseRestaurant(ctx context.Context, id uuid.UUID) error
}

// EntitlementService decides what a subscription currently allows. Expiry is
// reconciled lazily: the first read after a term lapses persists the
// deactivation, there is no background sweeper.
type EntitlementService struct {
	store EntitlementStore
	now   func() time.Time
}

func NewEntitlementService(store EntitlementStore) *EntitlementService {
	return &EntitlementService{store: store, now: time.Now}
}

// ReconcileSubscription loads the user's subscription and persists the
// deactivation if its term has lapsed since the last read. Returns
// ErrSubscriptionExpired for a lapsed or already-inactive subscription and
// ErrNoSubscription when none exists.
func (s *EntitlementService) ReconcileSubscription(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Subscription{}, ErrNoSubscription
		}
		return database.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}

	if !sub.IsSubscriptionActive {
		return sub, ErrSubscriptionExpired
	}

	var expiry time.Time
	if sub.IsTrial {
		if sub.TrialExpiresAt.Valid {
			expiry = sub.TrialExpiresAt.Time
		}
	} else if sub.SubscriptionEndDate.Valid {
		expiry = sub.SubscriptionEndDate.Time
	}

	if !expiry.IsZero() && s.now().After(expiry) {
		if err := s.store.DeactivateSubscription(ctx, userID); err != nil {
			return database.Subscription{}, fmt.Errorf("deactivate subscription: %w", err)
		}
		sub.IsSubscriptionActive = false
		return sub, ErrSubscriptionExpired
	}

	return sub, nil
}

// CheckQuota reports whether the subscription's plan admits one more resource
// of the given kind on top of currentCount.
func (s *EntitlementService) CheckQuota(sub database.Subscription, resourceKind string, currentCount int64) error {
	plan := enum.PlanStarter
	if sub.Plan.Valid {
		plan = sub.Plan.String
	}
	q, ok := planQuotas[plan]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}

	var limit int64
	switch resourceKind {
	case QuotaRestaurants:
		limit = q.restaurants
	case QuotaTables:
		limit = q.tables
	case QuotaFoodItems:
		limit = q.foodItems
	default:
		return fmt.Errorf("unknown resource kind %q", resourceKind)
	}

	if limit == -1 {
		return nil
	}
	if currentCount >= limit {
		return fmt.Errorf("%w: %s limit %d reached on plan %s", ErrQuotaExceeded, resourceKind, limit, plan)
	}
	return nil
}

// CanAcceptOrders evaluates the restaurant owner's subscription. When the
// answer is no, the restaurant is force-closed before the error is returned
// so diners stop seeing it as open.
func (s *EntitlementService) CanAcceptOrders(ctx context.Context, restaurant database.Restaurant) error {
	_, err := s.ReconcileSubscription(ctx, restaurant.OwnerID)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSubscriptionExpired) || errors.Is(err, ErrNoSubscription) {
		if closeErr := s.store.ForceCloseRestaurant(ctx, restaurant.ID); closeErr != nil {
			return fmt.Errorf("force close restaurant: %w", closeErr)
		}
	}
	return err
}
