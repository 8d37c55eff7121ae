package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
)

// mockEntitlementStore implements EntitlementStore with configurable behavior.
type mockEntitlementStore struct {
	getSubscriptionByUserFn  func(ctx context.Context, userID uuid.UUID) (database.Subscription, error)
	deactivateSubscriptionFn func(ctx context.Context, userID uuid.UUID) error
	forceCloseRestaurantFn   func(ctx context.Context, id uuid.UUID) error
}

func (m *mockEntitlementStore) GetSubscriptionByUser(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
	return m.getSubscriptionByUserFn(ctx, userID)
}
func (m *mockEntitlementStore) DeactivateSubscription(ctx context.Context, userID uuid.UUID) error {
	return m.deactivateSubscriptionFn(ctx, userID)
}
func (m *mockEntitlementStore) ForceCloseRestaurant(ctx context.Context, id uuid.UUID) error {
	return m.forceCloseRestaurantFn(ctx, id)
}

func subscription(plan string, active, trial bool, expiry time.Time) database.Subscription {
	sub := database.Subscription{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		Plan:                 pgtype.Text{String: plan, Valid: true},
		IsTrial:              trial,
		IsSubscriptionActive: active,
	}
	if trial {
		sub.TrialExpiresAt = pgtype.Timestamptz{Time: expiry, Valid: true}
	} else {
		sub.SubscriptionEndDate = pgtype.Timestamptz{Time: expiry, Valid: true}
	}
	return sub
}

func TestReconcileSubscription_NoSubscription(t *testing.T) {
	store := &mockEntitlementStore{
		getSubscriptionByUserFn: func(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
			return database.Subscription{}, pgx.ErrNoRows
		},
	}
	svc := NewEntitlementService(store)

	_, err := svc.ReconcileSubscription(context.Background(), uuid.New())
	if !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got: %v", err)
	}
}

func TestReconcileSubscription_AlreadyInactive(t *testing.T) {
	sub := subscription(enum.PlanStarter, false, true, time.Now().Add(time.Hour))
	deactivated := false
	store := &mockEntitlementStore{
		getSubscriptionByUserFn: func(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
			return sub, nil
		},
		deactivateSubscriptionFn: func(ctx context.Context, userID uuid.UUID) error {
			deactivated = true
			return nil
		},
	}
	svc := NewEntitlementService(store)

	_, err := svc.ReconcileSubscription(context.Background(), sub.UserID)
	if !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("expected ErrSubscriptionExpired, got: %v", err)
	}
	if deactivated {
		t.Error("already-inactive subscription must not be written again")
	}
}

func TestReconcileSubscription_TrialLapsed(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sub := subscription(enum.PlanStarter, true, true, now.Add(-time.Minute))

	deactivated := false
	store := &mockEntitlementStore{
		getSubscriptionByUserFn: func(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
			return sub, nil
		},
		deactivateSubscriptionFn: func(ctx context.Context, userID uuid.UUID) error {
			if userID != sub.UserID {
				t.Errorf("deactivate: got user %s, want %s", userID, sub.UserID)
			}
			deactivated = true
			return nil
		},
	}
	svc := NewEntitlementService(store)
	svc.now = func() time.Time { return now }

	got, err := svc.ReconcileSubscription(context.Background(), sub.UserID)
	if !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("expected ErrSubscriptionExpired, got: %v", err)
	}
	if !deactivated {
		t.Error("lapsed trial must be persisted as inactive")
	}
	if got.IsSubscriptionActive {
		t.Error("returned subscription should reflect the deactivation")
	}
}

func TestReconcileSubscription_PaidTermLapsed(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sub := subscription(enum.PlanMedium, true, false, now.Add(-24*time.Hour))

	deactivated := false
	store := &mockEntitlementStore{
		getSubscriptionByUserFn: func(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
			return sub, nil
		},
		deactivateSubscriptionFn: func(ctx context.Context, userID uuid.UUID) error {
			deactivated = true
			return nil
		},
	}
	svc := NewEntitlementService(store)
	svc.now = func() time.Time { return now }

	_, err := svc.ReconcileSubscription(context.Background(), sub.UserID)
	if !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("expected ErrSubscriptionExpired, got: %v", err)
	}
	if !deactivated {
		t.Error("lapsed paid term must be persisted as inactive")
	}
}

func TestReconcileSubscription_Active(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sub := subscription(enum.PlanPro, true, false, now.Add(30*24*time.Hour))

	store := &mockEntitlementStore{
		getSubscriptionByUserFn: func(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
			return sub, nil
		},
		deactivateSubscriptionFn: func(ctx context.Context, userID uuid.UUID) error {
			t.Error("active subscription must not be deactivated")
			return nil
		},
	}
	svc := NewEntitlementService(store)
	svc.now = func() time.Time { return now }

	got, err := svc.ReconcileSubscription(context.Background(), sub.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsSubscriptionActive {
		t.Error("subscription should remain active")
	}
}

func TestCheckQuota(t *testing.T) {
	svc := NewEntitlementService(&mockEntitlementStore{})

	cases := []struct {
		name    string
		plan    string
		kind    string
		count   int64
		wantErr bool
	}{
		{"starter under restaurant limit", enum.PlanStarter, QuotaRestaurants, 0, false},
		{"starter at restaurant limit", enum.PlanStarter, QuotaRestaurants, 1, true},
		{"starter at table limit", enum.PlanStarter, QuotaTables, 4, true},
		{"starter under food limit", enum.PlanStarter, QuotaFoodItems, 9, false},
		{"starter at food limit", enum.PlanStarter, QuotaFoodItems, 10, true},
		{"medium under table limit", enum.PlanMedium, QuotaTables, 9, false},
		{"medium at table limit", enum.PlanMedium, QuotaTables, 10, true},
		{"medium at restaurant limit", enum.PlanMedium, QuotaRestaurants, 2, true},
		{"pro unlimited tables", enum.PlanPro, QuotaTables, 5000, false},
		{"pro unlimited food", enum.PlanPro, QuotaFoodItems, 5000, false},
		{"pro at restaurant limit", enum.PlanPro, QuotaRestaurants, 4, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := subscription(tc.plan, true, false, time.Now().Add(time.Hour))
			err := svc.CheckQuota(sub, tc.kind, tc.count)
			if tc.wantErr && !errors.Is(err, ErrQuotaExceeded) {
				t.Errorf("expected ErrQuotaExceeded, got: %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckQuota_UnknownPlan(t *testing.T) {
	svc := NewEntitlementService(&mockEntitlementStore{})
	sub := subscription("PLATINUM", true, false, time.Now().Add(time.Hour))

	if err := svc.CheckQuota(sub, QuotaTables, 0); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got: %v", err)
	}
}

func TestCanAcceptOrders_ClosesOnExpiry(t *testing.T) {
	restaurant := testRestaurant(false)
	sub := subscription(enum.PlanStarter, false, true, time.Now().Add(-time.Hour))

	closed := false
	store := &mockEntitlementStore{
		getSubscriptionByUserFn: func(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
			return sub, nil
		},
		forceCloseRestaurantFn: func(ctx context.Context, id uuid.UUID) error {
			if id != restaurant.ID {
				t.Errorf("force close: got %s, want %s", id, restaurant.ID)
			}
			closed = true
			return nil
		},
	}
	svc := NewEntitlementService(store)

	err := svc.CanAcceptOrders(context.Background(), restaurant)
	if !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("expected ErrSubscriptionExpired, got: %v", err)
	}
	if !closed {
		t.Error("restaurant should be force-closed on expiry")
	}
}

func TestCanAcceptOrders_Active(t *testing.T) {
	restaurant := testRestaurant(false)
	sub := subscription(enum.PlanStarter, true, true, time.Now().Add(time.Hour))

	store := &mockEntitlementStore{
		getSubscriptionByUserFn: func(ctx context.Context, userID uuid.UUID) (database.Subscription, error) {
			return sub, nil
		},
		forceCloseRestaurantFn: func(ctx context.Context, id uuid.UUID) error {
			t.Error("active owner must not have the restaurant closed")
			return nil
		},
	}
	svc := NewEntitlementService(store)

	if err := svc.CanAcceptOrders(context.Background(), restaurant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
