package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createSubscription = `
INSERT INTO subscriptions (user_id, plan, is_trial, trial_expires_at, subscription_end_date, is_subscription_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, plan, is_trial, trial_expires_at, subscription_end_date, is_subscription_active, created_at, updated_at
`

type CreateSubscriptionParams struct {
	UserID               uuid.UUID
	Plan                 pgtype.Text
	IsTrial              bool
	TrialExpiresAt       pgtype.Timestamptz
	SubscriptionEndDate  pgtype.Timestamptz
	IsSubscriptionActive bool
}

func (q *Queries) CreateSubscription(ctx context.Context, arg CreateSubscriptionParams) (Subscription, error) {
	row := q.db.QueryRow(ctx, createSubscription,
		arg.UserID, arg.Plan, arg.IsTrial, arg.TrialExpiresAt,
		arg.SubscriptionEndDate, arg.IsSubscriptionActive)
	return scanSubscription(row)
}

const getSubscriptionByUser = `
SELECT id, user_id, plan, is_trial, trial_expires_at, subscription_end_date, is_subscription_active, created_at, updated_at
FROM subscriptions
WHERE user_id = $1
`

func (q *Queries) GetSubscriptionByUser(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	return scanSubscription(q.db.QueryRow(ctx, getSubscriptionByUser, userID))
}

// DeactivateSubscription is the persistence side of lazy reconciliation. The
// status guard makes the write idempotent under concurrent read paths.
const deactivateSubscription = `
UPDATE subscriptions
SET is_subscription_active = false, updated_at = now()
WHERE user_id = $1 AND is_subscription_active = true
`

func (q *Queries) DeactivateSubscription(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deactivateSubscription, userID)
	return err
}

const updateSubscriptionPlan = `
UPDATE subscriptions
SET plan = $2,
    is_trial = false,
    subscription_end_date = $3,
    is_subscription_active = true,
    updated_at = now()
WHERE user_id = $1
RETURNING id, user_id, plan, is_trial, trial_expires_at, subscription_end_date, is_subscription_active, created_at, updated_at
`

type UpdateSubscriptionPlanParams struct {
	UserID              uuid.UUID
	Plan                pgtype.Text
	SubscriptionEndDate pgtype.Timestamptz
}

func (q *Queries) UpdateSubscriptionPlan(ctx context.Context, arg UpdateSubscriptionPlanParams) (Subscription, error) {
	row := q.db.QueryRow(ctx, updateSubscriptionPlan, arg.UserID, arg.Plan, arg.SubscriptionEndDate)
	return scanSubscription(row)
}

type row interface {
	Scan(dest ...any) error
}

func scanSubscription(r row) (Subscription, error) {
	var s Subscription
	err := r.Scan(&s.ID, &s.UserID, &s.Plan, &s.IsTrial, &s.TrialExpiresAt,
		&s.SubscriptionEndDate, &s.IsSubscriptionActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
