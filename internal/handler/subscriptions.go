package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/middleware"
	"github.com/tabledine/api/internal/service"
)

const paidTermLength = 30 * 24 * time.Hour

// SubscriptionStore defines the DB methods plan management needs.
// Satisfied by *database.Queries.
type SubscriptionStore interface {
	UpdateSubscriptionPlan(ctx context.Context, arg database.UpdateSubscriptionPlanParams) (database.Subscription, error)
}

type SubscriptionHandler struct {
	store       SubscriptionStore
	entitlement *service.EntitlementService
}

func NewSubscriptionHandler(store SubscriptionStore, entitlement *service.EntitlementService) *SubscriptionHandler {
	return &SubscriptionHandler{store: store, entitlement: entitlement}
}

func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMine)
	r.Post("/upgrade", h.Upgrade)
}

type subscriptionResponse struct {
	Plan                 string  `json:"plan"`
	IsTrial              bool    `json:"is_trial"`
	TrialExpiresAt       *string `json:"trial_expires_at"`
	SubscriptionEndDate  *string `json:"subscription_end_date"`
	IsSubscriptionActive bool    `json:"is_subscription_active"`
}

func toSubscriptionResponse(sub database.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		Plan:                 enum.PlanStarter,
		IsTrial:              sub.IsTrial,
		IsSubscriptionActive: sub.IsSubscriptionActive,
	}
	if sub.Plan.Valid {
		resp.Plan = sub.Plan.String
	}
	if sub.TrialExpiresAt.Valid {
		s := sub.TrialExpiresAt.Time.Format(time.RFC3339)
		resp.TrialExpiresAt = &s
	}
	if sub.SubscriptionEndDate.Valid {
		s := sub.SubscriptionEndDate.Time.Format(time.RFC3339)
		resp.SubscriptionEndDate = &s
	}
	return resp
}

// GetMine returns the caller's subscription after reconciling expiry, so an
// expired plan reads back as inactive rather than stale-active.
func (h *SubscriptionHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	sub, err := h.entitlement.ReconcileSubscription(r.Context(), claims.UserID)
	if err != nil && !errors.Is(err, service.ErrSubscriptionExpired) {
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, toSubscriptionResponse(sub), "")
}

type upgradeRequest struct {
	Plan string `json:"plan"`
}

// Upgrade switches the caller to a paid plan for a 30-day term. Charging for
// the plan itself happens off-platform; this endpoint records the outcome.
func (h *SubscriptionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req upgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Plan {
	case enum.PlanStarter, enum.PlanMedium, enum.PlanPro:
	default:
		respondError(w, http.StatusBadRequest, "unknown plan")
		return
	}

	sub, err := h.store.UpdateSubscriptionPlan(r.Context(), database.UpdateSubscriptionPlanParams{
		UserID:              claims.UserID,
		Plan:                pgtype.Text{String: req.Plan, Valid: true},
		SubscriptionEndDate: pgtype.Timestamptz{Time: time.Now().Add(paidTermLength), Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "no subscription")
			return
		}
		respondInternal(w, "update subscription", err)
		return
	}

	respond(w, http.StatusOK, toSubscriptionResponse(sub), "plan updated")
}
