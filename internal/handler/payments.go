package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/gateway"
	"github.com/tabledine/api/internal/service"
	"github.com/tabledine/api/internal/ws"
)

// PaymentStore defines the DB methods webhook settlement needs.
// Satisfied by *database.Queries (and its WithTx variant).
type PaymentStore interface {
	MarkPaymentPaid(ctx context.Context, arg database.MarkPaymentPaidParams) (database.Payment, error)
	GetPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (database.Payment, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

type PaymentHandler struct {
	store    PaymentStore
	pool     service.TxBeginner
	newStore NewPaymentStore
	gw       gateway.Client
	hub      *ws.Hub
}

func NewPaymentHandler(store PaymentStore, pool service.TxBeginner, newStore NewPaymentStore, gw gateway.Client, hub *ws.Hub) *PaymentHandler {
	return &PaymentHandler{store: store, pool: pool, newStore: newStore, gw: gw, hub: hub}
}

func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.Webhook)
}

type webhookRequest struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// Webhook settles an online payment once the gateway confirms it. The
// signature check is the only authentication on this route. Payment and order
// are settled in one transaction; duplicate deliveries are acknowledged after
// re-asserting the order's paid flag, so a retry heals a half-applied
// settlement instead of skipping it.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		respondError(w, http.StatusBadRequest, "missing webhook fields")
		return
	}

	if !h.gw.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		respondInternal(w, "begin tx", err)
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	store := h.newStore(tx)

	payment, err := store.MarkPaymentPaid(ctx, database.MarkPaymentPaidParams{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: pgtype.Text{String: req.GatewayPaymentID, Valid: true},
		GatewaySignature: pgtype.Text{String: req.Signature, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Zero rows means unknown gateway order or an already-settled one.
			existing, lookupErr := h.store.GetPaymentByGatewayOrderID(ctx, req.GatewayOrderID)
			if lookupErr == nil && existing.Status == enum.PaymentStatusPaid {
				if err := h.store.MarkOrderPaid(ctx, existing.OrderID); err != nil {
					respondInternal(w, "mark order paid", err)
					return
				}
				respond(w, http.StatusOK, toPaymentResponse(existing), "payment already settled")
				return
			}
			respondError(w, http.StatusNotFound, "unknown gateway order")
			return
		}
		respondInternal(w, "mark payment paid", err)
		return
	}

	if err := store.MarkOrderPaid(ctx, payment.OrderID); err != nil {
		respondInternal(w, "mark order paid", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		respondInternal(w, "commit tx", err)
		return
	}

	if order, err := h.store.GetOrderByID(ctx, payment.OrderID); err == nil {
		h.hub.Broadcast(order.RestaurantID, ws.EventOrderPaid, map[string]interface{}{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"payment":      toPaymentResponse(payment),
		})
	}

	respond(w, http.StatusOK, toPaymentResponse(payment), "payment settled")
}
