package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/middleware"
	"github.com/tabledine/api/internal/notify"
	"github.com/tabledine/api/internal/service"
	"github.com/tabledine/api/internal/ws"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderReadStore defines the DB methods the order endpoints read through.
// Satisfied by *database.Queries.
type OrderReadStore interface {
	restaurantGetter
	GetRestaurantBySlug(ctx context.Context, slug string) (database.Restaurant, error)
	GetTableByQrSlug(ctx context.Context, arg database.GetTableByQrSlugParams) (database.Table, error)
	ListFoodItemsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]database.FoodItem, error)
	ListVariantsByFoodItem(ctx context.Context, foodItemID uuid.UUID) ([]database.FoodVariant, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrdersByRestaurant(ctx context.Context, arg database.ListOrdersByRestaurantParams) ([]database.Order, error)
	GetLatestPaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

type OrderHandler struct {
	store  OrderReadStore
	orders *service.OrderService
	hub    *ws.Hub
	mailer notify.Mailer
}

func NewOrderHandler(store OrderReadStore, orders *service.OrderService, hub *ws.Hub, mailer notify.Mailer) *OrderHandler {
	return &OrderHandler{store: store, orders: orders, hub: hub, mailer: mailer}
}

// RegisterStaffRoutes mounts the authenticated order list under a restaurant.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/", h.ListForRestaurant)
}

// RegisterPublicRoutes mounts the slug-scoped diner routes. These go last in
// the router because {restaurantSlug} matches any top-level path segment.
// Amendments and status transitions require a staff or owner token even
// though they live on the public tree.
//
// The {ref} segment is a table QR slug on POST and an order id on the other
// methods; chi permits only one wildcard name per path position.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Get("/{restaurantSlug}", h.PublicMenu)
	r.Get("/{restaurantSlug}/table/{tableQrSlug}", h.PublicTable)
	r.Post("/{restaurantSlug}/{ref}", h.Create)
	r.Get("/{restaurantSlug}/{ref}", h.Get)
	r.Get("/{restaurantSlug}/{ref}/payment", h.GetPayment)
	r.With(authenticate).Patch("/{restaurantSlug}/{ref}", h.Amend)
	r.With(authenticate).Patch("/{restaurantSlug}/{ref}/status", h.Transition)
}

type cartLinePayload struct {
	FoodItemID  string `json:"food_item_id"`
	VariantName string `json:"variant_name"`
	Quantity    int32  `json:"quantity"`
}

type createOrderRequest struct {
	Method string            `json:"method"`
	Notes  string            `json:"notes"`
	Items  []cartLinePayload `json:"items"`
}

type orderItemResponse struct {
	ID          string  `json:"id"`
	FoodItemID  string  `json:"food_item_id"`
	VariantName *string `json:"variant_name"`
	Quantity    int32   `json:"quantity"`
	Price       string  `json:"price"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	OrderNumber    string              `json:"order_number"`
	TableID        string              `json:"table_id"`
	Status         string              `json:"status"`
	IsPaid         bool                `json:"is_paid"`
	KitchenStaffID *string             `json:"kitchen_staff_id"`
	Notes          *string             `json:"notes"`
	Subtotal       string              `json:"subtotal"`
	TaxAmount      string              `json:"tax_amount"`
	TotalAmount    string              `json:"total_amount"`
	Items          []orderItemResponse `json:"items,omitempty"`
	CreatedAt      string              `json:"created_at"`
}

type paymentResponse struct {
	ID             string  `json:"id"`
	Method         string  `json:"method"`
	Status         string  `json:"status"`
	TotalAmount    string  `json:"total_amount"`
	Gateway        *string `json:"gateway"`
	GatewayOrderID *string `json:"gateway_order_id"`
}

func toOrderItemResponse(it database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:         it.ID.String(),
		FoodItemID: it.FoodItemID.String(),
		Quantity:   it.Quantity,
		Price:      numericToString(it.Price),
	}
	if it.VariantName.Valid {
		resp.VariantName = &it.VariantName.String
	}
	return resp
}

func toOrderResponse(order database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:          order.ID.String(),
		OrderNumber: order.OrderNumber,
		TableID:     order.TableID.String(),
		Status:      order.Status,
		IsPaid:      order.IsPaid,
		Subtotal:    numericToString(order.Subtotal),
		TaxAmount:   numericToString(order.TaxAmount),
		TotalAmount: numericToString(order.TotalAmount),
		CreatedAt:   order.CreatedAt.Format(time.RFC3339),
	}
	if order.KitchenStaffID.Valid {
		id := uuid.UUID(order.KitchenStaffID.Bytes).String()
		resp.KitchenStaffID = &id
	}
	if order.Notes.Valid {
		resp.Notes = &order.Notes.String
	}
	for _, it := range items {
		resp.Items = append(resp.Items, toOrderItemResponse(it))
	}
	return resp
}

func toPaymentResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:          p.ID.String(),
		Method:      p.Method,
		Status:      p.Status,
		TotalAmount: numericToString(p.TotalAmount),
	}
	if p.PaymentGateway.Valid {
		resp.Gateway = &p.PaymentGateway.String
	}
	if p.GatewayOrderID.Valid {
		resp.GatewayOrderID = &p.GatewayOrderID.String
	}
	return resp
}

func toCartLines(items []cartLinePayload) []service.CartLine {
	lines := make([]service.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, service.CartLine{
			FoodItemID:  it.FoodItemID,
			VariantName: it.VariantName,
			Quantity:    it.Quantity,
		})
	}
	return lines
}

// restaurantBySlug resolves the {restaurantSlug} URL param. Writes the error
// response itself; callers bail out on ok == false.
func (h *OrderHandler) restaurantBySlug(w http.ResponseWriter, r *http.Request) (database.Restaurant, bool) {
	slug := chi.URLParam(r, "restaurantSlug")
	restaurant, err := h.store.GetRestaurantBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "restaurant not found")
			return database.Restaurant{}, false
		}
		respondInternal(w, "get restaurant", err)
		return database.Restaurant{}, false
	}
	return restaurant, true
}

// PublicMenu is what a diner sees after scanning a QR code: the restaurant's
// profile and its available items.
func (h *OrderHandler) PublicMenu(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := h.restaurantBySlug(w, r)
	if !ok {
		return
	}

	items, err := h.store.ListFoodItemsByRestaurant(r.Context(), restaurant.ID)
	if err != nil {
		respondInternal(w, "list food items", err)
		return
	}

	menu := make([]foodItemResponse, 0, len(items))
	for _, item := range items {
		if !item.IsAvailable {
			continue
		}
		var variants []database.FoodVariant
		if item.HasVariants {
			variants, err = h.store.ListVariantsByFoodItem(r.Context(), item.ID)
			if err != nil {
				respondInternal(w, "list variants", err)
				return
			}
		}
		menu = append(menu, toFoodItemResponse(item, variants))
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"restaurant": toRestaurantResponse(restaurant),
		"menu":       menu,
	}, "")
}

// PublicTable lets the diner page confirm the scanned table before ordering.
func (h *OrderHandler) PublicTable(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := h.restaurantBySlug(w, r)
	if !ok {
		return
	}

	table, err := h.store.GetTableByQrSlug(r.Context(), database.GetTableByQrSlugParams{
		RestaurantID: restaurant.ID,
		QrSlug:       chi.URLParam(r, "tableQrSlug"),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "table not found")
			return
		}
		respondInternal(w, "get table", err)
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"table_name":  table.TableName,
		"seats":       table.Seats,
		"is_occupied": table.IsOccupied,
	}, "")
}

// Create places a diner order from a scanned table QR code.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := h.restaurantBySlug(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		Restaurant:  restaurant,
		TableQrSlug: chi.URLParam(r, "ref"),
		Method:      req.Method,
		Notes:       req.Notes,
		Lines:       toCartLines(req.Items),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	order := toOrderResponse(result.Order, result.Items)
	h.hub.Broadcast(restaurant.ID, ws.EventOrderCreated, order)

	respond(w, http.StatusCreated, map[string]interface{}{
		"order":      order,
		"payment":    toPaymentResponse(result.Payment),
		"table_name": result.Table.TableName,
	}, "order placed")
}

// Get is the diner's order tracking read.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := h.restaurantBySlug(w, r)
	if !ok {
		return
	}
	order, ok := h.loadOrder(w, r, restaurant.ID)
	if !ok {
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		respondInternal(w, "list order items", err)
		return
	}

	respond(w, http.StatusOK, toOrderResponse(order, items), "")
}

// GetPayment exposes the latest payment attempt for the diner's checkout page.
func (h *OrderHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := h.restaurantBySlug(w, r)
	if !ok {
		return
	}
	order, ok := h.loadOrder(w, r, restaurant.ID)
	if !ok {
		return
	}

	payment, err := h.store.GetLatestPaymentByOrder(r.Context(), order.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "no payment attempt for order")
			return
		}
		respondInternal(w, "get payment", err)
		return
	}

	respond(w, http.StatusOK, toPaymentResponse(payment), "")
}

type amendOrderRequest struct {
	Notes string            `json:"notes"`
	Items []cartLinePayload `json:"items"`
}

// Amend lets staff change a pending order before the kitchen starts on it.
// Same access rule as Transition: owner, home staff, or admin.
func (h *OrderHandler) Amend(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	restaurant, ok := h.restaurantBySlug(w, r)
	if !ok {
		return
	}
	if !canWorkRestaurant(claims, restaurant) {
		respondError(w, http.StatusForbidden, "restaurant access denied")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "ref"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req amendOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.AmendOrder(r.Context(), service.AmendOrderRequest{
		Restaurant: restaurant,
		OrderID:    orderID,
		Notes:      req.Notes,
		Lines:      toCartLines(req.Items),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	order := toOrderResponse(result.Order, result.Items)
	h.hub.Broadcast(restaurant.ID, ws.EventOrderAmended, order)

	respond(w, http.StatusOK, map[string]interface{}{
		"order":   order,
		"payment": toPaymentResponse(result.Payment),
	}, "order updated")
}

type transitionRequest struct {
	Status string `json:"status"`
}

// Transition moves an order through the kitchen state machine. Staff are
// limited to their home restaurant; owners to their own restaurants.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	restaurant, ok := h.restaurantBySlug(w, r)
	if !ok {
		return
	}
	if !canWorkRestaurant(claims, restaurant) {
		respondError(w, http.StatusForbidden, "restaurant access denied")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "ref"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orders.Transition(r.Context(), service.TransitionRequest{
		RestaurantID: restaurant.ID,
		OrderID:      orderID,
		NewStatus:    req.Status,
		StaffID:      claims.UserID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := toOrderResponse(*order, nil)
	h.hub.Broadcast(restaurant.ID, ws.EventOrderStatusChanged, resp)

	if order.Status == enum.OrderStatusCompleted {
		h.notifyCompletion(restaurant, *order)
	}

	respond(w, http.StatusOK, resp, "order updated")
}

// notifyCompletion emails the owner a settlement receipt. Best effort; the
// mailer logs its own failures.
func (h *OrderHandler) notifyCompletion(restaurant database.Restaurant, order database.Order) {
	owner, err := h.store.GetUserByID(context.Background(), restaurant.OwnerID)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("Order %s completed", order.OrderNumber)
	body := fmt.Sprintf("Order %s at %s was completed and settled for %s.",
		order.OrderNumber, restaurant.Name, numericToString(order.TotalAmount))
	go h.mailer.Send(owner.Email, subject, body)
}

// ListForRestaurant is the staff dashboard read: newest first, optionally
// filtered by status.
func (h *OrderHandler) ListForRestaurant(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	restaurantID, err := uuid.Parse(chi.URLParam(r, "restaurantID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid restaurant id")
		return
	}
	restaurant, err := h.store.GetRestaurantByID(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		respondInternal(w, "get restaurant", err)
		return
	}
	if !canWorkRestaurant(claims, restaurant) {
		respondError(w, http.StatusForbidden, "restaurant access denied")
		return
	}

	status := pgtype.Text{}
	if s := r.URL.Query().Get("status"); s != "" {
		switch s {
		case enum.OrderStatusPending, enum.OrderStatusPreparing, enum.OrderStatusReady,
			enum.OrderStatusServed, enum.OrderStatusCompleted, enum.OrderStatusCancelled:
			status = pgtype.Text{String: s, Valid: true}
		default:
			respondError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}

	limit := int32(defaultOrderPageSize)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxOrderPageSize {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = int32(n)
	}
	offset := int32(0)
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = int32(n)
	}

	orders, err := h.store.ListOrdersByRestaurant(r.Context(), database.ListOrdersByRestaurantParams{
		RestaurantID: restaurant.ID,
		Status:       status,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		respondInternal(w, "list orders", err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o, nil))
	}
	respond(w, http.StatusOK, out, "")
}

func (h *OrderHandler) loadOrder(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID) (database.Order, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "ref"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return database.Order{}, false
	}
	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:           orderID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "order not found")
			return database.Order{}, false
		}
		respondInternal(w, "get order", err)
		return database.Order{}, false
	}
	return order, true
}
