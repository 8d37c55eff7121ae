package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/service"
)

const maxVariantsPerItem = 6

// FoodItemStore defines the DB methods menu management needs.
// Satisfied by *database.Queries (and its WithTx variant).
type FoodItemStore interface {
	restaurantGetter
	CreateFoodItem(ctx context.Context, arg database.CreateFoodItemParams) (database.FoodItem, error)
	GetFoodItem(ctx context.Context, arg database.GetFoodItemParams) (database.FoodItem, error)
	ListFoodItemsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]database.FoodItem, error)
	CountFoodItemsByRestaurant(ctx context.Context, restaurantID uuid.UUID) (int64, error)
	UpdateFoodItem(ctx context.Context, arg database.UpdateFoodItemParams) (database.FoodItem, error)
	DeleteFoodItem(ctx context.Context, arg database.DeleteFoodItemParams) (int64, error)
	CreateFoodVariant(ctx context.Context, arg database.CreateFoodVariantParams) (database.FoodVariant, error)
	ListVariantsByFoodItem(ctx context.Context, foodItemID uuid.UUID) ([]database.FoodVariant, error)
	DeleteVariantsByFoodItem(ctx context.Context, foodItemID uuid.UUID) error
}

// NewFoodItemStore creates a FoodItemStore from a DBTX (pool or tx).
type NewFoodItemStore func(db database.DBTX) FoodItemStore

type FoodItemHandler struct {
	store       FoodItemStore
	pool        service.TxBeginner
	newStore    NewFoodItemStore
	entitlement *service.EntitlementService
}

func NewFoodItemHandler(store FoodItemStore, pool service.TxBeginner, newStore NewFoodItemStore, entitlement *service.EntitlementService) *FoodItemHandler {
	return &FoodItemHandler{store: store, pool: pool, newStore: newStore, entitlement: entitlement}
}

func (h *FoodItemHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{foodItemID}", h.Get)
	r.Put("/{foodItemID}", h.Update)
	r.Delete("/{foodItemID}", h.Delete)
}

type variantPayload struct {
	Name            string  `json:"name"`
	Price           string  `json:"price"`
	DiscountedPrice *string `json:"discounted_price"`
	IsAvailable     *bool   `json:"is_available"`
}

type foodItemPayload struct {
	FoodName        string           `json:"food_name"`
	Description     *string          `json:"description"`
	Price           *string          `json:"price"`
	DiscountedPrice *string          `json:"discounted_price"`
	Category        *string          `json:"category"`
	IsAvailable     *bool            `json:"is_available"`
	Variants        []variantPayload `json:"variants"`
}

type variantResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Price           string  `json:"price"`
	DiscountedPrice *string `json:"discounted_price"`
	IsAvailable     bool    `json:"is_available"`
	SortOrder       int32   `json:"sort_order"`
}

type foodItemResponse struct {
	ID              string            `json:"id"`
	FoodName        string            `json:"food_name"`
	Description     *string           `json:"description"`
	Price           *string           `json:"price"`
	DiscountedPrice *string           `json:"discounted_price"`
	Category        *string           `json:"category"`
	HasVariants     bool              `json:"has_variants"`
	IsAvailable     bool              `json:"is_available"`
	Variants        []variantResponse `json:"variants"`
}

func toVariantResponse(v database.FoodVariant) variantResponse {
	resp := variantResponse{
		ID:          v.ID.String(),
		Name:        v.Name,
		Price:       numericToString(v.Price),
		IsAvailable: v.IsAvailable,
		SortOrder:   v.SortOrder,
	}
	if v.DiscountedPrice.Valid {
		s := numericToString(v.DiscountedPrice)
		resp.DiscountedPrice = &s
	}
	return resp
}

func toFoodItemResponse(item database.FoodItem, variants []database.FoodVariant) foodItemResponse {
	resp := foodItemResponse{
		ID:          item.ID.String(),
		FoodName:    item.FoodName,
		HasVariants: item.HasVariants,
		IsAvailable: item.IsAvailable,
		Variants:    []variantResponse{},
	}
	if item.Description.Valid {
		resp.Description = &item.Description.String
	}
	if item.Price.Valid {
		s := numericToString(item.Price)
		resp.Price = &s
	}
	if item.DiscountedPrice.Valid {
		s := numericToString(item.DiscountedPrice)
		resp.DiscountedPrice = &s
	}
	if item.Category.Valid {
		resp.Category = &item.Category.String
	}
	for _, v := range variants {
		resp.Variants = append(resp.Variants, toVariantResponse(v))
	}
	return resp
}

func parsePrice(s string) (pgtype.Numeric, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return pgtype.Numeric{}, false
	}
	var n pgtype.Numeric
	if err := n.Scan(d.StringFixed(2)); err != nil {
		return pgtype.Numeric{}, false
	}
	return n, true
}

func parseOptionalPrice(s *string) (pgtype.Numeric, bool) {
	if s == nil || *s == "" {
		return pgtype.Numeric{}, true
	}
	return parsePrice(*s)
}

// validatedFoodItem is a parsed and validated payload ready for persistence.
type validatedFoodItem struct {
	FoodName        string
	Description     pgtype.Text
	Price           pgtype.Numeric
	DiscountedPrice pgtype.Numeric
	Category        pgtype.Text
	HasVariants     bool
	IsAvailable     bool
	Variants        []database.CreateFoodVariantParams
}

// validateFoodItemPayload enforces the menu shape rules: at most six variants,
// unique variant names, and a base price on items without variants.
func validateFoodItemPayload(req foodItemPayload) (validatedFoodItem, []string) {
	var out validatedFoodItem
	var details []string

	out.FoodName = strings.TrimSpace(req.FoodName)
	if out.FoodName == "" {
		details = append(details, "food_name is required")
	}

	out.HasVariants = len(req.Variants) > 0
	if len(req.Variants) > maxVariantsPerItem {
		details = append(details, "an item can have at most 6 variants")
	}

	if !out.HasVariants {
		if req.Price == nil || *req.Price == "" {
			details = append(details, "price is required for items without variants")
		} else if p, ok := parsePrice(*req.Price); ok {
			out.Price = p
		} else {
			details = append(details, "price must be a non-negative decimal")
		}
	} else if req.Price != nil && *req.Price != "" {
		if p, ok := parsePrice(*req.Price); ok {
			out.Price = p
		} else {
			details = append(details, "price must be a non-negative decimal")
		}
	}

	if p, ok := parseOptionalPrice(req.DiscountedPrice); ok {
		out.DiscountedPrice = p
	} else {
		details = append(details, "discounted_price must be a non-negative decimal")
	}

	if req.Description != nil && *req.Description != "" {
		out.Description = pgtype.Text{String: *req.Description, Valid: true}
	}
	if req.Category != nil && *req.Category != "" {
		out.Category = pgtype.Text{String: *req.Category, Valid: true}
	}
	out.IsAvailable = req.IsAvailable == nil || *req.IsAvailable

	seen := make(map[string]bool, len(req.Variants))
	for i, v := range req.Variants {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			details = append(details, "variant name is required")
			continue
		}
		if seen[name] {
			details = append(details, "variant names must be unique")
			continue
		}
		seen[name] = true

		price, ok := parsePrice(v.Price)
		if !ok {
			details = append(details, "variant "+name+": price must be a non-negative decimal")
			continue
		}
		discounted, ok := parseOptionalPrice(v.DiscountedPrice)
		if !ok {
			details = append(details, "variant "+name+": discounted_price must be a non-negative decimal")
			continue
		}

		out.Variants = append(out.Variants, database.CreateFoodVariantParams{
			Name:            name,
			Price:           price,
			DiscountedPrice: discounted,
			IsAvailable:     v.IsAvailable == nil || *v.IsAvailable,
			SortOrder:       int32(i),
		})
	}

	return out, details
}

// Create adds a menu item with its variants in one transaction, gated by the
// owner's plan quota.
func (h *FoodItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	var req foodItemPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	validated, details := validateFoodItemPayload(req)
	if len(details) > 0 {
		respondError(w, http.StatusBadRequest, "validation failed", details...)
		return
	}

	ctx := r.Context()
	sub, err := h.entitlement.ReconcileSubscription(ctx, restaurant.OwnerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	count, err := h.store.CountFoodItemsByRestaurant(ctx, restaurant.ID)
	if err != nil {
		respondInternal(w, "count food items", err)
		return
	}
	if err := h.entitlement.CheckQuota(sub, service.QuotaFoodItems, count); err != nil {
		respondServiceError(w, err)
		return
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		respondInternal(w, "begin tx", err)
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	store := h.newStore(tx)

	item, err := store.CreateFoodItem(ctx, database.CreateFoodItemParams{
		RestaurantID:    restaurant.ID,
		FoodName:        validated.FoodName,
		Description:     validated.Description,
		Price:           validated.Price,
		DiscountedPrice: validated.DiscountedPrice,
		Category:        validated.Category,
		HasVariants:     validated.HasVariants,
		IsAvailable:     validated.IsAvailable,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "a food item with that name already exists")
			return
		}
		respondInternal(w, "create food item", err)
		return
	}

	variants, err := insertVariants(ctx, store, item.ID, validated.Variants)
	if err != nil {
		respondInternal(w, "create variants", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		respondInternal(w, "commit tx", err)
		return
	}

	respond(w, http.StatusCreated, toFoodItemResponse(item, variants), "food item created")
}

func (h *FoodItemHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	items, err := h.store.ListFoodItemsByRestaurant(r.Context(), restaurant.ID)
	if err != nil {
		respondInternal(w, "list food items", err)
		return
	}

	out := make([]foodItemResponse, 0, len(items))
	for _, item := range items {
		var variants []database.FoodVariant
		if item.HasVariants {
			variants, err = h.store.ListVariantsByFoodItem(r.Context(), item.ID)
			if err != nil {
				respondInternal(w, "list variants", err)
				return
			}
		}
		out = append(out, toFoodItemResponse(item, variants))
	}
	respond(w, http.StatusOK, out, "")
}

func (h *FoodItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	item, ok := h.loadItem(w, r, restaurant.ID)
	if !ok {
		return
	}

	var variants []database.FoodVariant
	if item.HasVariants {
		var err error
		variants, err = h.store.ListVariantsByFoodItem(r.Context(), item.ID)
		if err != nil {
			respondInternal(w, "list variants", err)
			return
		}
	}
	respond(w, http.StatusOK, toFoodItemResponse(item, variants), "")
}

// Update replaces the item and its whole variant set in one transaction.
func (h *FoodItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}
	item, ok := h.loadItem(w, r, restaurant.ID)
	if !ok {
		return
	}

	var req foodItemPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	validated, details := validateFoodItemPayload(req)
	if len(details) > 0 {
		respondError(w, http.StatusBadRequest, "validation failed", details...)
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

	updated, err := store.UpdateFoodItem(ctx, database.UpdateFoodItemParams{
		ID:              item.ID,
		RestaurantID:    restaurant.ID,
		FoodName:        validated.FoodName,
		Description:     validated.Description,
		Price:           validated.Price,
		DiscountedPrice: validated.DiscountedPrice,
		Category:        validated.Category,
		HasVariants:     validated.HasVariants,
		IsAvailable:     validated.IsAvailable,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "a food item with that name already exists")
			return
		}
		respondInternal(w, "update food item", err)
		return
	}

	if err := store.DeleteVariantsByFoodItem(ctx, item.ID); err != nil {
		respondInternal(w, "delete variants", err)
		return
	}
	variants, err := insertVariants(ctx, store, item.ID, validated.Variants)
	if err != nil {
		respondInternal(w, "create variants", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		respondInternal(w, "commit tx", err)
		return
	}

	respond(w, http.StatusOK, toFoodItemResponse(updated, variants), "food item updated")
}

func (h *FoodItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}
	item, ok := h.loadItem(w, r, restaurant.ID)
	if !ok {
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

	if err := store.DeleteVariantsByFoodItem(ctx, item.ID); err != nil {
		respondInternal(w, "delete variants", err)
		return
	}
	affected, err := store.DeleteFoodItem(ctx, database.DeleteFoodItemParams{
		ID:           item.ID,
		RestaurantID: restaurant.ID,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			respondError(w, http.StatusConflict, "food item appears on existing orders; mark it unavailable instead")
			return
		}
		respondInternal(w, "delete food item", err)
		return
	}
	if affected == 0 {
		respondError(w, http.StatusNotFound, "food item not found")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		respondInternal(w, "commit tx", err)
		return
	}

	respond(w, http.StatusOK, nil, "food item deleted")
}

func (h *FoodItemHandler) loadItem(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID) (database.FoodItem, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "foodItemID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid food item id")
		return database.FoodItem{}, false
	}
	item, err := h.store.GetFoodItem(r.Context(), database.GetFoodItemParams{
		ID:           id,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "food item not found")
			return database.FoodItem{}, false
		}
		respondInternal(w, "get food item", err)
		return database.FoodItem{}, false
	}
	return item, true
}

func insertVariants(ctx context.Context, store FoodItemStore, foodItemID uuid.UUID, params []database.CreateFoodVariantParams) ([]database.FoodVariant, error) {
	var out []database.FoodVariant
	for _, p := range params {
		p.FoodItemID = foodItemID
		v, err := store.CreateFoodVariant(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
