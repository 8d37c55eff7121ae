package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/middleware"
	"github.com/tabledine/api/internal/service"
)

// Slugs end up in diner-facing URLs and on printed QR codes, so they are kept
// short and unambiguous.
var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,6})[a-z0-9]$`)

// RestaurantStore defines the DB methods restaurant management needs.
// Satisfied by *database.Queries.
type RestaurantStore interface {
	restaurantGetter
	CreateRestaurant(ctx context.Context, arg database.CreateRestaurantParams) (database.Restaurant, error)
	ListRestaurantsByOwner(ctx context.Context, ownerID uuid.UUID) ([]database.Restaurant, error)
	UpdateRestaurant(ctx context.Context, arg database.UpdateRestaurantParams) (database.Restaurant, error)
	CountRestaurantsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	ListStaffByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]database.User, error)
}

type RestaurantHandler struct {
	store       RestaurantStore
	entitlement *service.EntitlementService
}

func NewRestaurantHandler(store RestaurantStore, entitlement *service.EntitlementService) *RestaurantHandler {
	return &RestaurantHandler{store: store, entitlement: entitlement}
}

func (h *RestaurantHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{restaurantID}", h.Get)
	r.Put("/{restaurantID}", h.Update)
	r.Post("/{restaurantID}/staff", h.CreateStaff)
	r.Get("/{restaurantID}/staff", h.ListStaff)
}

type restaurantPayload struct {
	Name                 string   `json:"name"`
	Slug                 string   `json:"slug"`
	IsCurrentlyOpen      *bool    `json:"is_currently_open"`
	TaxRate              string   `json:"tax_rate"`
	TaxLabel             string   `json:"tax_label"`
	IsTaxIncludedInPrice *bool    `json:"is_tax_included_in_price"`
	Categories           []string `json:"categories"`
}

type restaurantResponse struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Slug                 string   `json:"slug"`
	IsCurrentlyOpen      bool     `json:"is_currently_open"`
	TaxRate              string   `json:"tax_rate"`
	TaxLabel             string   `json:"tax_label"`
	IsTaxIncludedInPrice bool     `json:"is_tax_included_in_price"`
	Categories           []string `json:"categories"`
	CreatedAt            string   `json:"created_at"`
}

func toRestaurantResponse(rest database.Restaurant) restaurantResponse {
	categories := rest.Categories
	if categories == nil {
		categories = []string{}
	}
	return restaurantResponse{
		ID:                   rest.ID.String(),
		Name:                 rest.Name,
		Slug:                 rest.Slug,
		IsCurrentlyOpen:      rest.IsCurrentlyOpen,
		TaxRate:              numericToString(rest.TaxRate),
		TaxLabel:             rest.TaxLabel,
		IsTaxIncludedInPrice: rest.IsTaxIncludedInPrice,
		Categories:           categories,
		CreatedAt:            rest.CreatedAt.Format(time.RFC3339),
	}
}

func parseTaxRate(s string) (pgtype.Numeric, bool) {
	if s == "" {
		s = "0"
	}
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

// Create opens a restaurant under the owner's plan quota.
func (h *RestaurantHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req restaurantPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))

	var details []string
	if req.Name == "" {
		details = append(details, "name is required")
	}
	if !slugPattern.MatchString(req.Slug) {
		details = append(details, "slug must be 3-8 characters of lowercase letters, digits and hyphens")
	}
	taxRate, ok := parseTaxRate(req.TaxRate)
	if !ok {
		details = append(details, "tax_rate must be a non-negative decimal")
	}
	if len(details) > 0 {
		respondError(w, http.StatusBadRequest, "validation failed", details...)
		return
	}

	ctx := r.Context()
	sub, err := h.entitlement.ReconcileSubscription(ctx, claims.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	count, err := h.store.CountRestaurantsByOwner(ctx, claims.UserID)
	if err != nil {
		respondInternal(w, "count restaurants", err)
		return
	}
	if err := h.entitlement.CheckQuota(sub, service.QuotaRestaurants, count); err != nil {
		respondServiceError(w, err)
		return
	}

	taxIncluded := req.IsTaxIncludedInPrice != nil && *req.IsTaxIncludedInPrice

	restaurant, err := h.store.CreateRestaurant(ctx, database.CreateRestaurantParams{
		OwnerID:              claims.UserID,
		Name:                 req.Name,
		Slug:                 req.Slug,
		TaxRate:              taxRate,
		TaxLabel:             req.TaxLabel,
		IsTaxIncludedInPrice: taxIncluded,
		Categories:           req.Categories,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "slug already taken")
			return
		}
		respondInternal(w, "create restaurant", err)
		return
	}

	respond(w, http.StatusCreated, toRestaurantResponse(restaurant), "restaurant created")
}

func (h *RestaurantHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	restaurants, err := h.store.ListRestaurantsByOwner(r.Context(), claims.UserID)
	if err != nil {
		respondInternal(w, "list restaurants", err)
		return
	}

	out := make([]restaurantResponse, 0, len(restaurants))
	for _, rest := range restaurants {
		out = append(out, toRestaurantResponse(rest))
	}
	respond(w, http.StatusOK, out, "")
}

func (h *RestaurantHandler) Get(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}
	respond(w, http.StatusOK, toRestaurantResponse(restaurant), "")
}

func (h *RestaurantHandler) Update(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	var req restaurantPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Partial update: absent fields keep their stored values. The slug is
	// immutable because printed QR codes embed it.
	name := restaurant.Name
	if strings.TrimSpace(req.Name) != "" {
		name = strings.TrimSpace(req.Name)
	}
	isOpen := restaurant.IsCurrentlyOpen
	if req.IsCurrentlyOpen != nil {
		isOpen = *req.IsCurrentlyOpen
	}
	taxRate := restaurant.TaxRate
	if req.TaxRate != "" {
		parsed, ok := parseTaxRate(req.TaxRate)
		if !ok {
			respondError(w, http.StatusBadRequest, "tax_rate must be a non-negative decimal")
			return
		}
		taxRate = parsed
	}
	taxLabel := restaurant.TaxLabel
	if req.TaxLabel != "" {
		taxLabel = req.TaxLabel
	}
	categories := restaurant.Categories
	if req.Categories != nil {
		categories = req.Categories
	}
	taxIncluded := restaurant.IsTaxIncludedInPrice
	if req.IsTaxIncludedInPrice != nil {
		taxIncluded = *req.IsTaxIncludedInPrice
	}

	updated, err := h.store.UpdateRestaurant(r.Context(), database.UpdateRestaurantParams{
		ID:                   restaurant.ID,
		Name:                 name,
		IsCurrentlyOpen:      isOpen,
		TaxRate:              taxRate,
		TaxLabel:             taxLabel,
		IsTaxIncludedInPrice: taxIncluded,
		Categories:           categories,
	})
	if err != nil {
		respondInternal(w, "update restaurant", err)
		return
	}

	respond(w, http.StatusOK, toRestaurantResponse(updated), "restaurant updated")
}

type createStaffRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateStaff registers a kitchen staff account pinned to the restaurant.
func (h *RestaurantHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)

	var details []string
	if req.FullName == "" {
		details = append(details, "full_name is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		details = append(details, "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		details = append(details, "password too short")
	}
	if len(details) > 0 {
		respondError(w, http.StatusBadRequest, "validation failed", details...)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondInternal(w, "hash password", err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), database.CreateUserParams{
		Email:          req.Email,
		HashedPassword: string(hashed),
		FullName:       req.FullName,
		Role:           enum.UserRoleStaff,
		RestaurantID:   pgtype.UUID{Bytes: restaurant.ID, Valid: true},
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		respondInternal(w, "create staff", err)
		return
	}

	respond(w, http.StatusCreated, toUserResponse(user), "staff account created")
}

func (h *RestaurantHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	staff, err := h.store.ListStaffByRestaurant(r.Context(), restaurant.ID)
	if err != nil {
		respondInternal(w, "list staff", err)
		return
	}

	out := make([]userResponse, 0, len(staff))
	for _, u := range staff {
		out = append(out, toUserResponse(u))
	}
	respond(w, http.StatusOK, out, "")
}
