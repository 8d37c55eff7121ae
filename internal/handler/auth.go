package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/crypto/bcrypt"

	"github.com/tabledine/api/internal/auth"
	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/service"
)

const (
	trialPeriod       = 14 * 24 * time.Hour
	minPasswordLength = 8
)

// AuthStore defines the DB methods authentication needs.
// Satisfied by *database.Queries (and its WithTx variant).
type AuthStore interface {
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	CreateSubscription(ctx context.Context, arg database.CreateSubscriptionParams) (database.Subscription, error)
}

// NewAuthStore creates an AuthStore from a DBTX (pool or tx).
type NewAuthStore func(db database.DBTX) AuthStore

type AuthHandler struct {
	store     AuthStore
	pool      service.TxBeginner
	newStore  NewAuthStore
	jwtSecret string
}

func NewAuthHandler(store AuthStore, pool service.TxBeginner, newStore NewAuthStore, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: store, pool: pool, newStore: newStore, jwtSecret: jwtSecret}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
}

type signupRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	Role         string  `json:"role"`
	RestaurantID *string `json:"restaurant_id"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// Signup registers a restaurant owner and opens a 14-day trial subscription.
// The user and the subscription are created in one transaction so a partial
// signup cannot exist.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
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
		details = append(details, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
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

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		respondInternal(w, "begin tx", err)
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := h.newStore(tx)

	user, err := store.CreateUser(ctx, database.CreateUserParams{
		Email:          req.Email,
		HashedPassword: string(hashed),
		FullName:       req.FullName,
		Role:           enum.UserRoleOwner,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		respondInternal(w, "create user", err)
		return
	}

	_, err = store.CreateSubscription(ctx, database.CreateSubscriptionParams{
		UserID:               user.ID,
		Plan:                 pgtype.Text{String: enum.PlanStarter, Valid: true},
		IsTrial:              true,
		TrialExpiresAt:       pgtype.Timestamptz{Time: time.Now().Add(trialPeriod), Valid: true},
		IsSubscriptionActive: true,
	})
	if err != nil {
		respondInternal(w, "create subscription", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		respondInternal(w, "commit tx", err)
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, user.ID, uuid.Nil, user.Role)
	if err != nil {
		respondInternal(w, "generate token", err)
		return
	}

	respond(w, http.StatusCreated, authResponse{
		Token: token,
		User:  toUserResponse(user),
	}, "account created")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondInternal(w, "get user", err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	restaurantID := uuid.Nil
	if user.RestaurantID.Valid {
		restaurantID = uuid.UUID(user.RestaurantID.Bytes)
	}

	token, err := auth.GenerateToken(h.jwtSecret, user.ID, restaurantID, user.Role)
	if err != nil {
		respondInternal(w, "generate token", err)
		return
	}

	respond(w, http.StatusOK, authResponse{
		Token: token,
		User:  toUserResponse(user),
	}, "logged in")
}

func toUserResponse(user database.User) userResponse {
	resp := userResponse{
		ID:       user.ID.String(),
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	}
	if user.RestaurantID.Valid {
		id := uuid.UUID(user.RestaurantID.Bytes).String()
		resp.RestaurantID = &id
	}
	return resp
}
