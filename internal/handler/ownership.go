package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabledine/api/internal/auth"
	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/middleware"
)

type restaurantGetter interface {
	GetRestaurantByID(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
}

// ownedRestaurant loads the restaurant from the {restaurantID} URL param and
// verifies the caller owns it. Admins bypass the ownership check. Writes the
// error response itself; callers bail out on ok == false.
func ownedRestaurant(w http.ResponseWriter, r *http.Request, store restaurantGetter) (database.Restaurant, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return database.Restaurant{}, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "restaurantID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid restaurant id")
		return database.Restaurant{}, false
	}

	restaurant, err := store.GetRestaurantByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "restaurant not found")
			return database.Restaurant{}, false
		}
		respondInternal(w, "get restaurant", err)
		return database.Restaurant{}, false
	}

	if claims.Role != enum.UserRoleAdmin && restaurant.OwnerID != claims.UserID {
		respondError(w, http.StatusForbidden, "restaurant access denied")
		return database.Restaurant{}, false
	}

	return restaurant, true
}

// canWorkRestaurant reports whether the caller may act on the restaurant's
// orders: its owner, its staff, or an admin.
func canWorkRestaurant(claims *auth.Claims, restaurant database.Restaurant) bool {
	switch claims.Role {
	case enum.UserRoleAdmin:
		return true
	case enum.UserRoleOwner:
		return restaurant.OwnerID == claims.UserID
	case enum.UserRoleStaff:
		return restaurant.ID == claims.RestaurantID
	}
	return false
}
