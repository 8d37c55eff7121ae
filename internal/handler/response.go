// Package handler holds the HTTP layer. Handlers parse and validate input,
// call the store or service layer, and render the response envelope; business
// rules live below them.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tabledine/api/internal/service"
)

// successEnvelope is the shape of every 2xx response body.
type successEnvelope struct {
	Status  int         `json:"status"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Success bool        `json:"success"`
}

// errorEnvelope is the shape of every non-2xx response body.
type errorEnvelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func respond(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, successEnvelope{
		Status:  status,
		Data:    data,
		Message: message,
		Success: true,
	})
}

func respondError(w http.ResponseWriter, status int, message string, details ...string) {
	if details == nil {
		details = []string{}
	}
	writeJSON(w, status, errorEnvelope{
		Success: false,
		Message: message,
		Errors:  details,
	})
}

func respondInternal(w http.ResponseWriter, context string, err error) {
	log.Printf("ERROR: %s: %v", context, err)
	respondError(w, http.StatusInternalServerError, "something went wrong")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: encode response: %v", err)
	}
}

// respondServiceError maps the service layer's sentinel errors onto HTTP
// statuses. Anything unmapped is treated as an internal failure.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidFoodItemID),
		errors.Is(err, service.ErrInvalidMethod),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrVariantRequired),
		errors.Is(err, service.ErrVariantNotOffered),
		errors.Is(err, service.ErrVariantUnavailable):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrFoodItemNotFound),
		errors.Is(err, service.ErrVariantNotFound),
		errors.Is(err, service.ErrTableNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrNoSubscription):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRestaurantClosed),
		errors.Is(err, service.ErrSubscriptionExpired),
		errors.Is(err, service.ErrQuotaExceeded),
		errors.Is(err, service.ErrNotClaimOwner):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrTableOccupied),
		errors.Is(err, service.ErrTableNameTaken),
		errors.Is(err, service.ErrAlreadyInState),
		errors.Is(err, service.ErrOrderTerminal),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrOrderNotAmendable),
		errors.Is(err, service.ErrQrSlugExhausted):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrGatewayFailure):
		log.Printf("ERROR: payment gateway: %v", err)
		respondError(w, http.StatusBadGateway, "payment gateway failure")
	default:
		respondInternal(w, "service call", err)
	}
}

func numericToString(n pgtype.Numeric) string {
	return service.NumericToString(n)
}
