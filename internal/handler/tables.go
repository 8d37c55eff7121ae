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
	qrcode "github.com/skip2/go-qrcode"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/service"
)

const qrImageSize = 256

// TableStore defines the DB methods table management needs.
// Satisfied by *database.Queries.
type TableStore interface {
	restaurantGetter
	ListTablesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]database.Table, error)
	GetTableByID(ctx context.Context, arg database.GetTableByIDParams) (database.Table, error)
}

type TableHandler struct {
	store         TableStore
	tables        *service.TableService
	publicBaseURL string
}

func NewTableHandler(store TableStore, tables *service.TableService, publicBaseURL string) *TableHandler {
	return &TableHandler{
		store:         store,
		tables:        tables,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{tableID}/qr.png", h.QRCode)
}

type createTableRequest struct {
	TableName string `json:"table_name"`
	Seats     int32  `json:"seats"`
}

type tableResponse struct {
	ID             string  `json:"id"`
	TableName      string  `json:"table_name"`
	QrSlug         string  `json:"qr_slug"`
	QrURL          string  `json:"qr_url"`
	Seats          int32   `json:"seats"`
	IsOccupied     bool    `json:"is_occupied"`
	CurrentOrderID *string `json:"current_order_id"`
	CreatedAt      string  `json:"created_at"`
}

func (h *TableHandler) toTableResponse(restaurant database.Restaurant, table database.Table) tableResponse {
	resp := tableResponse{
		ID:         table.ID.String(),
		TableName:  table.TableName,
		QrSlug:     table.QrSlug,
		QrURL:      h.diningURL(restaurant.Slug, table.QrSlug),
		Seats:      table.Seats,
		IsOccupied: table.IsOccupied,
		CreatedAt:  table.CreatedAt.Format(time.RFC3339),
	}
	if table.CurrentOrderID.Valid {
		id := uuid.UUID(table.CurrentOrderID.Bytes).String()
		resp.CurrentOrderID = &id
	}
	return resp
}

// diningURL is the address a diner lands on after scanning the table's code.
func (h *TableHandler) diningURL(restaurantSlug, qrSlug string) string {
	return fmt.Sprintf("%s/%s/%s", h.publicBaseURL, restaurantSlug, qrSlug)
}

func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.TableName = strings.TrimSpace(req.TableName)
	var details []string
	if req.TableName == "" {
		details = append(details, "table_name is required")
	}
	if req.Seats <= 0 {
		details = append(details, "seats must be positive")
	}
	if len(details) > 0 {
		respondError(w, http.StatusBadRequest, "validation failed", details...)
		return
	}

	table, err := h.tables.CreateTable(r.Context(), service.CreateTableRequest{
		Restaurant: restaurant,
		TableName:  req.TableName,
		Seats:      req.Seats,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusCreated, h.toTableResponse(restaurant, table), "table created")
}

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	tables, err := h.store.ListTablesByRestaurant(r.Context(), restaurant.ID)
	if err != nil {
		respondInternal(w, "list tables", err)
		return
	}

	out := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		out = append(out, h.toTableResponse(restaurant, t))
	}
	respond(w, http.StatusOK, out, "")
}

// QRCode renders the table's dining URL as a printable PNG.
func (h *TableHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := ownedRestaurant(w, r, h.store)
	if !ok {
		return
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "tableID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid table id")
		return
	}

	table, err := h.store.GetTableByID(r.Context(), database.GetTableByIDParams{
		ID:           tableID,
		RestaurantID: restaurant.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, "table not found")
			return
		}
		respondInternal(w, "get table", err)
		return
	}

	png, err := qrcode.Encode(h.diningURL(restaurant.Slug, table.QrSlug), qrcode.Medium, qrImageSize)
	if err != nil {
		respondInternal(w, "encode qr", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", table.TableName+".png"))
	w.WriteHeader(http.StatusOK)
	w.Write(png) //nolint:errcheck
}
