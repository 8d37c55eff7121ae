package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tabledine/api/internal/database"
)

const (
	qrSlugLength      = 6
	maxQrSlugAttempts = 5
)

// Errors returned by table provisioning.
var (
	ErrTableNameTaken  = errors.New("table name already used in restaurant")
	ErrQrSlugExhausted = errors.New("could not generate a unique qr slug, retry")
)

// TableStore defines the DB methods table provisioning needs.
// Satisfied by *database.Queries.
type TableStore interface {
	CreateTable(ctx context.Context, arg database.CreateTableParams) (database.Table, error)
	CountTablesByRestaurant(ctx context.Context, restaurantID uuid.UUID) (int64, error)
}

// TableService provisions tables with their QR slugs.
type TableService struct {
	store       TableStore
	entitlement *EntitlementService
}

func NewTableService(store TableStore, entitlement *EntitlementService) *TableService {
	return &TableService{store: store, entitlement: entitlement}
}

// CreateTableRequest is the validated input for provisioning a table.
type CreateTableRequest struct {
	Restaurant database.Restaurant
	TableName  string
	Seats      int32
}

// CreateTable provisions a table under the owner's plan quota with a random
// QR slug. Slug collisions are resolved by regenerating; after
// maxQrSlugAttempts the caller gets a retryable error rather than a loop.
func (s *TableService) CreateTable(ctx context.Context, req CreateTableRequest) (database.Table, error) {
	sub, err := s.entitlement.ReconcileSubscription(ctx, req.Restaurant.OwnerID)
	if err != nil {
		return database.Table{}, err
	}

	count, err := s.store.CountTablesByRestaurant(ctx, req.Restaurant.ID)
	if err != nil {
		return database.Table{}, fmt.Errorf("count tables: %w", err)
	}
	if err := s.entitlement.CheckQuota(sub, QuotaTables, count); err != nil {
		return database.Table{}, err
	}

	for attempt := 0; attempt < maxQrSlugAttempts; attempt++ {
		slug, err := randomQrSlug()
		if err != nil {
			return database.Table{}, fmt.Errorf("generate qr slug: %w", err)
		}

		table, err := s.store.CreateTable(ctx, database.CreateTableParams{
			RestaurantID: req.Restaurant.ID,
			TableName:    req.TableName,
			QrSlug:       slug,
			Seats:        req.Seats,
		})
		if err == nil {
			return table, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "tables_restaurant_id_qr_slug_key":
				continue
			case "tables_restaurant_id_table_name_key":
				return database.Table{}, ErrTableNameTaken
			}
		}
		return database.Table{}, fmt.Errorf("create table: %w", err)
	}

	return database.Table{}, ErrQrSlugExhausted
}

// Slug alphabet avoids visually ambiguous characters since slugs end up in
// printed QR labels.
const qrSlugAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

func randomQrSlug() (string, error) {
	buf := make([]byte, qrSlugLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = qrSlugAlphabet[int(b)%len(qrSlugAlphabet)]
	}
	return string(buf), nil
}
