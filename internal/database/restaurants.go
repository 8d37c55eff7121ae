package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const restaurantColumns = `id, owner_id, name, slug, is_currently_open, tax_rate, tax_label, is_tax_included_in_price, categories, created_at, updated_at`

func scanRestaurant(r row) (Restaurant, error) {
	var rest Restaurant
	err := r.Scan(&rest.ID, &rest.OwnerID, &rest.Name, &rest.Slug, &rest.IsCurrentlyOpen,
		&rest.TaxRate, &rest.TaxLabel, &rest.IsTaxIncludedInPrice, &rest.Categories,
		&rest.CreatedAt, &rest.UpdatedAt)
	return rest, err
}

const createRestaurant = `
INSERT INTO restaurants (owner_id, name, slug, tax_rate, tax_label, is_tax_included_in_price, categories)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + restaurantColumns

type CreateRestaurantParams struct {
	OwnerID              uuid.UUID
	Name                 string
	Slug                 string
	TaxRate              pgtype.Numeric
	TaxLabel             string
	IsTaxIncludedInPrice bool
	Categories           []string
}

func (q *Queries) CreateRestaurant(ctx context.Context, arg CreateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, createRestaurant,
		arg.OwnerID, arg.Name, arg.Slug, arg.TaxRate, arg.TaxLabel,
		arg.IsTaxIncludedInPrice, arg.Categories)
	return scanRestaurant(row)
}

const getRestaurantBySlug = `
SELECT ` + restaurantColumns + `
FROM restaurants
WHERE slug = $1
`

func (q *Queries) GetRestaurantBySlug(ctx context.Context, slug string) (Restaurant, error) {
	return scanRestaurant(q.db.QueryRow(ctx, getRestaurantBySlug, slug))
}

const getRestaurantByID = `
SELECT ` + restaurantColumns + `
FROM restaurants
WHERE id = $1
`

func (q *Queries) GetRestaurantByID(ctx context.Context, id uuid.UUID) (Restaurant, error) {
	return scanRestaurant(q.db.QueryRow(ctx, getRestaurantByID, id))
}

const countRestaurantsByOwner = `
SELECT count(*) FROM restaurants WHERE owner_id = $1
`

func (q *Queries) CountRestaurantsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countRestaurantsByOwner, ownerID).Scan(&n)
	return n, err
}

const listRestaurantsByOwner = `
SELECT ` + restaurantColumns + `
FROM restaurants
WHERE owner_id = $1
ORDER BY created_at
`

func (q *Queries) ListRestaurantsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Restaurant, error) {
	rows, err := q.db.Query(ctx, listRestaurantsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Restaurant
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	return out, rows.Err()
}

const updateRestaurant = `
UPDATE restaurants
SET name = $2,
    is_currently_open = $3,
    tax_rate = $4,
    tax_label = $5,
    is_tax_included_in_price = $6,
    categories = $7,
    updated_at = now()
WHERE id = $1
RETURNING ` + restaurantColumns

type UpdateRestaurantParams struct {
	ID                   uuid.UUID
	Name                 string
	IsCurrentlyOpen      bool
	TaxRate              pgtype.Numeric
	TaxLabel             string
	IsTaxIncludedInPrice bool
	Categories           []string
}

func (q *Queries) UpdateRestaurant(ctx context.Context, arg UpdateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, updateRestaurant,
		arg.ID, arg.Name, arg.IsCurrentlyOpen, arg.TaxRate, arg.TaxLabel,
		arg.IsTaxIncludedInPrice, arg.Categories)
	return scanRestaurant(row)
}

// ForceCloseRestaurant flips the open flag without touching anything else.
// Used by the entitlement gate when the owner's subscription has lapsed.
const forceCloseRestaurant = `
UPDATE restaurants
SET is_currently_open = false, updated_at = now()
WHERE id = $1 AND is_currently_open = true
`

func (q *Queries) ForceCloseRestaurant(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, forceCloseRestaurant, id)
	return err
}
