package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const foodItemColumns = `id, restaurant_id, food_name, description, price, discounted_price, category, has_variants, is_available, created_at, updated_at`

func scanFoodItem(r row) (FoodItem, error) {
	var f FoodItem
	err := r.Scan(&f.ID, &f.RestaurantID, &f.FoodName, &f.Description, &f.Price,
		&f.DiscountedPrice, &f.Category, &f.HasVariants, &f.IsAvailable,
		&f.CreatedAt, &f.UpdatedAt)
	return f, err
}

const createFoodItem = `
INSERT INTO food_items (restaurant_id, food_name, description, price, discounted_price, category, has_variants, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + foodItemColumns

type CreateFoodItemParams struct {
	RestaurantID    uuid.UUID
	FoodName        string
	Description     pgtype.Text
	Price           pgtype.Numeric
	DiscountedPrice pgtype.Numeric
	Category        pgtype.Text
	HasVariants     bool
	IsAvailable     bool
}

func (q *Queries) CreateFoodItem(ctx context.Context, arg CreateFoodItemParams) (FoodItem, error) {
	row := q.db.QueryRow(ctx, createFoodItem,
		arg.RestaurantID, arg.FoodName, arg.Description, arg.Price,
		arg.DiscountedPrice, arg.Category, arg.HasVariants, arg.IsAvailable)
	return scanFoodItem(row)
}

const getFoodItem = `
SELECT ` + foodItemColumns + `
FROM food_items
WHERE id = $1 AND restaurant_id = $2
`

type GetFoodItemParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetFoodItem(ctx context.Context, arg GetFoodItemParams) (FoodItem, error) {
	return scanFoodItem(q.db.QueryRow(ctx, getFoodItem, arg.ID, arg.RestaurantID))
}

// GetFoodItemForOrder only matches available items; an unavailable item reads
// the same as a missing one during cart resolution.
const getFoodItemForOrder = `
SELECT ` + foodItemColumns + `
FROM food_items
WHERE id = $1 AND restaurant_id = $2 AND is_available = true
`

type GetFoodItemForOrderParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetFoodItemForOrder(ctx context.Context, arg GetFoodItemForOrderParams) (FoodItem, error) {
	return scanFoodItem(q.db.QueryRow(ctx, getFoodItemForOrder, arg.ID, arg.RestaurantID))
}

const listFoodItemsByRestaurant = `
SELECT ` + foodItemColumns + `
FROM food_items
WHERE restaurant_id = $1
ORDER BY food_name
`

func (q *Queries) ListFoodItemsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]FoodItem, error) {
	rows, err := q.db.Query(ctx, listFoodItemsByRestaurant, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FoodItem
	for rows.Next() {
		f, err := scanFoodItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const countFoodItemsByRestaurant = `
SELECT count(*) FROM food_items WHERE restaurant_id = $1
`

func (q *Queries) CountFoodItemsByRestaurant(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countFoodItemsByRestaurant, restaurantID).Scan(&n)
	return n, err
}

const updateFoodItem = `
UPDATE food_items
SET food_name = $3,
    description = $4,
    price = $5,
    discounted_price = $6,
    category = $7,
    has_variants = $8,
    is_available = $9,
    updated_at = now()
WHERE id = $1 AND restaurant_id = $2
RETURNING ` + foodItemColumns

type UpdateFoodItemParams struct {
	ID              uuid.UUID
	RestaurantID    uuid.UUID
	FoodName        string
	Description     pgtype.Text
	Price           pgtype.Numeric
	DiscountedPrice pgtype.Numeric
	Category        pgtype.Text
	HasVariants     bool
	IsAvailable     bool
}

func (q *Queries) UpdateFoodItem(ctx context.Context, arg UpdateFoodItemParams) (FoodItem, error) {
	row := q.db.QueryRow(ctx, updateFoodItem,
		arg.ID, arg.RestaurantID, arg.FoodName, arg.Description, arg.Price,
		arg.DiscountedPrice, arg.Category, arg.HasVariants, arg.IsAvailable)
	return scanFoodItem(row)
}

const deleteFoodItem = `
DELETE FROM food_items
WHERE id = $1 AND restaurant_id = $2
`

type DeleteFoodItemParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

// DeleteFoodItem removes an item. Fails with a foreign key violation when the
// item appears on an existing order; callers map that to a conflict.
func (q *Queries) DeleteFoodItem(ctx context.Context, arg DeleteFoodItemParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteFoodItem, arg.ID, arg.RestaurantID)
	return tag.RowsAffected(), err
}

// --- Variants ---

const variantColumns = `id, food_item_id, name, price, discounted_price, is_available, sort_order`

func scanVariant(r row) (FoodVariant, error) {
	var v FoodVariant
	err := r.Scan(&v.ID, &v.FoodItemID, &v.Name, &v.Price, &v.DiscountedPrice,
		&v.IsAvailable, &v.SortOrder)
	return v, err
}

const createFoodVariant = `
INSERT INTO food_variants (food_item_id, name, price, discounted_price, is_available, sort_order)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + variantColumns

type CreateFoodVariantParams struct {
	FoodItemID      uuid.UUID
	Name            string
	Price           pgtype.Numeric
	DiscountedPrice pgtype.Numeric
	IsAvailable     bool
	SortOrder       int32
}

func (q *Queries) CreateFoodVariant(ctx context.Context, arg CreateFoodVariantParams) (FoodVariant, error) {
	row := q.db.QueryRow(ctx, createFoodVariant,
		arg.FoodItemID, arg.Name, arg.Price, arg.DiscountedPrice,
		arg.IsAvailable, arg.SortOrder)
	return scanVariant(row)
}

const getVariantByName = `
SELECT ` + variantColumns + `
FROM food_variants
WHERE food_item_id = $1 AND name = $2
`

type GetVariantByNameParams struct {
	FoodItemID uuid.UUID
	Name       string
}

func (q *Queries) GetVariantByName(ctx context.Context, arg GetVariantByNameParams) (FoodVariant, error) {
	return scanVariant(q.db.QueryRow(ctx, getVariantByName, arg.FoodItemID, arg.Name))
}

const listVariantsByFoodItem = `
SELECT ` + variantColumns + `
FROM food_variants
WHERE food_item_id = $1
ORDER BY sort_order, name
`

func (q *Queries) ListVariantsByFoodItem(ctx context.Context, foodItemID uuid.UUID) ([]FoodVariant, error) {
	rows, err := q.db.Query(ctx, listVariantsByFoodItem, foodItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FoodVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const deleteVariantsByFoodItem = `
DELETE FROM food_variants WHERE food_item_id = $1
`

func (q *Queries) DeleteVariantsByFoodItem(ctx context.Context, foodItemID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteVariantsByFoodItem, foodItemID)
	return err
}
