package database

import (
	"context"

	"github.com/google/uuid"
)

const tableColumns = `id, restaurant_id, table_name, qr_slug, seats, is_occupied, current_order_id, created_at, updated_at`

func scanTable(r row) (Table, error) {
	var t Table
	err := r.Scan(&t.ID, &t.RestaurantID, &t.TableName, &t.QrSlug, &t.Seats,
		&t.IsOccupied, &t.CurrentOrderID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const createTable = `
INSERT INTO tables (restaurant_id, table_name, qr_slug, seats)
VALUES ($1, $2, $3, $4)
RETURNING ` + tableColumns

type CreateTableParams struct {
	RestaurantID uuid.UUID
	TableName    string
	QrSlug       string
	Seats        int32
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, createTable,
		arg.RestaurantID, arg.TableName, arg.QrSlug, arg.Seats)
	return scanTable(row)
}

const getTableByQrSlug = `
SELECT ` + tableColumns + `
FROM tables
WHERE restaurant_id = $1 AND qr_slug = $2
`

type GetTableByQrSlugParams struct {
	RestaurantID uuid.UUID
	QrSlug       string
}

func (q *Queries) GetTableByQrSlug(ctx context.Context, arg GetTableByQrSlugParams) (Table, error) {
	return scanTable(q.db.QueryRow(ctx, getTableByQrSlug, arg.RestaurantID, arg.QrSlug))
}

const getTableByID = `
SELECT ` + tableColumns + `
FROM tables
WHERE id = $1 AND restaurant_id = $2
`

type GetTableByIDParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetTableByID(ctx context.Context, arg GetTableByIDParams) (Table, error) {
	return scanTable(q.db.QueryRow(ctx, getTableByID, arg.ID, arg.RestaurantID))
}

const listTablesByRestaurant = `
SELECT ` + tableColumns + `
FROM tables
WHERE restaurant_id = $1
ORDER BY table_name
`

func (q *Queries) ListTablesByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]Table, error) {
	rows, err := q.db.Query(ctx, listTablesByRestaurant, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const countTablesByRestaurant = `
SELECT count(*) FROM tables WHERE restaurant_id = $1
`

func (q *Queries) CountTablesByRestaurant(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countTablesByRestaurant, restaurantID).Scan(&n)
	return n, err
}

// OccupyTable is the double-booking guard: the is_occupied filter makes the
// occupancy check and the write one atomic statement, so of two concurrent
// order attempts exactly one sees a matched row. Returns pgx.ErrNoRows (via
// Scan) when the table was already taken.
const occupyTable = `
UPDATE tables
SET is_occupied = true, current_order_id = $3, updated_at = now()
WHERE id = $1 AND restaurant_id = $2 AND is_occupied = false
RETURNING ` + tableColumns

type OccupyTableParams struct {
	ID             uuid.UUID
	RestaurantID   uuid.UUID
	CurrentOrderID uuid.UUID
}

func (q *Queries) OccupyTable(ctx context.Context, arg OccupyTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, occupyTable, arg.ID, arg.RestaurantID, arg.CurrentOrderID)
	return scanTable(row)
}

const releaseTable = `
UPDATE tables
SET is_occupied = false, current_order_id = NULL, updated_at = now()
WHERE id = $1
`

func (q *Queries) ReleaseTable(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, releaseTable, id)
	return err
}
