package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, restaurant_id, table_id, order_number, status, is_paid, kitchen_staff_id, notes, subtotal, tax_amount, discount_amount, tip_amount, total_amount, created_at, updated_at`

func scanOrder(r row) (Order, error) {
	var o Order
	err := r.Scan(&o.ID, &o.RestaurantID, &o.TableID, &o.OrderNumber, &o.Status,
		&o.IsPaid, &o.KitchenStaffID, &o.Notes, &o.Subtotal, &o.TaxAmount,
		&o.DiscountAmount, &o.TipAmount, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const getNextOrderNumber = `
SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1
FROM orders
WHERE restaurant_id = $1
`

func (q *Queries) GetNextOrderNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber, restaurantID).Scan(&n)
	return n, err
}

const createOrder = `
INSERT INTO orders (restaurant_id, table_id, order_number, status, notes, subtotal, tax_amount, discount_amount, tip_amount, total_amount)
VALUES ($1, $2, $3, 'PENDING', $4, $5, $6, $7, $8, $9)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	RestaurantID   uuid.UUID
	TableID        uuid.UUID
	OrderNumber    string
	Notes          pgtype.Text
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TipAmount      pgtype.Numeric
	TotalAmount    pgtype.Numeric
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.RestaurantID, arg.TableID, arg.OrderNumber, arg.Notes, arg.Subtotal,
		arg.TaxAmount, arg.DiscountAmount, arg.TipAmount, arg.TotalAmount)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (order_id, food_item_id, variant_name, quantity, price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, food_item_id, variant_name, quantity, price
`

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	FoodItemID  uuid.UUID
	VariantName pgtype.Text
	Quantity    int32
	Price       pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.FoodItemID, arg.VariantName, arg.Quantity, arg.Price)
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.FoodItemID, &it.VariantName, &it.Quantity, &it.Price)
	return it, err
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1 AND restaurant_id = $2
`

type GetOrderParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.RestaurantID))
}

const getOrderByID = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

// GetOrderByID looks an order up without a restaurant scope. Used by the
// payment webhook, which only knows the gateway order reference.
func (q *Queries) GetOrderByID(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

// GetOrderForUpdate locks the order row so concurrent status transitions and
// amendments serialize instead of racing.
const getOrderForUpdate = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1 AND restaurant_id = $2
FOR NO KEY UPDATE
`

type GetOrderForUpdateParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderForUpdateParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, arg.ID, arg.RestaurantID))
}

const listOrdersByRestaurant = `
SELECT ` + orderColumns + `
FROM orders
WHERE restaurant_id = $1
  AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

type ListOrdersByRestaurantParams struct {
	RestaurantID uuid.UUID
	Status       pgtype.Text
	Limit        int32
	Offset       int32
}

func (q *Queries) ListOrdersByRestaurant(ctx context.Context, arg ListOrdersByRestaurantParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByRestaurant,
		arg.RestaurantID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const listOrderItemsByOrder = `
SELECT id, order_id, food_item_id, variant_name, quantity, price
FROM order_items
WHERE order_id = $1
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.FoodItemID, &it.VariantName,
			&it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const updateOrderStatus = `
UPDATE orders
SET status = $3,
    kitchen_staff_id = $4,
    is_paid = (is_paid OR $5),
    updated_at = now()
WHERE id = $1 AND restaurant_id = $2
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID             uuid.UUID
	RestaurantID   uuid.UUID
	Status         string
	KitchenStaffID pgtype.UUID
	MarkPaid       bool
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus,
		arg.ID, arg.RestaurantID, arg.Status, arg.KitchenStaffID, arg.MarkPaid)
	return scanOrder(row)
}

const deleteOrderItemsByOrder = `
DELETE FROM order_items WHERE order_id = $1
`

func (q *Queries) DeleteOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderItemsByOrder, orderID)
	return err
}

const updateOrderTotals = `
UPDATE orders
SET notes = $3,
    subtotal = $4,
    tax_amount = $5,
    total_amount = $6,
    updated_at = now()
WHERE id = $1 AND restaurant_id = $2
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Notes        pgtype.Text
	Subtotal     pgtype.Numeric
	TaxAmount    pgtype.Numeric
	TotalAmount  pgtype.Numeric
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID, arg.RestaurantID, arg.Notes, arg.Subtotal, arg.TaxAmount, arg.TotalAmount)
	return scanOrder(row)
}
