package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, method, status, subtotal, tax_amount, discount_amount, tip_amount, total_amount, payment_gateway, gateway_order_id, gateway_payment_id, gateway_signature, created_at, updated_at`

func scanPayment(r row) (Payment, error) {
	var p Payment
	err := r.Scan(&p.ID, &p.OrderID, &p.Method, &p.Status, &p.Subtotal, &p.TaxAmount,
		&p.DiscountAmount, &p.TipAmount, &p.TotalAmount, &p.PaymentGateway,
		&p.GatewayOrderID, &p.GatewayPaymentID, &p.GatewaySignature,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const createPayment = `
INSERT INTO payments (order_id, method, status, subtotal, tax_amount, discount_amount, tip_amount, total_amount)
VALUES ($1, $2, 'PENDING', $3, $4, $5, $6, $7)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	OrderID        uuid.UUID
	Method         string
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TipAmount      pgtype.Numeric
	TotalAmount    pgtype.Numeric
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.OrderID, arg.Method, arg.Subtotal, arg.TaxAmount,
		arg.DiscountAmount, arg.TipAmount, arg.TotalAmount)
	return scanPayment(row)
}

const listPaymentsByOrder = `
SELECT ` + paymentColumns + `
FROM payments
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const getLatestPaymentByOrder = `
SELECT ` + paymentColumns + `
FROM payments
WHERE order_id = $1
ORDER BY created_at DESC
LIMIT 1
`

func (q *Queries) GetLatestPaymentByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getLatestPaymentByOrder, orderID))
}

const setPaymentGatewayOrder = `
UPDATE payments
SET payment_gateway = $2, gateway_order_id = $3, updated_at = now()
WHERE id = $1
RETURNING ` + paymentColumns

type SetPaymentGatewayOrderParams struct {
	ID             uuid.UUID
	PaymentGateway pgtype.Text
	GatewayOrderID pgtype.Text
}

func (q *Queries) SetPaymentGatewayOrder(ctx context.Context, arg SetPaymentGatewayOrderParams) (Payment, error) {
	row := q.db.QueryRow(ctx, setPaymentGatewayOrder,
		arg.ID, arg.PaymentGateway, arg.GatewayOrderID)
	return scanPayment(row)
}

const getPaymentByGatewayOrderID = `
SELECT ` + paymentColumns + `
FROM payments
WHERE gateway_order_id = $1
`

func (q *Queries) GetPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByGatewayOrderID, gatewayOrderID))
}

// MarkPaymentPaid settles a gateway payment. The status filter makes the
// write idempotent: a duplicate webhook for an already-paid gateway order
// matches zero rows instead of re-applying side effects.
const markPaymentPaid = `
UPDATE payments
SET status = 'PAID',
    gateway_payment_id = $2,
    gateway_signature = $3,
    updated_at = now()
WHERE gateway_order_id = $1 AND status <> 'PAID'
RETURNING ` + paymentColumns

type MarkPaymentPaidParams struct {
	GatewayOrderID   string
	GatewayPaymentID pgtype.Text
	GatewaySignature pgtype.Text
}

func (q *Queries) MarkPaymentPaid(ctx context.Context, arg MarkPaymentPaidParams) (Payment, error) {
	row := q.db.QueryRow(ctx, markPaymentPaid,
		arg.GatewayOrderID, arg.GatewayPaymentID, arg.GatewaySignature)
	return scanPayment(row)
}

const markPaymentFailed = `
UPDATE payments
SET status = 'FAILED', updated_at = now()
WHERE id = $1 AND status = 'PENDING'
`

func (q *Queries) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, markPaymentFailed, id)
	return err
}

const updatePaymentAmounts = `
UPDATE payments
SET subtotal = $2, tax_amount = $3, total_amount = $4, updated_at = now()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + paymentColumns

type UpdatePaymentAmountsParams struct {
	ID          uuid.UUID
	Subtotal    pgtype.Numeric
	TaxAmount   pgtype.Numeric
	TotalAmount pgtype.Numeric
}

func (q *Queries) UpdatePaymentAmounts(ctx context.Context, arg UpdatePaymentAmountsParams) (Payment, error) {
	row := q.db.QueryRow(ctx, updatePaymentAmounts,
		arg.ID, arg.Subtotal, arg.TaxAmount, arg.TotalAmount)
	return scanPayment(row)
}

const markOrderPaidByID = `
UPDATE orders
SET is_paid = true, updated_at = now()
WHERE id = $1
`

func (q *Queries) MarkOrderPaid(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, markOrderPaidByID, id)
	return err
}
