package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/gateway"
)

const (
	maxOrderNumberRetries = 3
	gatewayCurrency       = "INR"
)

// Errors returned by the order service.
var (
	ErrRestaurantClosed  = errors.New("restaurant is not accepting orders")
	ErrTableNotFound     = errors.New("table not found")
	ErrTableOccupied     = errors.New("table already has an active order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidMethod     = errors.New("invalid payment method")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrAlreadyInState    = errors.New("order already in requested status")
	ErrOrderTerminal     = errors.New("order is in a terminal status")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrNotClaimOwner     = errors.New("order is claimed by another staff member")
	ErrOrderNotAmendable = errors.New("order can no longer be amended")
	ErrGatewayFailure    = errors.New("payment gateway failure")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the order flows need.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	MenuStore
	GetTableByQrSlug(ctx context.Context, arg database.GetTableByQrSlugParams) (database.Table, error)
	OccupyTable(ctx context.Context, arg database.OccupyTableParams) (database.Table, error)
	ReleaseTable(ctx context.Context, id uuid.UUID) error
	GetNextOrderNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	DeleteOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) error
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetLatestPaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	SetPaymentGatewayOrder(ctx context.Context, arg database.SetPaymentGatewayOrderParams) (database.Payment, error)
	UpdatePaymentAmounts(ctx context.Context, arg database.UpdatePaymentAmountsParams) (database.Payment, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order. The
// restaurant row is loaded by the handler from the URL slug.
type CreateOrderRequest struct {
	Restaurant  database.Restaurant
	TableQrSlug string
	Method      string
	Notes       string
	Lines       []CartLine
}

// CreateOrderResult is the created order with its snapshot items and the
// opening payment attempt.
type CreateOrderResult struct {
	Order   database.Order
	Items   []database.OrderItem
	Payment database.Payment
	Table   database.Table
}

// TransitionRequest moves an order through the kitchen state machine.
type TransitionRequest struct {
	RestaurantID uuid.UUID
	OrderID      uuid.UUID
	NewStatus    string
	StaffID      uuid.UUID
}

// AmendOrderRequest replaces a pending order's line items.
type AmendOrderRequest struct {
	Restaurant database.Restaurant
	OrderID    uuid.UUID
	Notes      string
	Lines      []CartLine
}

// AmendOrderResult is the re-priced order after amendment.
type AmendOrderResult struct {
	Order   database.Order
	Items   []database.OrderItem
	Payment database.Payment
}

// OrderService handles order business logic.
type OrderService struct {
	pool        TxBeginner
	newStore    NewOrderStore
	entitlement *EntitlementService
	gw          gateway.Client
}

func NewOrderService(pool TxBeginner, newStore NewOrderStore, entitlement *EntitlementService, gw gateway.Client) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, entitlement: entitlement, gw: gw}
}

// nextStatus is the forward edge of the kitchen state machine. CANCELLED is
// reachable from any non-terminal status and is handled separately.
var nextStatus = map[string]string{
	enum.OrderStatusPending:   enum.OrderStatusPreparing,
	enum.OrderStatusPreparing: enum.OrderStatusReady,
	enum.OrderStatusReady:     enum.OrderStatusServed,
	enum.OrderStatusServed:    enum.OrderStatusCompleted,
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusServed, enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}

// CreateOrder validates, prices the cart server-side, and creates the order,
// its items, the opening payment attempt, and the table occupation in one
// transaction. For ONLINE payment the gateway order is opened inside the same
// transaction so a gateway failure leaves nothing behind.
//
// Retries up to maxOrderNumberRetries times on order_number unique constraint
// violations (race condition where concurrent transactions get the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.Method != enum.PaymentMethodCash && req.Method != enum.PaymentMethodOnline {
		return nil, ErrInvalidMethod
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyItems
	}
	if !req.Restaurant.IsCurrentlyOpen {
		return nil, ErrRestaurantClosed
	}

	// Entitlement gate runs before the transaction; a lapsed subscription
	// force-closes the restaurant as a side effect.
	if err := s.entitlement.CanAcceptOrders(ctx, req.Restaurant); err != nil {
		if errors.Is(err, ErrSubscriptionExpired) || errors.Is(err, ErrNoSubscription) {
			return nil, ErrRestaurantClosed
		}
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_restaurant_id_order_number_key"
	}
	return false
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	restaurant := req.Restaurant

	table, err := store.GetTableByQrSlug(ctx, database.GetTableByQrSlugParams{
		RestaurantID: restaurant.ID,
		QrSlug:       req.TableQrSlug,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	if table.IsOccupied {
		return nil, ErrTableOccupied
	}

	resolved, err := ResolveCart(ctx, store, restaurant.ID, req.Lines)
	if err != nil {
		return nil, err
	}

	subtotal, taxAmount, totalAmount := computeTotals(restaurant, resolved)

	nextNum, err := store.GetNextOrderNumber(ctx, restaurant.ID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("TBL-%03d", nextNum)

	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID:   restaurant.ID,
		TableID:        table.ID,
		OrderNumber:    orderNumber,
		Notes:          notes,
		Subtotal:       decimalToNumeric(subtotal),
		TaxAmount:      decimalToNumeric(taxAmount),
		DiscountAmount: decimalToNumeric(decimal.Zero),
		TipAmount:      decimalToNumeric(decimal.Zero),
		TotalAmount:    decimalToNumeric(totalAmount),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items, err := insertOrderItems(ctx, store, order.ID, resolved)
	if err != nil {
		return nil, err
	}

	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:        order.ID,
		Method:         req.Method,
		Subtotal:       decimalToNumeric(subtotal),
		TaxAmount:      decimalToNumeric(taxAmount),
		DiscountAmount: decimalToNumeric(decimal.Zero),
		TipAmount:      decimalToNumeric(decimal.Zero),
		TotalAmount:    decimalToNumeric(totalAmount),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	// Occupancy check and write are one atomic statement; zero rows means a
	// concurrent order got the table first.
	occupied, err := store.OccupyTable(ctx, database.OccupyTableParams{
		ID:             table.ID,
		RestaurantID:   restaurant.ID,
		CurrentOrderID: order.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableOccupied
		}
		return nil, fmt.Errorf("occupy table: %w", err)
	}

	if req.Method == enum.PaymentMethodOnline {
		// Round before truncating so a fractional-paise total charges the
		// same amount that gets persisted.
		minorUnits := totalAmount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		gatewayOrderID, err := s.gw.CreateOrder(ctx, minorUnits, gatewayCurrency, order.OrderNumber)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
		}
		payment, err = store.SetPaymentGatewayOrder(ctx, database.SetPaymentGatewayOrderParams{
			ID:             payment.ID,
			PaymentGateway: pgtype.Text{String: s.gw.Name(), Valid: true},
			GatewayOrderID: pgtype.Text{String: gatewayOrderID, Valid: true},
		})
		if err != nil {
			return nil, fmt.Errorf("set gateway order: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{
		Order:   order,
		Items:   items,
		Payment: payment,
		Table:   occupied,
	}, nil
}

// Transition moves an order through the kitchen state machine under a row
// lock. The first successful transition claims the order for the acting
// staff member; later transitions by anyone else are rejected.
func (s *OrderService) Transition(ctx context.Context, req TransitionRequest) (*database.Order, error) {
	if !isValidOrderStatus(req.NewStatus) || req.NewStatus == enum.OrderStatusPending {
		return nil, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:           req.OrderID,
		RestaurantID: req.RestaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if enum.IsTerminalOrderStatus(order.Status) {
		return nil, ErrOrderTerminal
	}
	if order.Status == req.NewStatus {
		return nil, ErrAlreadyInState
	}
	if req.NewStatus != enum.OrderStatusCancelled && nextStatus[order.Status] != req.NewStatus {
		return nil, ErrInvalidTransition
	}

	if order.KitchenStaffID.Valid && uuid.UUID(order.KitchenStaffID.Bytes) != req.StaffID {
		return nil, ErrNotClaimOwner
	}

	// COMPLETED settles the bill regardless of method; cash orders are paid
	// at the table before the staff completes them.
	markPaid := req.NewStatus == enum.OrderStatusCompleted

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:             req.OrderID,
		RestaurantID:   req.RestaurantID,
		Status:         req.NewStatus,
		KitchenStaffID: pgtype.UUID{Bytes: req.StaffID, Valid: true},
		MarkPaid:       markPaid,
	})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if enum.IsTerminalOrderStatus(req.NewStatus) {
		if err := store.ReleaseTable(ctx, order.TableID); err != nil {
			return nil, fmt.Errorf("release table: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &updated, nil
}

// AmendOrder replaces the line items of an order that the kitchen has not
// started on. Both the order and its payment attempt must still be PENDING;
// everything is re-priced from the current menu in one transaction.
func (s *OrderService) AmendOrder(ctx context.Context, req AmendOrderRequest) (*AmendOrderResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	restaurant := req.Restaurant

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:           req.OrderID,
		RestaurantID: restaurant.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status != enum.OrderStatusPending {
		return nil, ErrOrderNotAmendable
	}

	payment, err := store.GetLatestPaymentByOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s has no payment attempt", order.ID)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment.Status != enum.PaymentStatusPending {
		return nil, ErrOrderNotAmendable
	}

	resolved, err := ResolveCart(ctx, store, restaurant.ID, req.Lines)
	if err != nil {
		return nil, err
	}

	subtotal, taxAmount, totalAmount := computeTotals(restaurant, resolved)

	if err := store.DeleteOrderItemsByOrder(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("delete order items: %w", err)
	}
	items, err := insertOrderItems(ctx, store, order.ID, resolved)
	if err != nil {
		return nil, err
	}

	notes := order.Notes
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	updated, err := store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:           order.ID,
		RestaurantID: restaurant.ID,
		Notes:        notes,
		Subtotal:     decimalToNumeric(subtotal),
		TaxAmount:    decimalToNumeric(taxAmount),
		TotalAmount:  decimalToNumeric(totalAmount),
	})
	if err != nil {
		return nil, fmt.Errorf("update order totals: %w", err)
	}

	updatedPayment, err := store.UpdatePaymentAmounts(ctx, database.UpdatePaymentAmountsParams{
		ID:          payment.ID,
		Subtotal:    decimalToNumeric(subtotal),
		TaxAmount:   decimalToNumeric(taxAmount),
		TotalAmount: decimalToNumeric(totalAmount),
	})
	if err != nil {
		return nil, fmt.Errorf("update payment amounts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &AmendOrderResult{
		Order:   updated,
		Items:   items,
		Payment: updatedPayment,
	}, nil
}

// computeTotals prices the resolved cart under the restaurant's tax config.
// When tax is included in menu prices the tax line stays zero.
func computeTotals(restaurant database.Restaurant, resolved []ResolvedLine) (subtotal, taxAmount, totalAmount decimal.Decimal) {
	subtotal = decimal.Zero
	for _, line := range resolved {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt32(line.Quantity)))
	}

	taxAmount = decimal.Zero
	if !restaurant.IsTaxIncludedInPrice {
		rate := numericToDecimal(restaurant.TaxRate)
		taxAmount = subtotal.Mul(rate).Div(decimal.NewFromInt(100))
	}

	totalAmount = subtotal.Add(taxAmount)
	return subtotal, taxAmount, totalAmount
}

func insertOrderItems(ctx context.Context, store OrderStore, orderID uuid.UUID, resolved []ResolvedLine) ([]database.OrderItem, error) {
	var items []database.OrderItem
	for _, line := range resolved {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:     orderID,
			FoodItemID:  line.FoodItemID,
			VariantName: line.VariantName,
			Quantity:    line.Quantity,
			Price:       decimalToNumeric(line.UnitPrice),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}
