//go:build integration

// Runs the store layer against a real Postgres in Docker:
// go test -tags integration ./internal/database/...
package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
)

func setupDB(t *testing.T) *database.Queries {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tabledine_test"),
		tcpostgres.WithUsername("tabledine"),
		tcpostgres.WithPassword("tabledine"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		t.Fatalf("migrations dir: %v", err)
	}
	m, err := migrate.New("file://"+migrationsDir, dsn)
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	m.Close()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return database.New(pool)
}

func seedRestaurant(t *testing.T, q *database.Queries) database.Restaurant {
	t.Helper()
	ctx := context.Background()

	owner, err := q.CreateUser(ctx, database.CreateUserParams{
		Email:          uuid.NewString() + "@example.com",
		HashedPassword: "x",
		FullName:       "Integration Owner",
		Role:           enum.UserRoleOwner,
	})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}

	var taxRate pgtype.Numeric
	if err := taxRate.Scan("5.00"); err != nil {
		t.Fatalf("tax rate: %v", err)
	}
	restaurant, err := q.CreateRestaurant(ctx, database.CreateRestaurantParams{
		OwnerID:  owner.ID,
		Name:     "Integration Cafe",
		Slug:     "cafe" + uuid.NewString()[:4],
		TaxRate:  taxRate,
		TaxLabel: "GST",
	})
	if err != nil {
		t.Fatalf("create restaurant: %v", err)
	}
	return restaurant
}

func TestOccupyTable_SecondAttemptLoses(t *testing.T) {
	q := setupDB(t)
	ctx := context.Background()
	restaurant := seedRestaurant(t, q)

	table, err := q.CreateTable(ctx, database.CreateTableParams{
		RestaurantID: restaurant.ID,
		TableName:    "T1",
		QrSlug:       "abc234",
		Seats:        4,
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	var zero pgtype.Numeric
	if err := zero.Scan("0.00"); err != nil {
		t.Fatal(err)
	}
	order, err := q.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID: restaurant.ID,
		TableID:      table.ID,
		OrderNumber:  "TBL-001",
		Subtotal:     zero, TaxAmount: zero, DiscountAmount: zero, TipAmount: zero, TotalAmount: zero,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	occupied, err := q.OccupyTable(ctx, database.OccupyTableParams{
		ID: table.ID, RestaurantID: restaurant.ID, CurrentOrderID: order.ID,
	})
	if err != nil {
		t.Fatalf("first occupy: %v", err)
	}
	if !occupied.IsOccupied {
		t.Error("table should read as occupied")
	}

	_, err = q.OccupyTable(ctx, database.OccupyTableParams{
		ID: table.ID, RestaurantID: restaurant.ID, CurrentOrderID: order.ID,
	})
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second occupy should match zero rows, got: %v", err)
	}

	if err := q.ReleaseTable(ctx, table.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	released, err := q.GetTableByQrSlug(ctx, database.GetTableByQrSlugParams{
		RestaurantID: restaurant.ID, QrSlug: table.QrSlug,
	})
	if err != nil {
		t.Fatalf("reload table: %v", err)
	}
	if released.IsOccupied || released.CurrentOrderID.Valid {
		t.Error("released table should be free with no current order")
	}
}

func TestMarkPaymentPaid_Idempotent(t *testing.T) {
	q := setupDB(t)
	ctx := context.Background()
	restaurant := seedRestaurant(t, q)

	table, err := q.CreateTable(ctx, database.CreateTableParams{
		RestaurantID: restaurant.ID, TableName: "T1", QrSlug: "abc234", Seats: 2,
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	var amount pgtype.Numeric
	if err := amount.Scan("252.00"); err != nil {
		t.Fatal(err)
	}
	order, err := q.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID: restaurant.ID, TableID: table.ID, OrderNumber: "TBL-001",
		Subtotal: amount, TaxAmount: amount, DiscountAmount: amount, TipAmount: amount, TotalAmount: amount,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	payment, err := q.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID: order.ID, Method: enum.PaymentMethodOnline,
		Subtotal: amount, TaxAmount: amount, DiscountAmount: amount, TipAmount: amount, TotalAmount: amount,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := q.SetPaymentGatewayOrder(ctx, database.SetPaymentGatewayOrderParams{
		ID:             payment.ID,
		PaymentGateway: pgtype.Text{String: "razorpay", Valid: true},
		GatewayOrderID: pgtype.Text{String: "order_abc123", Valid: true},
	}); err != nil {
		t.Fatalf("set gateway order: %v", err)
	}

	paid, err := q.MarkPaymentPaid(ctx, database.MarkPaymentPaidParams{
		GatewayOrderID:   "order_abc123",
		GatewayPaymentID: pgtype.Text{String: "pay_1", Valid: true},
		GatewaySignature: pgtype.Text{String: "sig", Valid: true},
	})
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if paid.Status != enum.PaymentStatusPaid {
		t.Errorf("status: got %s, want PAID", paid.Status)
	}

	_, err = q.MarkPaymentPaid(ctx, database.MarkPaymentPaidParams{
		GatewayOrderID:   "order_abc123",
		GatewayPaymentID: pgtype.Text{String: "pay_1", Valid: true},
		GatewaySignature: pgtype.Text{String: "sig", Valid: true},
	})
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("duplicate settle should match zero rows, got: %v", err)
	}
}

func TestConstraintNames(t *testing.T) {
	q := setupDB(t)
	ctx := context.Background()
	restaurant := seedRestaurant(t, q)

	// The services dispatch on these constraint names; a schema rename would
	// silently break their retry and conflict paths.
	var taxRate pgtype.Numeric
	if err := taxRate.Scan("0.00"); err != nil {
		t.Fatal(err)
	}
	_, err := q.CreateRestaurant(ctx, database.CreateRestaurantParams{
		OwnerID: restaurant.OwnerID, Name: "Dup", Slug: restaurant.Slug, TaxRate: taxRate,
	})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.ConstraintName != "restaurants_slug_key" {
		t.Fatalf("expected restaurants_slug_key violation, got: %v", err)
	}

	if _, err := q.CreateTable(ctx, database.CreateTableParams{
		RestaurantID: restaurant.ID, TableName: "T1", QrSlug: "abc234", Seats: 2,
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	_, err = q.CreateTable(ctx, database.CreateTableParams{
		RestaurantID: restaurant.ID, TableName: "T2", QrSlug: "abc234", Seats: 2,
	})
	if !errors.As(err, &pgErr) || pgErr.ConstraintName != "tables_restaurant_id_qr_slug_key" {
		t.Fatalf("expected qr slug violation, got: %v", err)
	}
	_, err = q.CreateTable(ctx, database.CreateTableParams{
		RestaurantID: restaurant.ID, TableName: "T1", QrSlug: "xyz789", Seats: 2,
	})
	if !errors.As(err, &pgErr) || pgErr.ConstraintName != "tables_restaurant_id_table_name_key" {
		t.Fatalf("expected table name violation, got: %v", err)
	}
}
