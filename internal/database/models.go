package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
	RestaurantID   pgtype.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Subscription struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	Plan                 pgtype.Text
	IsTrial              bool
	TrialExpiresAt       pgtype.Timestamptz
	SubscriptionEndDate  pgtype.Timestamptz
	IsSubscriptionActive bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Restaurant struct {
	ID                   uuid.UUID
	OwnerID              uuid.UUID
	Name                 string
	Slug                 string
	IsCurrentlyOpen      bool
	TaxRate              pgtype.Numeric
	TaxLabel             string
	IsTaxIncludedInPrice bool
	Categories           []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type FoodItem struct {
	ID              uuid.UUID
	RestaurantID    uuid.UUID
	FoodName        string
	Description     pgtype.Text
	Price           pgtype.Numeric
	DiscountedPrice pgtype.Numeric
	Category        pgtype.Text
	HasVariants     bool
	IsAvailable     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type FoodVariant struct {
	ID              uuid.UUID
	FoodItemID      uuid.UUID
	Name            string
	Price           pgtype.Numeric
	DiscountedPrice pgtype.Numeric
	IsAvailable     bool
	SortOrder       int32
}

type Table struct {
	ID             uuid.UUID
	RestaurantID   uuid.UUID
	TableName      string
	QrSlug         string
	Seats          int32
	IsOccupied     bool
	CurrentOrderID pgtype.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Order struct {
	ID             uuid.UUID
	RestaurantID   uuid.UUID
	TableID        uuid.UUID
	OrderNumber    string
	Status         string
	IsPaid         bool
	KitchenStaffID pgtype.UUID
	Notes          pgtype.Text
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TipAmount      pgtype.Numeric
	TotalAmount    pgtype.Numeric
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	FoodItemID  uuid.UUID
	VariantName pgtype.Text
	Quantity    int32
	Price       pgtype.Numeric
}

type Payment struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	Method           string
	Status           string
	Subtotal         pgtype.Numeric
	TaxAmount        pgtype.Numeric
	DiscountAmount   pgtype.Numeric
	TipAmount        pgtype.Numeric
	TotalAmount      pgtype.Numeric
	PaymentGateway   pgtype.Text
	GatewayOrderID   pgtype.Text
	GatewayPaymentID pgtype.Text
	GatewaySignature pgtype.Text
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
