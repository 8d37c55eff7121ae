package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tabledine/api/internal/database"
)

// Errors returned by cart resolution.
var (
	ErrEmptyItems         = errors.New("items are required")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrInvalidFoodItemID  = errors.New("invalid food_item_id")
	ErrFoodItemNotFound   = errors.New("food item not found in restaurant")
	ErrVariantNotFound    = errors.New("variant not found")
	ErrVariantNotOffered  = errors.New("item does not offer variants")
	ErrVariantRequired    = errors.New("item requires a variant")
	ErrVariantUnavailable = errors.New("variant not available")
)

// MenuStore defines the DB methods cart resolution needs.
// Satisfied by *database.Queries (and its WithTx variant).
type MenuStore interface {
	GetFoodItemForOrder(ctx context.Context, arg database.GetFoodItemForOrderParams) (database.FoodItem, error)
	GetVariantByName(ctx context.Context, arg database.GetVariantByNameParams) (database.FoodVariant, error)
}

// CartLine is one requested line as sent by the diner. Prices are never part
// of the request.
type CartLine struct {
	FoodItemID  string
	VariantName string
	Quantity    int32
}

// ResolvedLine is a priced snapshot line. UnitPrice is what gets persisted on
// the order item regardless of later menu edits.
type ResolvedLine struct {
	FoodItemID  uuid.UUID
	FoodName    string
	VariantName pgtype.Text
	Quantity    int32
	UnitPrice   decimal.Decimal
}

// ResolveCart validates the requested lines against the restaurant's current
// menu and prices each line server-side. An unavailable item reads the same
// as a missing one.
//
// Unit price precedence for variant lines: the variant's discounted price
// when set, else the variant price. Plain lines take the item's base price;
// the base discounted_price is display-only and never priced into an order.
func ResolveCart(ctx context.Context, store MenuStore, restaurantID uuid.UUID, lines []CartLine) ([]ResolvedLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyItems
	}

	var out []ResolvedLine
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}

		itemID, err := uuid.Parse(line.FoodItemID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidFoodItemID)
		}

		item, err := store.GetFoodItemForOrder(ctx, database.GetFoodItemForOrderParams{
			ID:           itemID,
			RestaurantID: restaurantID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrFoodItemNotFound)
			}
			return nil, fmt.Errorf("items[%d]: get food item: %w", i, err)
		}

		resolved := ResolvedLine{
			FoodItemID: item.ID,
			FoodName:   item.FoodName,
			Quantity:   line.Quantity,
		}

		if line.VariantName != "" {
			if !item.HasVariants {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrVariantNotOffered)
			}
			variant, err := store.GetVariantByName(ctx, database.GetVariantByNameParams{
				FoodItemID: item.ID,
				Name:       line.VariantName,
			})
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, fmt.Errorf("items[%d]: %w", i, ErrVariantNotFound)
				}
				return nil, fmt.Errorf("items[%d]: get variant: %w", i, err)
			}
			if !variant.IsAvailable {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrVariantUnavailable)
			}

			resolved.VariantName = pgtype.Text{String: variant.Name, Valid: true}
			if variant.DiscountedPrice.Valid {
				resolved.UnitPrice = numericToDecimal(variant.DiscountedPrice)
			} else {
				resolved.UnitPrice = numericToDecimal(variant.Price)
			}
		} else {
			if item.HasVariants {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrVariantRequired)
			}
			resolved.UnitPrice = numericToDecimal(item.Price)
		}

		out = append(out, resolved)
	}

	return out, nil
}
