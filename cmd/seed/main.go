// Seeds a development database with an owner, a restaurant, tables, and a
// small menu. Run after migrations: go run ./cmd/seed
package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/tabledine/api/internal/config"
	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/service"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("ERROR: connect database: %v", err)
	}
	defer pool.Close()

	queries := database.New(pool)

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("ERROR: hash password: %v", err)
	}

	owner, err := queries.CreateUser(ctx, database.CreateUserParams{
		Email:          "owner@example.com",
		HashedPassword: string(hashed),
		FullName:       "Demo Owner",
		Role:           enum.UserRoleOwner,
	})
	if err != nil {
		log.Fatalf("ERROR: create owner: %v", err)
	}

	_, err = queries.CreateSubscription(ctx, database.CreateSubscriptionParams{
		UserID:               owner.ID,
		Plan:                 pgtype.Text{String: enum.PlanMedium, Valid: true},
		SubscriptionEndDate:  pgtype.Timestamptz{Time: time.Now().Add(30 * 24 * time.Hour), Valid: true},
		IsSubscriptionActive: true,
	})
	if err != nil {
		log.Fatalf("ERROR: create subscription: %v", err)
	}

	taxRate := mustNumeric("5.00")
	restaurant, err := queries.CreateRestaurant(ctx, database.CreateRestaurantParams{
		OwnerID:              owner.ID,
		Name:                 "Spice Route",
		Slug:                 "spice",
		TaxRate:              taxRate,
		TaxLabel:             "GST",
		IsTaxIncludedInPrice: false,
		Categories:           []string{"Starters", "Mains", "Drinks"},
	})
	if err != nil {
		log.Fatalf("ERROR: create restaurant: %v", err)
	}

	entitlement := service.NewEntitlementService(queries)
	tables := service.NewTableService(queries, entitlement)
	for _, name := range []string{"T1", "T2", "T3", "T4"} {
		if _, err := tables.CreateTable(ctx, service.CreateTableRequest{
			Restaurant: restaurant,
			TableName:  name,
			Seats:      4,
		}); err != nil {
			log.Fatalf("ERROR: create table %s: %v", name, err)
		}
	}

	if _, err := queries.CreateFoodItem(ctx, database.CreateFoodItemParams{
		RestaurantID: restaurant.ID,
		FoodName:     "Paneer Tikka",
		Category:     pgtype.Text{String: "Starters", Valid: true},
		Price:        mustNumeric("220.00"),
		IsAvailable:  true,
	}); err != nil {
		log.Fatalf("ERROR: create food item: %v", err)
	}

	dosa, err := queries.CreateFoodItem(ctx, database.CreateFoodItemParams{
		RestaurantID: restaurant.ID,
		FoodName:     "Masala Dosa",
		Category:     pgtype.Text{String: "Mains", Valid: true},
		HasVariants:  true,
		IsAvailable:  true,
	})
	if err != nil {
		log.Fatalf("ERROR: create food item: %v", err)
	}
	for i, v := range []struct {
		name  string
		price string
	}{
		{"Regular", "120.00"},
		{"Large", "160.00"},
	} {
		if _, err := queries.CreateFoodVariant(ctx, database.CreateFoodVariantParams{
			FoodItemID:  dosa.ID,
			Name:        v.name,
			Price:       mustNumeric(v.price),
			IsAvailable: true,
			SortOrder:   int32(i),
		}); err != nil {
			log.Fatalf("ERROR: create variant: %v", err)
		}
	}

	log.Printf("seeded restaurant %q (slug %s) for owner %s", restaurant.Name, restaurant.Slug, owner.Email)
}

func mustNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		log.Fatalf("ERROR: parse numeric %q: %v", s, err)
	}
	return n
}
