// Package router assembles the HTTP surface: middleware stack, authenticated
// management routes, the websocket feed, and the public diner routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/tabledine/api/internal/config"
	"github.com/tabledine/api/internal/database"
	"github.com/tabledine/api/internal/enum"
	"github.com/tabledine/api/internal/gateway"
	"github.com/tabledine/api/internal/handler"
	"github.com/tabledine/api/internal/middleware"
	"github.com/tabledine/api/internal/notify"
	"github.com/tabledine/api/internal/service"
	"github.com/tabledine/api/internal/ws"
)

// Order creation is diner-facing and unauthenticated, so it gets a per-IP
// rate limit.
const (
	publicRate  = rate.Limit(5)
	publicBurst = 10
)

type Deps struct {
	Config  *config.Config
	Pool    *pgxpool.Pool
	Hub     *ws.Hub
	Gateway gateway.Client
	Mailer  notify.Mailer
}

func New(d Deps) http.Handler {
	queries := database.New(d.Pool)

	entitlement := service.NewEntitlementService(queries)
	orderSvc := service.NewOrderService(d.Pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, entitlement, d.Gateway)
	tableSvc := service.NewTableService(queries, entitlement)

	authH := handler.NewAuthHandler(queries, d.Pool, func(db database.DBTX) handler.AuthStore {
		return database.New(db)
	}, d.Config.JWTSecret)
	restaurantH := handler.NewRestaurantHandler(queries, entitlement)
	tableH := handler.NewTableHandler(queries, tableSvc, d.Config.PublicBaseURL)
	foodH := handler.NewFoodItemHandler(queries, d.Pool, func(db database.DBTX) handler.FoodItemStore {
		return database.New(db)
	}, entitlement)
	orderH := handler.NewOrderHandler(queries, orderSvc, d.Hub, d.Mailer)
	paymentH := handler.NewPaymentHandler(queries, d.Pool, func(db database.DBTX) handler.PaymentStore {
		return database.New(db)
	}, d.Gateway, d.Hub)
	subscriptionH := handler.NewSubscriptionHandler(queries, entitlement)

	authenticate := middleware.Authenticate(d.Config.JWTSecret)
	limiter := middleware.NewRateLimiter(publicRate, publicBurst)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})

	r.Route("/auth", authH.RegisterRoutes)

	r.Route("/restaurants", func(r chi.Router) {
		r.Use(authenticate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleAdmin))
			restaurantH.RegisterRoutes(r)
			r.Route("/{restaurantID}/tables", tableH.RegisterRoutes)
			r.Route("/{restaurantID}/food-items", foodH.RegisterRoutes)
		})

		// Staff may read their restaurant's order feed.
		r.Route("/{restaurantID}/orders", orderH.RegisterStaffRoutes)
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Use(authenticate)
		subscriptionH.RegisterRoutes(r)
	})

	r.Route("/payments", paymentH.RegisterRoutes)

	r.Get("/ws/restaurants/{rid}/orders", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(d.Hub, d.Config.JWTSecret, w, req)
	})

	// Slug-scoped diner routes; rate limited and registered last so static
	// prefixes above always win.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		orderH.RegisterPublicRoutes(r, authenticate)
	})

	return r
}
