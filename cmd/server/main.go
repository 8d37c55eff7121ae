package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tabledine/api/internal/config"
	"github.com/tabledine/api/internal/gateway"
	"github.com/tabledine/api/internal/notify"
	"github.com/tabledine/api/internal/router"
	"github.com/tabledine/api/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("ERROR: connect database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ERROR: ping database: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	var mailer notify.Mailer = notify.NopMailer{}
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	}

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewaySecret)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(router.Deps{
			Config:  cfg,
			Pool:    pool,
			Hub:     hub,
			Gateway: gw,
			Mailer:  mailer,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("ERROR: server: %v", err)
	}
}
