package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"leadgrid.io/internal/auth"
	"leadgrid.io/internal/httpapi"
	"leadgrid.io/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("LEADGRID_AUTH_SECRET")
	if secret == "" {
		log.Fatal("LEADGRID_AUTH_SECRET is required")
	}

	var db *sql.DB
	var store auth.Store
	if dsn := os.Getenv("LEADGRID_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		log.Println("LEADGRID_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	opts := []auth.ServiceOption{auth.WithTokenSecret(secret)}
	if v := os.Getenv("LEADGRID_ACCESS_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid LEADGRID_ACCESS_TTL: %v", err)
		}
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if v := os.Getenv("LEADGRID_REFRESH_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid LEADGRID_REFRESH_TTL: %v", err)
		}
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}
	if v := os.Getenv("LEADGRID_TOKEN_ISSUER"); v != "" {
		opts = append(opts, auth.WithIssuer(v))
	}

	svc, err := auth.NewService(store, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc)

	addr := os.Getenv("LEADGRID_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting leadgrid-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
