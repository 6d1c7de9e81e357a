package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"permscreen/adapters/api"
	"permscreen/adapters/permutation"
	"permscreen/adapters/postgres"
	"permscreen/adapters/rng"
	"permscreen/adapters/tabular"
	"permscreen/app"
	"permscreen/internal"
	"permscreen/internal/config"
	"permscreen/ports"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := internal.NewDefaultLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store ports.ScreenStorePort
	if cfg.Database.URL != "" {
		db, err := initDatabase(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatalf("database setup failed: %v", err)
		}
		defer db.Close()
		store = postgres.NewScreenRepository(db)
		logger.Info("screen persistence enabled")
	} else {
		logger.Warn("DATABASE_URL not set, screens will not be persisted")
	}

	engine := permutation.NewEngine()
	engine.SetMaxWorkers(cfg.Screen.MaxWorkers)

	service := app.NewScreenService(engine, tabular.NewCohortReader(), rng.NewSeededAdapter(), store, logger)

	defaults := api.Defaults{
		NumPermutations: cfg.Screen.NumPermutations,
		Alpha:           cfg.Screen.Alpha,
		Seed:            cfg.Screen.Seed,
	}
	httpApp := api.NewApp(service, defaults, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpApp.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed: %v", err)
	}
}

func initDatabase(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
