// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal services.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pubrec/internal/platform/config"
	"pubrec/internal/platform/httpserver"
	"pubrec/internal/platform/logger"
	"pubrec/internal/platform/metrics"
	"pubrec/internal/platform/middleware"
	"pubrec/internal/platform/postgres"
	"pubrec/internal/publication"
	publicationhandler "pubrec/internal/publication/handler"
	"pubrec/internal/records"
	"pubrec/internal/search"
	searchhandler "pubrec/internal/search/handler"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	var store records.Store = records.NewMemoryStore()
	if cfg.DatabaseDSN != "" {
		db, err := postgres.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = records.NewPostgres(db)
	} else {
		log.Warn("no database configured, using in-memory record store")
	}

	engine := search.New(store, log, m)
	pubService := publication.NewService(store, log, m)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.Roles(cfg.JWTSigningKey, log))

	router.Route("/api", func(r chi.Router) {
		searchhandler.New(engine, log).Register(r)
		publicationhandler.New(pubService, log).Register(r)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting pubrec server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
