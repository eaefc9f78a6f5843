package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casebook/internal/activity"
	dochandler "casebook/internal/document/handler"
	docservice "casebook/internal/document/service"
	docstore "casebook/internal/document/store"
	apphttp "casebook/internal/http"
	"casebook/internal/identity"
	casehandler "casebook/internal/kyccase/handler"
	caseservice "casebook/internal/kyccase/service"
	casestore "casebook/internal/kyccase/store"
	"casebook/internal/ownership"
	partyhandler "casebook/internal/party/handler"
	partyservice "casebook/internal/party/service"
	partystore "casebook/internal/party/store"
	"casebook/internal/platform/config"
	"casebook/internal/platform/httpserver"
	"casebook/internal/platform/logger"
	"casebook/internal/platform/metrics"
	"casebook/internal/platform/postgres"
	"casebook/internal/platform/redis"
	"casebook/internal/requirements"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	m := metrics.New()

	activityStore := activity.NewPostgresStore(db)
	recorder := activity.NewRecorder(activityStore, log, m, cfg.ActivityBufferSize)

	caseStore := casestore.NewPostgres(db)
	partyStore := partystore.NewPostgres(db)
	documentStore := docstore.NewPostgres(db)
	users := identity.NewPostgresDirectory(db)

	resolver := ownership.New(caseStore, partyStore, caseStore, documentStore)

	partySvc := partyservice.New(partyStore, log)
	caseSvc := caseservice.New(caseStore, caseStore, users, partySvc, recorder, log, m)
	docSvc := docservice.New(documentStore, documentStore, resolver, caseStore, recorder, log, m)

	reqStore := requirements.NewCachedStore(
		requirements.NewPostgresStore(db), redisClient, cfg.RequirementsCacheTTL, log, m)
	reqSvc := requirements.NewService(reqStore, caseSvc, docSvc, log)

	router := apphttp.NewRouter(apphttp.Deps{
		Logger:       log,
		Metrics:      m,
		DB:           db,
		Redis:        redisClient,
		Cases:        casehandler.New(caseSvc, activityStore, log),
		Parties:      partyhandler.New(partySvc, log),
		Documents:    dochandler.New(docSvc, resolver, log),
		Requirements: requirements.NewHandler(reqSvc, log),
		ActorHeader:  cfg.ActorHeader,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("activity worker stopped", "error", err)
		}
	}()

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
