// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/app"
	"github.com/unclebandit/prospect-outreach/internal/config"
	"github.com/unclebandit/prospect-outreach/internal/controller"
	"github.com/unclebandit/prospect-outreach/internal/handler"
	"github.com/unclebandit/prospect-outreach/internal/logger"
	"github.com/unclebandit/prospect-outreach/internal/metrics"
	"github.com/unclebandit/prospect-outreach/internal/quota"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "outreach-api")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	tracker := app.Tracker(cfg, store, log.Named("tracker"))
	evaluator, err := app.Evaluator(cfg)
	if err != nil {
		log.Fatal("failed to load holiday calendar", zap.Error(err))
	}

	// Manual dispatch shares the daily quota with the scheduled passes, so
	// the endpoint stays off when Redis is unreachable.
	var dispatcher controller.CampaignDispatcher
	if rdb, err := quota.NewClient(ctx, cfg.RedisURL); err != nil {
		log.Warn("redis unavailable; manual dispatch disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		d, err := app.Dispatcher(cfg, store, tracker, &quota.DailyQuota{Redis: rdb}, log)
		if err != nil {
			log.Fatal("failed to build dispatcher", zap.Error(err))
		}
		dispatcher = d
	}

	campaignService := &service.CampaignService{
		CampaignRepo: store.Campaigns,
		ProspectRepo: store.Prospects,
		AccountRepo:  store.Accounts,
		Tracker:      tracker,
		Evaluator:    evaluator,
		Spacing:      cfg.ProspectSpacing,
		Log:          log.Named("campaigns"),
	}

	campaignController := controller.NewCampaignController(campaignService, dispatcher)
	prospectController := controller.NewProspectController(tracker, store.Prospects)
	callbackHandler := handler.NewCallbackHandler(tracker, cfg.CallbackToken, log.Named("callbacks"))
	if cfg.CallbackToken == "" {
		log.Warn("CALLBACK_TOKEN is empty; status callbacks will be rejected")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handler.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/callbacks/prospect-status", callbackHandler.ProspectStatus)

	campaignController.Routes(r)
	prospectController.Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server running", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
