package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leadops/crm-api/internal/app"
	"github.com/leadops/crm-api/internal/auth"
	"github.com/leadops/crm-api/internal/config"
	"github.com/leadops/crm-api/internal/db"
	"github.com/leadops/crm-api/internal/handlers"
	"github.com/leadops/crm-api/internal/metrics"
	"github.com/leadops/crm-api/internal/notify"
	"github.com/leadops/crm-api/internal/settings"
	"github.com/leadops/crm-api/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.NewStore(pool)

	appSettings, err := settings.Load(ctx, st, settings.Settings{
		AcademicYear: cfg.DefaultAcademicYear,
		Currency:     cfg.DefaultCurrency,
		BrandName:    cfg.DefaultBrandName,
		AdminEmail:   cfg.AdminEmail,
	})
	if err != nil {
		logger.Error("load settings", "error", err)
		os.Exit(1)
	}
	logger.Info("settings_loaded", "academic_year", appSettings.AcademicYear, "currency", appSettings.Currency)

	var sender notify.Sender
	if cfg.ResendAPIKey != "" {
		sender = notify.NewResendClient(cfg.ResendBaseURL, cfg.ResendAPIKey)
	} else {
		logger.Warn("email delivery disabled", "reason", "RESEND_API_KEY is not set")
	}

	m := metrics.New()
	h := handlers.NewServer(cfg, appSettings, st, sender, m, logger, pool)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	router, err := app.NewRouter(cfg, h, verifier, logger, m)
	if err != nil {
		logger.Error("build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		logger.Info("api_started", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
