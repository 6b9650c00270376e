package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"cajaclaro/internal/auth"
	"cajaclaro/internal/cache"
	"cajaclaro/internal/cli"
	"cajaclaro/internal/core"
	apphttp "cajaclaro/internal/http"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/payments"
	"cajaclaro/internal/recurrence"
	"cajaclaro/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp)

	if cfg.AuthJWTSecret == "" {
		logger.Error("AUTH_JWT_SECRET is required to serve the API")
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid business timezone", applog.FieldError, err)
		os.Exit(1)
	}

	res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Account lookups happen on every authenticated request
	accountCache := cache.NewLRUCache[core.Account](1000, 5*time.Minute)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache))
	caches.Register(accountCache)
	caches.StartCleanup(context.Background(), time.Minute)

	engine := recurrence.NewEngine(loc)
	processor := services.NewRecurringProcessor(res.Store, engine, nil)
	accounts := services.NewAccountService(res.Store, accountCache)

	var gateways []payments.Gateway
	if cfg.FlowSecretKey != "" {
		gateways = append(gateways, payments.NewFlow(cfg.FlowSecretKey))
	}
	if cfg.MercadoPagoWebhookSecret != "" {
		gateways = append(gateways, payments.NewMercadoPago(cfg.MercadoPagoWebhookSecret))
	}
	paymentService := payments.NewService(res.Store, gateways...)
	paymentService.OnApplied(accounts.Forget)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:      res.Store,
		Accounts:   accounts,
		Ledger:     services.NewLedgerService(res.Store, loc),
		Recurring:  services.NewRecurringService(res.Store, engine, res.Publisher),
		Dashboard:  services.NewDashboardService(res.Store, processor, loc),
		Milestones: services.NewMilestoneService(res.Store),
		Payments:   paymentService,
		Verifier:   auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer),
		Location:   loc,
		Caches:     caches,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		ImportMaxBytes:     cfg.ImportMaxBytes,
	})

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting cajaclaro server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String(),
		"gateways", len(gateways))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
