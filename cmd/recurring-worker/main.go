package main

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	"cajaclaro/internal/amqp"
	"cajaclaro/internal/cli"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/recurrence"
	"cajaclaro/internal/services"
	"cajaclaro/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker)
	logger.Info("Starting recurring-worker")

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

	processor := services.NewRecurringProcessor(res.Store, recurrence.NewEngine(loc), logger.WithComponent(applog.ComponentRecurrence)).
		WithConcurrency(cfg.RecurringConcurrency)

	schedulerConfig := services.DefaultSchedulerConfig()
	schedulerConfig.Interval = cfg.RecurringInterval
	schedulerConfig.Location = loc
	scheduler := services.NewRecurringScheduler(processor, schedulerConfig)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Error("Scheduler stop error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", applog.FieldError, err)
		os.Exit(1)
	}

	// Per-account tick requests published by the API
	if client, ok := res.Publisher.(*amqp.Client); ok {
		ticks := worker.NewTickWorker(processor, loc)
		go func() {
			if err := client.ConsumeTickRequests(ctx, ticks.HandleTickRequest); err != nil && ctx.Err() == nil {
				logger.Error("Tick request consumer stopped", applog.FieldError, err)
			}
		}()
		logger.Info("Consuming tick requests", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, relying on scheduled sweeps only")
	}

	<-done
	logger.Info("Recurring-worker shutdown complete")
}
