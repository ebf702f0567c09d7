package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/CyberITEX/cms-commerce/internal/cron"
	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/internal/renewals"
	"github.com/CyberITEX/cms-commerce/pkg/config"
	"github.com/CyberITEX/cms-commerce/pkg/db"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
	"github.com/CyberITEX/cms-commerce/pkg/metrics"
	"github.com/CyberITEX/cms-commerce/pkg/migrate"
	"github.com/CyberITEX/cms-commerce/pkg/redis"
	pkgstripe "github.com/CyberITEX/cms-commerce/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "renewal-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "renewal-worker"

	logg = logger.New(logger.Options{
		ServiceName: "renewal-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:   payments.NewRepository(gdb),
		Stripe: payments.NewStripeClient(stripeClient),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	renewalService, err := renewals.NewService(renewals.ServiceParams{
		Repo:     renewals.NewRepository(gdb),
		Payments: paymentService,
		Tx:       dbClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal service", err)
		os.Exit(1)
	}

	charger, err := renewals.NewStripeCharger(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create charger", err)
		os.Exit(1)
	}

	renewalMetrics := metrics.NewRenewalMetrics(prometheus.DefaultRegisterer)

	job, err := renewals.NewJob(renewals.JobParams{
		Service:   renewalService,
		Charger:   charger,
		Metrics:   renewalMetrics,
		Logger:    logg,
		BatchSize: cfg.Renewal.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redis.Key("lock", "renewals", cfg.App.Env), cfg.Renewal.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler lock", err)
		os.Exit(1)
	}

	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  renewalMetrics,
		Interval: cfg.Renewal.PollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting renewal worker")

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "renewal worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "renewal worker shutting down gracefully")
}
