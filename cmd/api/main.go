package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/CyberITEX/cms-commerce/api/routes"
	"github.com/CyberITEX/cms-commerce/internal/cart"
	"github.com/CyberITEX/cms-commerce/internal/coupons"
	"github.com/CyberITEX/cms-commerce/internal/orders"
	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/internal/pricing"
	"github.com/CyberITEX/cms-commerce/internal/renewals"
	"github.com/CyberITEX/cms-commerce/internal/subscriptions"
	"github.com/CyberITEX/cms-commerce/pkg/config"
	"github.com/CyberITEX/cms-commerce/pkg/db"
	"github.com/CyberITEX/cms-commerce/pkg/email"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
	"github.com/CyberITEX/cms-commerce/pkg/migrate"
	"github.com/CyberITEX/cms-commerce/pkg/redis"
	pkgstripe "github.com/CyberITEX/cms-commerce/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	var stripeClient *pkgstripe.Client
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap stripe", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe api key not set, refunds disabled")
	}

	gdb := dbClient.DB()

	pricingService, err := pricing.NewService(pricing.NewRepository(gdb))
	if err != nil {
		fatal(logg, "pricing service", err)
	}

	cartService, err := cart.NewService(cart.NewRepository(gdb), cart.NewPricingOptionLoader(gdb), pricingService, dbClient)
	if err != nil {
		fatal(logg, "cart service", err)
	}

	couponService, err := coupons.NewService(coupons.ServiceParams{
		Repo:   coupons.NewRepository(gdb),
		Carts:  coupons.NewCartStore(gdb),
		Pricer: pricingService,
		Tx:     dbClient,
	})
	if err != nil {
		fatal(logg, "coupon service", err)
	}

	var stripeAPI payments.StripePaymentClient
	if stripeClient != nil {
		stripeAPI = payments.NewStripeClient(stripeClient)
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:   payments.NewRepository(gdb),
		Stripe: stripeAPI,
		Logger: logg,
	})
	if err != nil {
		fatal(logg, "payment service", err)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:   subscriptions.NewRepository(gdb),
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		fatal(logg, "subscription service", err)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:          orders.NewRepository(gdb),
		Carts:         orders.NewCartLoader(gdb),
		Payments:      paymentService,
		Subscriptions: subscriptionService,
		Mailer:        email.New(cfg.Email, logg),
		Tx:            dbClient,
		Logger:        logg,
	})
	if err != nil {
		fatal(logg, "order service", err)
	}

	renewalService, err := renewals.NewService(renewals.ServiceParams{
		Repo:     renewals.NewRepository(gdb),
		Payments: paymentService,
		Tx:       dbClient,
		Logger:   logg,
	})
	if err != nil {
		fatal(logg, "renewal service", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, prometheus.DefaultGatherer, routes.Services{
			Cart:          cartService,
			Coupons:       couponService,
			Orders:        orderService,
			Payments:      paymentService,
			Subscriptions: subscriptionService,
			Renewals:      renewalService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func fatal(logg *logger.Logger, what string, err error) {
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
