package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CyberITEX/cms-commerce/api/controllers"
	"github.com/CyberITEX/cms-commerce/api/middleware"
	cartsvc "github.com/CyberITEX/cms-commerce/internal/cart"
	couponsvc "github.com/CyberITEX/cms-commerce/internal/coupons"
	ordersvc "github.com/CyberITEX/cms-commerce/internal/orders"
	paymentsvc "github.com/CyberITEX/cms-commerce/internal/payments"
	renewalsvc "github.com/CyberITEX/cms-commerce/internal/renewals"
	subsvc "github.com/CyberITEX/cms-commerce/internal/subscriptions"
	"github.com/CyberITEX/cms-commerce/pkg/config"
	"github.com/CyberITEX/cms-commerce/pkg/db"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
	"github.com/CyberITEX/cms-commerce/pkg/redis"
)

// Services bundles everything the router exposes over HTTP.
type Services struct {
	Cart          cartsvc.Service
	Coupons       couponsvc.Service
	Orders        ordersvc.Service
	Payments      paymentsvc.Service
	Subscriptions subsvc.Service
	Renewals      renewalsvc.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	gatherer prometheus.Gatherer,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(svcs.Cart, logg))
			r.Post("/quote", controllers.CartQuote(svcs.Cart, logg))
			r.Post("/items", controllers.CartAddItem(svcs.Cart, logg))
			r.Delete("/items/{itemID}", controllers.CartRemoveItem(svcs.Cart, logg))
			r.Patch("/settings", controllers.CartUpdateSettings(svcs.Cart, logg))
			r.Post("/coupon", controllers.CouponApply(svcs.Coupons, logg))
			r.Delete("/coupon", controllers.CouponRemove(svcs.Coupons, logg))
		})

		r.Post("/checkout", controllers.Checkout(svcs.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(svcs.Orders, logg))
			r.Get("/{orderID}", controllers.OrderGet(svcs.Orders, logg))
			r.Get("/number/{number}", controllers.OrderGetByNumber(svcs.Orders, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", controllers.SubscriptionList(svcs.Subscriptions, logg))
			r.Get("/{subscriptionID}", controllers.SubscriptionGet(svcs.Subscriptions, logg))
			r.Get("/{subscriptionID}/changes", controllers.SubscriptionChanges(svcs.Subscriptions, logg))
			r.Post("/{subscriptionID}/request-change", controllers.SubscriptionRequestChange(svcs.Subscriptions, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg), middleware.RequireAdmin(logg))

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/payments", controllers.OrderPayments(svcs.Payments, logg))
			r.Patch("/status", controllers.AdminOrderUpdateStatus(svcs.Orders, logg))
			r.Post("/refund", controllers.AdminOrderRefund(svcs.Payments, logg))
		})

		r.Route("/subscriptions/{subscriptionID}", func(r chi.Router) {
			r.Post("/approve", controllers.AdminSubscriptionApprove(svcs.Subscriptions, logg))
			r.Post("/reject", controllers.AdminSubscriptionReject(svcs.Subscriptions, logg))
			r.Post("/pause", controllers.AdminSubscriptionPause(svcs.Subscriptions, logg))
			r.Post("/resume", controllers.AdminSubscriptionResume(svcs.Subscriptions, logg))
			r.Post("/cancel", controllers.AdminSubscriptionCancel(svcs.Subscriptions, logg))
			r.Post("/change-plan", controllers.AdminSubscriptionChangePlan(svcs.Subscriptions, logg))
			r.Post("/change-frequency", controllers.AdminSubscriptionChangeFrequency(svcs.Subscriptions, logg))
			r.Post("/renewal-orders", controllers.AdminRenewalCreate(svcs.Renewals, logg))
		})

		r.Route("/renewal-orders", func(r chi.Router) {
			r.Get("/due", controllers.AdminRenewalListDue(svcs.Renewals, logg))
			r.Post("/{renewalOrderID}/settle", controllers.AdminRenewalSettle(svcs.Renewals, logg))
			r.Post("/{renewalOrderID}/retry", controllers.AdminRenewalRetry(svcs.Renewals, logg))
		})
	})

	return r
}
