package router

import (
	"database/sql"

	"adserver/internal/delivery/handler"
	appmiddleware "adserver/internal/delivery/middleware"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/service"
	"adserver/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services bundles everything the HTTP layer depends on.
type Services struct {
	Auth       service.AuthService
	Ads        service.AdService
	Campaigns  service.CampaignService
	Billing    service.BillingService
	Publishers service.PublisherService
	Earnings   service.EarningsService
	Tracking   service.TrackingService
}

// Session init is throttled per IP to keep abusive clients from minting
// tracking sessions in bulk.
const (
	trackInitRPS   = 2
	trackInitBurst = 5
)

func Setup(db *sql.DB, services Services, loggers *logger.Loggers, handlerMetrics *metrics.HandlerMetrics, debug bool) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	authHandler := handler.NewAuthHandler(services.Auth, loggers, handlerMetrics)
	adHandler := handler.NewAdHandler(services.Ads, loggers, handlerMetrics)
	campaignHandler := handler.NewCampaignHandler(services.Campaigns, loggers, handlerMetrics)
	billingHandler := handler.NewBillingHandler(services.Billing, loggers, handlerMetrics)
	publisherHandler := handler.NewPublisherHandler(services.Publishers, loggers, handlerMetrics)
	earningsHandler := handler.NewEarningsHandler(services.Earnings, loggers, handlerMetrics)
	trackerHandler := handler.NewTrackerHandler(services.Tracking, loggers, handlerMetrics, debug)
	healthHandler := handler.NewHealthHandler(db)

	rateLimiter := appmiddleware.NewRateLimiter(trackInitRPS, trackInitBurst)

	r.Handle("/metrics", handlerMetrics.HTTPHandler())
	r.Get("/health/check", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/token", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(rateLimiter.Handler)
			r.Post("/track/init", trackerHandler.InitSession)
		})
		r.Post("/track/event", trackerHandler.TrackEvent)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Authenticator(services.Auth))

			r.Get("/users/me", authHandler.Me)

			r.Post("/ads", adHandler.CreateAd)
			r.Get("/ads", adHandler.GetUserAds)
			r.Get("/ads/{id}", adHandler.GetAd)
			r.Put("/ads/{id}", adHandler.UpdateAd)
			r.Delete("/ads/{id}", adHandler.DeleteAd)

			r.Post("/campaigns", campaignHandler.CreateCampaign)
			r.Get("/campaigns", campaignHandler.GetUserCampaigns)
			r.Get("/campaigns/{id}", campaignHandler.GetCampaign)
			r.Patch("/campaigns/{id}/status", campaignHandler.UpdateCampaignStatus)
			r.Delete("/campaigns/{id}", campaignHandler.DeleteCampaign)

			r.Post("/billing", billingHandler.CreateBilling)
			r.Get("/billing", billingHandler.GetBilling)
			r.Put("/billing", billingHandler.UpdateBilling)

			r.Post("/publishers", publisherHandler.CreatePublisher)
			r.Get("/publishers", publisherHandler.GetUserPublishers)
			r.Get("/publishers/{id}", publisherHandler.GetPublisher)
			r.Put("/publishers/{id}", publisherHandler.UpdatePublisher)
			r.Delete("/publishers/{id}", publisherHandler.DeletePublisher)
			r.Get("/publishers/{id}/stats", publisherHandler.GetStats)
			r.Get("/publishers/{id}/stats/periodic", publisherHandler.GetPeriodicStats)
			r.Get("/publishers/{id}/revenue", publisherHandler.GetRevenueSummary)
			r.Get("/publishers/{id}/earnings", earningsHandler.GetMonthlyEarnings)
			r.Get("/publishers/{id}/earnings/history", earningsHandler.GetEarningsHistory)

			r.Get("/earnings/withdrawals", earningsHandler.ListRequestedWithdrawals)
			r.Post("/earnings/{id}/withdraw", earningsHandler.RequestWithdrawal)
			r.Post("/earnings/{id}/process", earningsHandler.ProcessWithdrawal)
		})
	})

	return r
}
