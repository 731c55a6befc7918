package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/memberflow/memberflow/internal/api"
	"github.com/memberflow/memberflow/internal/api/cron"
	v1 "github.com/memberflow/memberflow/internal/api/v1"
	"github.com/memberflow/memberflow/internal/cache"
	"github.com/memberflow/memberflow/internal/config"
	"github.com/memberflow/memberflow/internal/domain/proration"
	stripeclient "github.com/memberflow/memberflow/internal/integration/stripe"
	"github.com/memberflow/memberflow/internal/logger"
	"github.com/memberflow/memberflow/internal/notification"
	"github.com/memberflow/memberflow/internal/postgres"
	pubsubmemory "github.com/memberflow/memberflow/internal/pubsub/memory"
	"github.com/memberflow/memberflow/internal/repository"
	"github.com/memberflow/memberflow/internal/service"
	"github.com/memberflow/memberflow/internal/validator"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.NewInMemoryCache,

			// Postgres
			postgres.NewDB,
			providePostgresClient,

			// PubSub and notifications
			pubsubmemory.NewPubSub,
			notification.NewPublisher,

			// Payment processor
			stripeclient.NewClient,
			provideStripeIntegration,

			// Proration
			proration.NewCalculator,

			// Repositories
			repository.NewOrganizationRepository,
			repository.NewSubscriptionRepository,
			repository.NewEntitlementRepository,
			repository.NewInvoiceRepository,
			repository.NewPaymentEventRepository,
			repository.NewAuditLogRepository,

			// Services
			service.NewServiceParams,
			service.NewSubscriptionService,
			service.NewEntitlementService,
			service.NewReconciliationService,
			service.NewRenewalService,

			// API
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(startServer),
	)
	app.Run()
}

func providePostgresClient(db *postgres.DB) postgres.IClient {
	return db
}

func provideStripeIntegration(client *stripeclient.Client) stripeclient.Integration {
	return client
}

func provideHandlers(
	logger *logger.Logger,
	subscriptionService service.SubscriptionService,
	entitlementService service.EntitlementService,
	reconciliationService service.ReconciliationService,
	renewalService service.RenewalService,
) api.Handlers {
	return api.Handlers{
		Health:           v1.NewHealthHandler(logger),
		Subscription:     v1.NewSubscriptionHandler(subscriptionService, logger),
		Entitlement:      v1.NewEntitlementHandler(entitlementService, logger),
		Webhook:          v1.NewWebhookHandler(reconciliationService, logger),
		CronSubscription: cron.NewSubscriptionHandler(renewalService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration) *gin.Engine {
	return api.NewRouter(handlers, cfg)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db postgres.IClient,
	publisher notification.Publisher,
	log *logger.Logger,
	// request validation depends on the shared validator being built
	_ *playgroundvalidator.Validate,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			if err := publisher.Close(); err != nil {
				log.Errorw("failed to close notification publisher", "error", err)
			}
			db.Close()
			return nil
		},
	})
}
