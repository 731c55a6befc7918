package api

import (
	"github.com/gin-gonic/gin"
	"github.com/memberflow/memberflow/internal/api/cron"
	v1 "github.com/memberflow/memberflow/internal/api/v1"
	"github.com/memberflow/memberflow/internal/config"
	"github.com/memberflow/memberflow/internal/rest/middleware"
)

type Handlers struct {
	Health           *v1.HealthHandler
	Subscription     *v1.SubscriptionHandler
	Entitlement      *v1.EntitlementHandler
	Webhook          *v1.WebhookHandler
	CronSubscription *cron.SubscriptionHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.TenantMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	cronGroup := router.Group("/cron")
	cronGroup.Use(middleware.CronAuthMiddleware(cfg))
	registerCronRoutes(cronGroup, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("", handlers.Subscription.CreateSubscription)
		subscriptions.GET("/:id", handlers.Subscription.GetSubscription)
		subscriptions.POST("/:id/activate", handlers.Subscription.ActivateSubscription)
		subscriptions.POST("/:id/cancel", handlers.Subscription.CancelSubscription)
		subscriptions.POST("/:id/change-plan", handlers.Subscription.ChangePlan)
	}

	organizations := router.Group("/organizations")
	{
		organizations.GET("/:id/features", handlers.Entitlement.ListFeatures)
		organizations.GET("/:id/features/:feature", handlers.Entitlement.CheckFeature)
	}

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/stripe", handlers.Webhook.HandleStripeWebhook)
	}
}

func registerCronRoutes(router *gin.RouterGroup, handlers Handlers) {
	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("/reminders", handlers.CronSubscription.ProcessRenewalReminders)
		subscriptions.POST("/advance", handlers.CronSubscription.ProcessDueTransitions)
	}
}
