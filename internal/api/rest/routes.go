package rest

import (
	"github.com/giantcranberry/Newsworthy-sub000/internal/api/rest/handlers"
	"github.com/giantcranberry/Newsworthy-sub000/internal/api/rest/middleware"
	"github.com/giantcranberry/Newsworthy-sub000/internal/service"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies зависимости HTTP слоя
type Dependencies struct {
	Upgrades      service.UpgradeService
	Notifications handlers.NotificationHandler
	WebhookSecret string
	Auth          gin.HandlerFunc
	Registry      *prometheus.Registry
	HealthChecks  map[string]handlers.HealthCheckFunc
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps Dependencies, log *logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	health := handlers.NewHealthHandler(deps.HealthChecks)
	r.GET("/health", health.HealthCheck)

	// Prometheus метрики
	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	upgradeHandler := handlers.NewUpgradeHandler(deps.Upgrades, log.Named("upgrades"))
	webhookHandler := handlers.NewWebhookHandler(deps.Notifications, deps.WebhookSecret, log.Named("webhooks"))

	v1 := r.Group("/api/v1")
	if deps.Auth != nil {
		v1.Use(deps.Auth)
	}
	{
		upgrades := v1.Group("/releases/:releaseID/upgrades")
		{
			upgrades.GET("/products", upgradeHandler.ListProducts)
			upgrades.GET("/cart", upgradeHandler.GetCart)
			upgrades.POST("/cart/toggle", upgradeHandler.Toggle)
			upgrades.DELETE("/cart/:productType", upgradeHandler.RemoveFromCart)
			upgrades.POST("/checkout", upgradeHandler.Checkout)
		}
	}

	// Вебхуки на корневом уровне роутера, без JWT: подлинность проверяется подписью
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", webhookHandler.HandleStripeWebhook)
	}
	return r
}
