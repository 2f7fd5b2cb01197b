package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	custommiddleware "stockfolio/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	Auth             *custommiddleware.Authenticator
	PortfolioHandler *PortfolioHandler
	BrokerHandler    *BrokerHandler
	PriceHandler     *PriceHandler
	AdminHandler     *AdminHandler
	Logger           zerolog.Logger
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	log := config.Logger.With().Str("component", "http").Logger()

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil || v.Status >= 500 {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("Request handled")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":  "healthy",
			"service": "stockfolio-api",
		})
	})

	api := e.Group("/api", config.Auth.Middleware)

	portfolio := api.Group("/portfolio")
	{
		portfolio.POST("/refresh", config.PortfolioHandler.Refresh)
		portfolio.GET("/summary", config.PortfolioHandler.GetSummary)
		portfolio.GET("/net-positions", config.PortfolioHandler.GetNetPositions)
	}

	api.GET("/sync/logs", config.PortfolioHandler.GetSyncLogs)

	brokers := api.Group("/brokers")
	{
		brokers.GET("/:broker/status", config.BrokerHandler.GetStatus)
		brokers.POST("/:broker/disconnect", config.BrokerHandler.Disconnect)
	}

	api.GET("/prices/:symbol", config.PriceHandler.GetPrice)

	admin := api.Group("/admin", custommiddleware.AdminMiddleware)
	{
		admin.POST("/sync/trigger", config.AdminHandler.TriggerSweep)
		admin.GET("/brokers/health", config.AdminHandler.GetBrokerHealth)
	}
}
