package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the public routes on router and the internal ones
// under /internal behind internalMiddleware
func RegisterRoutes(router *gin.Engine, a *API, public []gin.HandlerFunc, internalMiddleware ...gin.HandlerFunc) {
	router.GET("/health", a.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", public...)
	{
		api.GET("/search", a.Search)
		api.POST("/subscriptions", a.Subscribe)
		api.POST("/validate-phone", a.ValidatePhone)
	}

	internal := router.Group("/internal", internalMiddleware...)
	{
		internal.GET("/health", a.HealthCheck)
		internal.GET("/subscriptions", a.ListSubscriptions)
		internal.POST("/check", a.TriggerCheck)
	}
}
