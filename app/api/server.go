package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/huanchen1107/TawinCWA/app/cfg"
	"github.com/huanchen1107/TawinCWA/app/metrics"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/metrics"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("API endpoints require authentication")
	} else {
		slog.Warn("API endpoints are open (API_ACCESS_KEY not set)")
	}
	{
		api.GET("/sources", handler.APIListSources)
		api.GET("/sources/:source", handler.APIGetSource)
		api.GET("/search", handler.APISearch)
		api.GET("/datasets/:source/:id", handler.APIGetDataset)
		api.GET("/categories/:source", handler.APIGetCategories)

		api.GET("/weather/forecast", handler.APIGetForecast)
		api.GET("/weather/observations", handler.APIGetObservations)
		api.GET("/earthquakes", handler.APIGetEarthquakes)

		api.GET("/status", handler.APIGetStatus)
		api.GET("/connectivity", handler.APITestConnectivity)
		api.POST("/refresh", handler.APIRefreshAll)
		api.POST("/refresh/:type", handler.APIRefreshType)
		api.POST("/export", handler.APIExportAll)
		api.POST("/export/:table", handler.APIExportTable)
		api.POST("/cleanup", handler.APICleanup)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "TawinCWA",
			"version":     cfg.GetVersion(),
			"description": "Government open data crawler with freshness tracking and quality scoring",
			"endpoints": map[string]string{
				"health":       "/health",
				"metrics":      "/metrics",
				"sources":      "/api/sources",
				"search":       "/api/search?source=<name>&q=<query>",
				"dataset":      "/api/datasets/<source>/<id>?format=csv",
				"forecast":     "/api/weather/forecast",
				"observations": "/api/weather/observations",
				"earthquakes":  "/api/earthquakes?days=7&min_magnitude=0",
				"status":       "/api/status",
				"refresh":      "/api/refresh[/<type>] (POST)",
				"export":       "/api/export/<table> (POST)",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		// Also check Authorization header with Bearer prefix
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
