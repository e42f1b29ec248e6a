package handlers

import (
	"log/slog"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hoax-guard/config"
	"hoax-guard/logger"
	"hoax-guard/services"
)

// NewRouter wires every HTTP route. Admin routes exist only when an admin
// token is configured.
func NewRouter(cfg *config.Config, analyzer *services.AnalyzerService, limits *services.RateLimitTracker,
	logs *logger.Broadcaster, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Fetch.MaxBytes
	r.Use(gin.Recovery(), RequestID(), AccessLog(log), cors.New(corsConfig(cfg.CORS)))

	analyzerH := NewAnalyzerHandler(analyzer, limits, cfg.Fetch.MaxBytes, log)

	api := r.Group("/api")
	{
		api.GET("/health", analyzerH.Health)
		api.GET("/limits", analyzerH.Limits)
		api.POST("/analyze/text", analyzerH.AnalyzeText)
		api.POST("/analyze/image", analyzerH.AnalyzeImage)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.AdminToken != "" && logs != nil {
		adminH := NewAdminHandler(cfg.AdminToken, analyzer, logs, log)
		api.GET("/admin/logs", adminH.StreamLogs)

		admin := api.Group("/admin", adminH.AuthMiddleware())
		admin.POST("/pause", adminH.Pause)
		admin.POST("/resume", adminH.Resume)
		admin.GET("/status", adminH.Status)
	} else {
		log.Info("admin routes disabled", "reason", "no admin token or log broadcaster")
	}

	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Admin-Token", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
	}
	if len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return c
}
