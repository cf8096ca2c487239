package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/slidewise/internal/api/handler"
	"github.com/timmy/slidewise/internal/api/middleware"
	"github.com/timmy/slidewise/internal/logger"
	"github.com/timmy/slidewise/internal/queue"
)

// RouterConfig holds what the router needs besides the store.
type RouterConfig struct {
	Mode          string
	CORS          middleware.CORSConfig
	MaxUploadSize int64
	Supports      func(ext string) bool
	HealthChecks  []handler.HealthCheck
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(store queue.Store, log *logger.Logger, cfg *RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	if cfg.MaxUploadSize > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadSize
	}

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(cfg.HealthChecks...)
	jobHandler := handler.NewJobHandler(store, &handler.JobHandlerConfig{
		Supports:      cfg.Supports,
		MaxUploadSize: cfg.MaxUploadSize,
	})

	// Health check
	r.GET("/health", healthHandler.Health)

	r.POST("/upload", jobHandler.Upload)
	r.GET("/status/:uid", jobHandler.Status)
	r.GET("/status/:uid/export", jobHandler.Export)

	return r
}
