package app

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/slidewise/internal/api"
	"github.com/timmy/slidewise/internal/api/middleware"
)

// Router builds the HTTP router over the wired store.
func (a *App) Router() *gin.Engine {
	return api.SetupRouter(a.Store, a.Logger, &api.RouterConfig{
		Mode:          a.Config.Server.Mode,
		CORS:          middleware.NewCORSConfig(a.Config.Server.CORS),
		MaxUploadSize: a.Config.Server.MaxUploadSize,
		Supports:      a.Sources.Supports,
		HealthChecks:  a.HealthChecks(),
	})
}
