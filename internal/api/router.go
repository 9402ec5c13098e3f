package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/legisync/internal/api/handler"
	"github.com/timmy/legisync/internal/api/middleware"
	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/logger"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Jobs      handler.JobRunner
	Schedules handler.ScheduleLister // optional
	DB        handler.Pinger         // optional
	Documents handler.DocumentReader // optional
	Logger    *logger.Logger
	Runs      handler.RunConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, cfg config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	runHandler := handler.NewRunHandler(deps.Jobs, deps.Schedules, deps.Runs)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/families", runHandler.ListFamilies)

		v1.GET("/runs", runHandler.ListRuns)
		v1.POST("/runs", runHandler.TriggerRun)
		v1.GET("/runs/:id", runHandler.GetRun)
		v1.DELETE("/runs/:id", runHandler.CancelRun)

		v1.GET("/schedules", runHandler.ListSchedules)

		if deps.Documents != nil {
			v1.GET("/documents", handler.NewDocumentHandler(deps.Documents).ListDocuments)
		}
	}

	return r
}
