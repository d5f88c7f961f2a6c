package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mizuki/formflow/internal/api/handler"
	"github.com/mizuki/formflow/internal/api/middleware"
	"github.com/mizuki/formflow/internal/config"
	"github.com/mizuki/formflow/internal/observability"
	"github.com/mizuki/formflow/internal/relay"
	"github.com/mizuki/formflow/internal/store"
)

// RouterDeps bundles everything the router wires into handlers.
type RouterDeps struct {
	Submitter *relay.Submitter
	Callback  *relay.Callback
	Streamer  *relay.Streamer
	Store     store.JobStore
	Metrics   *observability.Metrics
	MetricsH  http.Handler
	StaticDir string
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps RouterDeps, cfg *config.Config) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	submitHandler := handler.NewSubmitHandler(deps.Submitter, deps.Metrics)
	callbackHandler := handler.NewCallbackHandler(deps.Callback, deps.Metrics)
	streamHandler := handler.NewStreamHandler(deps.Streamer, deps.Metrics)
	jobHandler := handler.NewJobHandler(deps.Store)

	r.GET("/health", healthHandler.Health)
	if deps.MetricsH != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsH))
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/submit", submitHandler.Submit)
		v1.POST("/callback", callbackHandler.Callback)
		v1.GET("/stream", streamHandler.Stream)
		v1.GET("/jobs/:id", jobHandler.Get)
	}

	// Intake form UI
	if deps.StaticDir != "" {
		r.StaticFile("/", deps.StaticDir+"/index.html")
		r.Static("/static", deps.StaticDir)
	}

	return r
}
