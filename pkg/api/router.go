package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/notifd/notifd/pkg/api/handlers"
	"github.com/notifd/notifd/pkg/manager"
	"github.com/notifd/notifd/pkg/protocol/schema"
)

// Router holds the Gin engine and dependencies
type Router struct {
	engine    *gin.Engine
	mgr       *manager.Manager
	validator *schema.Validator
}

// NewRouter creates a new API router
func NewRouter(mgr *manager.Manager, validator *schema.Validator) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	SetupMiddleware(engine)

	router := &Router{
		engine:    engine,
		mgr:       mgr,
		validator: validator,
	}

	router.setupRoutes()

	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	// Swagger UI
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(301, "/swagger/index.html")
	})

	// Health check at root
	healthHandler := handlers.NewHealthHandler(r.mgr)
	r.engine.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		// Discovery
		discoveryHandler := handlers.NewDiscoveryHandler(r.mgr)
		discovery := v1.Group("/discovery")
		{
			discovery.POST("/scan", discoveryHandler.Scan)
			discovery.GET("/events", discoveryHandler.Events)
		}

		// Devices and command dispatch
		devicesHandler := handlers.NewDevicesHandler(r.mgr)
		controlHandler := handlers.NewControlHandler(r.mgr, r.validator)
		devices := v1.Group("/devices")
		{
			devices.GET("", devicesHandler.ListDevices)
			devices.GET("/:id", devicesHandler.GetDevice)
			devices.DELETE("/:id", devicesHandler.RemoveDevice)

			devices.POST("/:id/text", controlHandler.SendText)
			devices.POST("/:id/clear", controlHandler.Clear)
			devices.POST("/:id/command", controlHandler.Command)
			devices.POST("/:id/image", controlHandler.Image)
		}

		v1.POST("/broadcast", controlHandler.Broadcast)
	}
}

// Engine exposes the underlying Gin engine, used by tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
