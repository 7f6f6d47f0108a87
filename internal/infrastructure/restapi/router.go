package restapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterOptions selects the optional routes.
type RouterOptions struct {
	// MetricsHandler is mounted on MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
	// SwaggerSpecPath is served as /docs/swagger.yaml and browsed under /swagger when set.
	SwaggerSpecPath string
}

// SetupRouter builds the gin engine serving the relay API.
func SetupRouter(relayHandler *RelayHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	// the relay is called from the governance web UI
	router.Use(cors.Default())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/relayer", relayHandler.RelayHandler)
		v1.POST("/end-voting-relayer", relayHandler.EndVotingRelayHandler)
	}

	if opts.MetricsHandler != nil {
		router.GET(opts.MetricsPath, gin.WrapH(opts.MetricsHandler))
	}

	if opts.SwaggerSpecPath != "" {
		router.StaticFile("/docs/swagger.yaml", opts.SwaggerSpecPath)
		swaggerURL := ginSwagger.URL("/docs/swagger.yaml")
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, swaggerURL))
	}

	return router
}
