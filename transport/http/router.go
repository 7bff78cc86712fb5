package http

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter sets up the Gin router
func SetupRouter(handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	// Challenge login, kept for older workers
	results := router.Group("/results")
	{
		results.GET("/challenge", handlers.Challenge)
		results.POST("/login", handlers.Login)
		results.HEAD("/:chainTaskId", handlers.IsResultUploaded)
		results.GET("/:chainTaskId/ipfshash", handlers.ResultHandle)
	}
	router.POST("/", handlers.AddResult)

	v1 := router.Group("/v1/results")
	{
		v1.POST("/token", handlers.Token)
		v1.POST("", handlers.AddResult)
		v1.HEAD("/:chainTaskId", handlers.IsResultUploaded)
		v1.GET("/:chainTaskId/ipfshash", handlers.ResultHandle)
	}

	router.GET("/version", handlers.Version)
	router.GET("/healthz", handlers.Healthz)

	return router
}
