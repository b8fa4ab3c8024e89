package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alcyxob/setpad/internal/coach"
	"alcyxob/setpad/internal/editor"
	"alcyxob/setpad/internal/metrics"
	"alcyxob/setpad/internal/service"
	"alcyxob/setpad/internal/syncstatus"
)

// Dependencies are the services behind the HTTP API. Coach and Export may be
// nil, in which case their endpoints answer 503.
type Dependencies struct {
	Auth    service.AuthService
	Logs    service.LogManager
	Editors *editor.Registry
	Export  service.ExportService
	Coach   *coach.Client
	Sync    syncstatus.Reporter
	Metrics *metrics.Manager
}

// NewRouter builds a gin engine with the middleware stack and all routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(deps.Metrics), RequestLogger())
	if deps.Metrics != nil {
		router.Use(RequestMetrics(deps.Metrics))
	}
	SetupRoutes(router, deps)
	return router
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	authHandler := NewAuthHandler(deps.Auth)
	logHandler := NewLogHandler(deps.Logs, deps.Editors)

	authMiddleware := AuthMiddleware(deps.Auth)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", authHandler.Me)

		// --- Training Logs ---
		tables := protected.Group("/tables")
		{
			tables.GET("", logHandler.ListTables)
			tables.POST("", logHandler.CreateTable)
			tables.GET("/:id", logHandler.GetTable)
			tables.PUT("/:id", logHandler.PutTable)
			tables.PATCH("/:id", logHandler.PatchTable)
			tables.DELETE("/:id", logHandler.DeleteTable)
			tables.POST("/:id/flush", logHandler.FlushTable)

			// --- Rows and Sets (debounced auto-save) ---
			tables.POST("/:id/rows", logHandler.AddRow)
			tables.DELETE("/:id/rows/last", logHandler.RemoveLastRow)
			tables.PATCH("/:id/rows/:index", logHandler.UpdateRow)
			tables.POST("/:id/rows/:index/toggle-unit", logHandler.ToggleRowUnit)
			tables.POST("/:id/rows/:index/sets", logHandler.AddSet)
			tables.DELETE("/:id/rows/:index/sets/:set", logHandler.RemoveSet)
		}

		protected.GET("/active", logHandler.GetActive)
		protected.GET("/templates", logHandler.Templates)
		protected.GET("/search", logHandler.Search)

		autocomplete := protected.Group("/autocomplete")
		{
			autocomplete.GET("/muscle-groups", logHandler.MuscleGroups)
			autocomplete.GET("/exercises", logHandler.Exercises)
		}

		if deps.Coach != nil {
			coachHandler := NewCoachHandler(deps.Coach)
			protected.GET("/insights", coachHandler.Insights)
			protected.POST("/import", coachHandler.Import)
		} else {
			protected.GET("/insights", notConfigured("AI insights"))
			protected.POST("/import", notConfigured("Import"))
		}

		if deps.Export != nil {
			protected.POST("/export", NewExportHandler(deps.Export).Export)
		} else {
			protected.POST("/export", notConfigured("Export"))
		}

		protected.GET("/sync-status", syncStatus(deps.Sync))
	}
}

// syncStatus godoc
// @Summary Remote store reachability and unsaved edits
// @Tags Status
// @Produce json
// @Security BearerAuth
// @Success 200 {object} syncstatus.Status
// @Router /sync-status [get]
func syncStatus(reporter syncstatus.Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if reporter == nil {
			c.JSON(http.StatusOK, syncstatus.Status{Online: true})
			return
		}
		c.JSON(http.StatusOK, reporter.Status())
	}
}

func notConfigured(feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		abortWithError(c, http.StatusServiceUnavailable, feature+" is not configured on this server")
	}
}
