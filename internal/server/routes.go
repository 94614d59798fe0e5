package server

import (
	"github.com/OFFIS-RIT/caseboard/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/caseboard/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Investigation routes
	apiRoutes.GET("/investigations", routes.GetInvestigationsHandler)
	apiRoutes.POST("/investigations", routes.CreateInvestigationHandler, middleware.RequirePermission("investigation.create"))
	apiRoutes.GET("/investigations/:id", routes.GetInvestigationHandler)
	apiRoutes.PATCH("/investigations/:id", routes.EditInvestigationHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.DELETE("/investigations/:id", routes.DeleteInvestigationHandler, middleware.RequirePermission("investigation.delete"))
	apiRoutes.GET("/active-investigation", routes.GetActiveInvestigationHandler)
	apiRoutes.PUT("/active-investigation", routes.SetActiveInvestigationHandler)

	// Capture routes
	apiRoutes.POST("/investigations/:id/extract", routes.ExtractCaptureHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.POST("/investigations/:id/captures", routes.CommitCaptureHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.POST("/investigations/:id/uploads", routes.UploadCaptureImageHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.GET("/investigations/:id/captures/:capture_id/image", routes.GetCaptureImageHandler)

	// Graph routes
	apiRoutes.POST("/investigations/:id/entities", routes.AddEntityHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.DELETE("/investigations/:id/entities/:entity_id", routes.DeleteEntityHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.POST("/investigations/:id/relationships", routes.AddRelationshipHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.DELETE("/investigations/:id/relationships/:relationship_id", routes.DeleteRelationshipHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.POST("/investigations/:id/actions", routes.ApplyActionsHandler, middleware.RequirePermission("investigation.update"))
	apiRoutes.GET("/investigations/:id/layout", routes.GetLayoutHandler)
	apiRoutes.GET("/investigations/:id/path", routes.GetPathHandler)
	apiRoutes.GET("/investigations/:id/neighborhood", routes.GetNeighborhoodHandler)
	apiRoutes.GET("/investigations/:id/details", routes.GetEntityDetailsHandler)

	// Ask routes
	apiRoutes.POST("/investigations/:id/ask", routes.AskHandler, middleware.RequirePermission("investigation.ask"))
	apiRoutes.GET("/investigations/:id/conversations", routes.GetConversationsHandler)
	apiRoutes.GET("/investigations/:id/conversations/:conversation_id", routes.GetConversationHandler)
	apiRoutes.DELETE("/investigations/:id/conversations/:conversation_id", routes.DeleteConversationHandler, middleware.RequirePermission("investigation.ask"))

	// Settings routes
	apiRoutes.GET("/settings", routes.GetSettingsHandler, middleware.RequirePermission("settings.view"))
	apiRoutes.PUT("/settings", routes.SaveSettingsHandler, middleware.RequirePermission("settings.update"))
}
