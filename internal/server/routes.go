package server

import (
	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/internal/server/middleware"
	"github.com/faro-watch/faro/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo, app *middleware.App) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	if app.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
	}

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Article intake
	apiRoutes.POST("/articles", routes.SubmitArticleHandler, middleware.RequirePermission(middleware.PermArticleSubmit))
	apiRoutes.GET("/jobs/:id", routes.GetJobHandler, middleware.RequirePermission(middleware.PermJobView))
	apiRoutes.POST("/pipeline/run", routes.RunPipelineHandler, middleware.RequirePermission(middleware.PermPipelineRun))

	// Review queue
	apiRoutes.GET("/review", routes.ListReviewHandler, middleware.RequirePermission(middleware.PermReviewView))
	apiRoutes.GET("/review/:id", routes.GetReviewHandler, middleware.RequirePermission(middleware.PermReviewView))
	apiRoutes.POST("/review/merge", routes.MergeReviewHandler, middleware.RequirePermission(middleware.PermReviewDecide))
	apiRoutes.POST("/review/:id/approve", routes.ApproveReviewHandler, middleware.RequirePermission(middleware.PermReviewDecide))
	apiRoutes.POST("/review/:id/reject", routes.RejectReviewHandler, middleware.RequirePermission(middleware.PermReviewDecide))
	apiRoutes.POST("/review/:id/admit", routes.ReadmitReviewHandler, middleware.RequirePermission(middleware.PermReviewDecide))

	// Graph scores
	apiRoutes.GET("/nodes/:id/score", routes.GetNodeScoreHandler, middleware.RequirePermission(middleware.PermGraphView))
	apiRoutes.GET("/edges/:id/score", routes.GetEdgeScoreHandler, middleware.RequirePermission(middleware.PermGraphView))
}
