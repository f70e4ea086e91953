package middleware

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/faro-watch/faro/backend/internal/metrics"
	"github.com/faro-watch/faro/backend/internal/queue"
	"github.com/faro-watch/faro/backend/pkg/curation"
	"github.com/faro-watch/faro/backend/pkg/pipeline"
	"github.com/faro-watch/faro/backend/pkg/score"
	"github.com/faro-watch/faro/backend/pkg/store"
)

type AppUser struct {
	// UserID is the `sub` claim; decisions are recorded under it.
	UserID      string
	Role        string
	Permissions []string
}

type App struct {
	Store     store.Store
	Submitter *queue.Submitter
	Curation  *curation.Workflow
	Pipeline  *pipeline.Pipeline
	Scorer    *score.Scorer
	Metrics   *metrics.Registry

	Keyfunc        jwt.Keyfunc
	MasterAPIKey   string
	MasterUserID   string
	MasterUserRole string

	// BatchSize is the default limit of a manual pipeline run.
	BatchSize int
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
