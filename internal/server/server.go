package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/faro-watch/faro/backend/internal/metrics"
	"github.com/faro-watch/faro/backend/internal/queue"
	mid "github.com/faro-watch/faro/backend/internal/server/middleware"
	"github.com/faro-watch/faro/backend/internal/service"
	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/leaselock"
	"github.com/faro-watch/faro/backend/pkg/logger"
	pgstore "github.com/faro-watch/faro/backend/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New returns the echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	if app.Metrics != nil {
		e.Use(mid.MetricsMiddleware(app.Metrics))
	}
	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e, app)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var keyFn keyfunc.Keyfunc
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		keyFn = k
	}

	databaseURL := util.GetEnv("DATABASE_URL")
	if util.GetEnvBool("MIGRATE_ON_START", true) {
		if err := pgstore.Migrate(databaseURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
	}

	conn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	reg := metrics.NewRegistry()
	svc, err := service.New(ctx, service.Config{
		Store:    pgstore.NewStorage(conn),
		Locker:   leaselock.New(conn),
		Metrics:  reg,
		Parallel: util.GetEnvInt("PIPELINE_PARALLEL", 0),
	})
	if err != nil {
		logger.Fatal("Failed to build service", "err", err)
	}
	go svc.RefreshRegistry(ctx, util.GetEnvSeconds("REGISTRY_REFRESH_SECONDS", 5*time.Minute))

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}
	publisher := queue.NewRabbitPublisher(ch)

	switch util.GetEnvString("REVIEW_MODE", service.ReviewQueue) {
	case service.ReviewQueue:
		svc.Curation.SetDispatcher(publisher)
	case service.ReviewInline:
		client, err := service.NewCompletionClient()
		if err != nil {
			logger.Fatal("Failed to create AI client", "err", err)
		}
		d := svc.UseInlineReviews(service.NewReviewer(client, reg), util.GetEnvInt("AI_PARALLEL_REQ", 4))
		defer d.Wait()
	}

	app := &mid.App{
		Store:          svc.Store,
		Submitter:      queue.NewSubmitter(svc.Store, svc.Store, publisher),
		Curation:       svc.Curation,
		Pipeline:       svc.Pipeline,
		Scorer:         svc.Scorer,
		Metrics:        reg,
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   util.GetEnv("MASTER_USER_ID"),
		MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
		BatchSize:      util.GetEnvInt("PIPELINE_BATCH_SIZE", 50),
	}
	if keyFn != nil {
		app.Keyfunc = keyFn.Keyfunc
	}

	e := New(app)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
