package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faro-watch/faro/backend/internal/metrics"
	"github.com/faro-watch/faro/backend/internal/queue"
	"github.com/faro-watch/faro/backend/internal/service"
	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/ai"
	"github.com/faro-watch/faro/backend/pkg/leaselock"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/logger/console"
	pgstore "github.com/faro-watch/faro/backend/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
		JSON:  util.GetEnvString("LOG_FORMAT", "text") == "json",
	})
	logger.Init(consoleLogger)

	// Review client
	aiClient, err := service.NewCompletionClient()
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}
	if err := aiClient.LoadModel(ctx); err != nil {
		logger.Warn("Could not preload review model", "err", err)
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	reg := metrics.NewRegistry()
	svc, err := service.New(ctx, service.Config{
		Store:    pgstore.NewStorage(pgConn),
		Locker:   leaselock.New(pgConn),
		Metrics:  reg,
		Parallel: util.GetEnvInt("PIPELINE_PARALLEL", 0),
	})
	if err != nil {
		logger.Fatal("Failed to build service", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Follow-up reviews of mentions queued by this worker go through the
	// review queue as well.
	pubCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer pubCh.Close()
	svc.Curation.SetDispatcher(queue.NewRabbitPublisher(pubCh))

	go reportAIMetrics(ctx, aiClient, reg)
	go svc.RefreshRegistry(ctx, util.GetEnvSeconds("REGISTRY_REFRESH_SECONDS", 5*time.Minute))

	reviewer := service.NewReviewer(aiClient, reg)
	worker := queue.NewWorker(
		queue.NewJobRunner(svc.Store, svc.Pipeline, reg),
		queue.NewReviewRunner(reviewer, svc.Curation.ApplyReview),
	)
	if err := worker.Run(ctx, conn); err != nil {
		logger.Fatal("Worker stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}

// reportAIMetrics moves the client's token counters into Prometheus.
func reportAIMetrics(ctx context.Context, client ai.CompletionClient, reg *metrics.Registry) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := client.GetMetrics()
			client.ResetMetrics()
			reg.AddModelMetrics(m)
			logger.Info(
				"AI Metrics",
				"input_tokens", m.InputTokens,
				"output_tokens", m.OutputTokens,
				"total_tokens", m.TotalTokens,
				"tokens_per_second", m.TokenPerSecond,
			)
		}
	}
}
