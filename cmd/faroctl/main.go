package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/faro-watch/faro/backend/internal/queue"
	"github.com/faro-watch/faro/backend/internal/service"
	"github.com/faro-watch/faro/backend/internal/util"
	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/leaselock"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/logger/console"
	"github.com/faro-watch/faro/backend/pkg/score"
	"github.com/faro-watch/faro/backend/pkg/store/memory"
	pgstore "github.com/faro-watch/faro/backend/pkg/store/pgx"
)

var version = "0.1.0"

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:   "faroctl",
		Short: "Operate the faro mention resolution pipeline",
		Long: `faroctl runs maintenance tasks against the faro database:
schema migrations, registry imports and manual pipeline batches.
It can also process local article files in memory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug: debug || util.GetEnvBool("DEBUG", false),
			}))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().String("database-url", util.GetEnv("DATABASE_URL"), "Postgres connection string")

	root.AddCommand(migrateCmd())
	root.AddCommand(importRegistryCmd())
	root.AddCommand(runBatchCmd())
	root.AddCommand(processCmd())
	return root
}

func databaseURL(cmd *cobra.Command) (string, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		return "", fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return url, nil
}

// openService connects to Postgres and builds the core on it.
func openService(cmd *cobra.Command) (*service.Service, func(), error) {
	url, err := databaseURL(cmd)
	if err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(cmd.Context(), url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	svc, err := service.New(cmd.Context(), service.Config{
		Store:    pgstore.NewStorage(pool),
		Locker:   leaselock.New(pool),
		Parallel: util.GetEnvInt("PIPELINE_PARALLEL", 0),
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, pool.Close, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			if err := pgstore.Migrate(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
			return nil
		},
	}
}

func importRegistryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-registry <file>",
		Short: "Replace the identity registry with a YAML or JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := svc.ImportRegistry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d identities from %s\n", n, args[0])
			return nil
		},
	}
}

func runBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-batch",
		Short: "Process a batch of unprocessed articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}

			svc, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := svc.Pipeline.ProcessBatch(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().Int("limit", util.GetEnvInt("PIPELINE_BATCH_SIZE", 50), "maximum number of articles")
	return cmd
}

type processedNode struct {
	Node  common.GraphNode `json:"node"`
	Score score.NodeScore  `json:"score"`
}

type processReport struct {
	Jobs    []common.Job             `json:"jobs"`
	Pending []common.ReviewQueueItem `json:"pending"`
	Nodes   []processedNode          `json:"nodes"`
	Edges   []common.GraphEdge       `json:"edges"`
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <article-file>...",
		Short: "Run local article files through an in-memory pipeline",
		Long: `Process plain text article files without a database or broker.
Each file becomes one article whose id is the file name. Jobs run on the
in-memory queue with the regular retry schedule and the resulting graph is
printed as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registryPath, _ := cmd.Flags().GetString("registry")
			language, _ := cmd.Flags().GetString("language")
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			mem := memory.New()
			svc, err := service.New(ctx, service.Config{Store: mem})
			if err != nil {
				return err
			}
			if registryPath != "" {
				if _, err := svc.ImportRegistry(ctx, registryPath); err != nil {
					return err
				}
			}

			jq := queue.NewJobQueue(ctx, queue.NewJobRunner(mem, svc.Pipeline, nil), queue.JobQueueOptions{
				Workers:    2,
				MaxRetries: queue.MaxRetries,
			})
			sub := queue.NewSubmitter(mem, mem, jq)

			var jobIDs []string
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				job, err := sub.Submit(ctx, util.SanitizeArticle(common.Article{
					ID:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
					Language: language,
					RawText:  string(data),
				}))
				if err != nil {
					return err
				}
				jobIDs = append(jobIDs, job.ID)
			}
			jq.Wait()

			return writeJSON(cmd.OutOrStdout(), buildReport(ctx, svc, mem, jobIDs))
		},
	}
	cmd.Flags().String("registry", util.GetEnv("REGISTRY_FILE"), "identity registry snapshot")
	cmd.Flags().String("language", "es", "article language")
	return cmd
}

func buildReport(ctx context.Context, svc *service.Service, mem *memory.Store, jobIDs []string) processReport {
	report := processReport{
		Jobs:    []common.Job{},
		Pending: []common.ReviewQueueItem{},
		Nodes:   []processedNode{},
		Edges:   []common.GraphEdge{},
	}
	for _, id := range jobIDs {
		if job, err := mem.GetJob(ctx, id); err == nil {
			report.Jobs = append(report.Jobs, job)
		}
	}
	if pending, err := svc.Curation.List(ctx, common.StatusPending); err == nil {
		report.Pending = append(report.Pending, pending...)
	}
	if nodes, err := mem.ListNodes(ctx); err == nil {
		for _, n := range nodes {
			report.Nodes = append(report.Nodes, processedNode{Node: n, Score: svc.Scorer.ScoreNode(n)})
		}
	}
	if edges, err := mem.ListEdges(ctx); err == nil {
		report.Edges = append(report.Edges, edges...)
	}
	return report
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
