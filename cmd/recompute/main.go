package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"writing-comparator/internal/di"
	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra"
	"writing-comparator/internal/infra/config"
	"writing-comparator/internal/infra/schema"
	"writing-comparator/internal/usecase"
)

var (
	version = "dev"

	// Global flags
	verbose bool

	// Job flags
	documentID int64
	topN       int
	reset      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "recompute",
	Short:   "Maintenance jobs for the writing corpus",
	Version: version,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the vector extension, tables, indexes and search function",
	RunE:  runMigrate,
}

var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "Embed passages, overviews and themes that have no vector yet",
	RunE: withApp(func(ctx context.Context, app *di.ApplicationComponents) (any, error) {
		return app.RecomputeUsecase.RecomputeEmbeddings(ctx, scope())
	}),
}

var overviewThemesCmd = &cobra.Command{
	Use:   "overview-themes",
	Short: "Re-extract themes from overview summaries and relink them",
	Long: `Re-extract themes from every overview summary in scope and relink overviews
to their most similar themes.

Examples:
  # Whole corpus, wiping existing overview links first
  recompute overview-themes --reset

  # One document, five links per overview
  recompute overview-themes --document 12 --top-n 5`,
	RunE: withApp(func(ctx context.Context, app *di.ApplicationComponents) (any, error) {
		return app.RecomputeUsecase.RecomputeOverviewThemes(ctx, options())
	}),
}

var passageThemesCmd = &cobra.Command{
	Use:   "passage-themes",
	Short: "Rescore every embedded passage in scope against all themes",
	RunE: withApp(func(ctx context.Context, app *di.ApplicationComponents) (any, error) {
		return app.RecomputeUsecase.RecomputePassageThemes(ctx, options())
	}),
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Drain queued background scoring jobs and exit",
	RunE: withApp(func(ctx context.Context, app *di.ApplicationComponents) (any, error) {
		return map[string]int{"processed": app.Worker.RunOnce()}, nil
	}),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	for _, cmd := range []*cobra.Command{embeddingsCmd, overviewThemesCmd, passageThemesCmd} {
		cmd.Flags().Int64Var(&documentID, "document", 0, "limit the job to one document id")
	}
	for _, cmd := range []*cobra.Command{overviewThemesCmd, passageThemesCmd} {
		cmd.Flags().IntVar(&topN, "top-n", domain.DefaultTopN, "themes linked per item")
		cmd.Flags().BoolVar(&reset, "reset", false, "delete existing links in scope first")
	}

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(embeddingsCmd)
	rootCmd.AddCommand(overviewThemesCmd)
	rootCmd.AddCommand(passageThemesCmd)
	rootCmd.AddCommand(jobsCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func scope() *int64 {
	if documentID > 0 {
		return &documentID
	}
	return nil
}

func options() usecase.RecomputeOptions {
	return usecase.RecomputeOptions{DocumentID: scope(), TopN: topN, Reset: reset}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := infra.OpenBootstrapConn(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if err := schema.Apply(ctx, conn); err != nil {
		return err
	}
	logger.Info("schema_applied")
	return nil
}

// withApp wires the application against the configured database, runs fn and prints
// its report as JSON on stdout.
func withApp(fn func(ctx context.Context, app *di.ApplicationComponents) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		slog.SetDefault(logger)
		cfg := config.Load()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		pool, err := infra.NewPostgresDB(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to db: %w", err)
		}
		defer pool.Close()

		app := di.NewApplicationComponents(cfg, pool, logger)
		defer app.Close()

		report, err := fn(ctx, app)
		if err != nil {
			logger.Error("recompute_failed", slog.String("command", cmd.Name()), slog.String("error", err.Error()))
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
}
