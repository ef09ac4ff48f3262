package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/app"
	"github.com/kailas-cloud/catalograg/internal/config"
	"github.com/kailas-cloud/catalograg/internal/metrics"
	"github.com/kailas-cloud/catalograg/internal/version"
)

// options holds the parsed command-line flags.
type options struct {
	file       string
	collection string
	reset      bool
	clear      bool
}

var errFileRequired = errors.New("--file is required unless --clear is set")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(run).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(runFn func(context.Context, *cobra.Command, options) error) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "catalograg-ingest",
		Short: "Load a product catalog into the vector store",
		Long: `Reads a JSON catalog, builds one chunk per product, embeds every chunk
and upserts it into the target collection. Re-running with the same file
overwrites the previous chunks.

Use --reset to drop the collection first, or --clear to delete every
collection and exit.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if !opts.clear && opts.file == "" {
				return errFileRequired
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFn(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "path to the catalog .json file")
	cmd.Flags().StringVarP(&opts.collection, "collection", "c", "", "target collection (default: agent.collection)")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "delete the collection before ingesting")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "delete all collections and exit")
	cmd.MarkFlagsMutuallyExclusive("reset", "clear")

	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(env, &cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting catalograg ingestion", append(version.Fields(),
		zap.String("env", env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("file", opts.file),
	)...)

	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("Memory driver selected: ingested data is lost when this process exits")
	}

	metrics.RegisterEmbeddingMetrics()

	backend, err := app.OpenBackend(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer backend.Close()

	budgets := app.NewBudgets(ctx, &cfg, backend.KV, logger)
	emb, err := app.NewEmbedding(&cfg, backend.KV, budgets, logger)
	if err != nil {
		return fmt.Errorf("build embedders: %w", err)
	}
	docStore := backend.DocumentStore(emb.Embedders, emb.Dim, logger)

	if opts.clear {
		deleted, err := docStore.DeleteAllCollections(ctx)
		if err != nil {
			return fmt.Errorf("clear collections: %w", err)
		}
		cmd.Printf("Deleted %d collection(s)\n", len(deleted))
		for _, name := range deleted {
			cmd.Printf("  - %s\n", name)
		}
		return nil
	}

	collection := opts.collection
	if collection == "" {
		collection = cfg.Agent.Collection
	}

	if opts.reset {
		if _, err := docStore.ResetCollection(ctx, collection); err != nil {
			return fmt.Errorf("reset collection: %w", err)
		}
		cmd.Printf("Collection %q reset\n", collection)
	}

	stats, err := app.NewIngestService(&cfg, docStore, emb, collection, logger).Ingest(ctx, opts.file)
	if err != nil {
		return err //nolint:wrapcheck // ingest errors carry the file and stage
	}

	cmd.Printf("Ingested %s (%d bytes)\n", stats.File, stats.FileSizeBytes)
	cmd.Printf("  records:          %d\n", stats.Records)
	cmd.Printf("  chunks:           %d\n", stats.Chunks)
	cmd.Printf("  avg tokens/chunk: %d\n", stats.AvgTokens)
	cmd.Printf("  embedding tokens: %d\n", stats.EmbeddingTokens)
	cmd.Printf("  collection count: %d\n", stats.CollectionCount)
	cmd.Printf("  duration:         %s\n", stats.Duration)
	return nil
}
