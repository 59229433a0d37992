// Package cli implements the versefind-indexer command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/app"
	"github.com/kailas-cloud/versefind/internal/config"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	logpkg "github.com/kailas-cloud/versefind/internal/logger"
	"github.com/kailas-cloud/versefind/internal/metrics"
	"github.com/kailas-cloud/versefind/internal/repository/checkpoint"
	"github.com/kailas-cloud/versefind/internal/usecase/indexing"
	"github.com/kailas-cloud/versefind/internal/version"
)

// env holds state shared by subcommands, filled in PersistentPreRunE.
type env struct {
	name     string
	cfgFile  string
	logLevel string

	cfg    config.Config
	logger *zap.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "versefind-indexer",
		Short: "Seed, index and inspect the versefind search corpus",
		Long: `versefind-indexer embeds published entities and writes the vectors to the
content store and the configured vector backend. Interrupted runs resume from
per-kind checkpoints.

Example usage:
  versefind-indexer seed --file corpus.yaml
  versefind-indexer index --kinds verse,place
  versefind-indexer status`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.load()
		},
	}
	root.PersistentFlags().StringVar(&e.name, "env", config.GetEnv(), "config environment (config/<env>.yaml)")
	root.PersistentFlags().StringVar(&e.cfgFile, "config", "", "explicit config file, overrides --env")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "log level override")

	root.AddCommand(
		newIndexCommand(e),
		newSeedCommand(e),
		newStatusCommand(e),
		newResetCommand(e),
		newQueryCommand(e),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (e *env) load() error {
	var err error
	if e.cfgFile != "" {
		e.cfg, err = config.LoadFile(e.cfgFile)
	} else {
		e.cfg, err = config.Load(e.name)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := e.cfg.Logging.Level
	if e.logLevel != "" {
		level = e.logLevel
	}
	e.logger, err = logpkg.NewLogger(e.name, level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	return nil
}

// openApp opens the stores and the embedder chain.
func (e *env) openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, e.cfg, e.logger)
}

// pipeline opens the checkpoint file and builds the indexing pipeline.
// a may be nil for commands that only touch checkpoints. The returned
// closer releases the checkpoint file.
func (e *env) pipeline(a *app.App, onBatch func(entity.Kind, int)) (*indexing.Pipeline, func() error, error) {
	cp, err := checkpoint.Open(e.cfg.Indexing.CheckpointPath)
	if err != nil {
		return nil, nil, err
	}
	opts := indexing.Options{
		Model:      e.cfg.Embedding.Model,
		BatchSize:  e.cfg.Indexing.BatchSize,
		Workers:    e.cfg.Indexing.Workers,
		RatePerSec: e.cfg.Indexing.RatePerSec,
		Burst:      e.cfg.Indexing.Burst,
		OnBatch:    onBatch,
	}
	if a == nil {
		return indexing.New(nil, nil, nil, nil, cp, opts, e.logger), cp.Close, nil
	}
	return indexing.New(a.Content, a.Content, a.Vectors, a.Embedder, cp, opts, e.logger), cp.Close, nil
}
