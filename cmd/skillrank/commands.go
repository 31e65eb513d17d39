package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hyperjump/skillrank/internal/cli"
	"github.com/hyperjump/skillrank/internal/corpus"
	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/ranking"
	"github.com/hyperjump/skillrank/internal/recommend"
	"github.com/hyperjump/skillrank/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCmd(flags *globalFlags) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import postings and candidates from a YAML, JSON or XLSX corpus file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			c, err := corpus.Load(args[0])
			if err != nil {
				return err
			}
			// Importing only touches storage; the model is not needed.
			store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			sum, err := corpus.Apply(cmd.Context(), store, c, corpus.ApplyOptions{Prune: prune, Logger: logger})
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d created, %d updated, %d unchanged, %d deleted\n",
				args[0], sum.Created, sum.Updated, sum.Unchanged, sum.Deleted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "delete stored entities that are not in the file")
	return cmd
}

func newRecommendCmd(flags *globalFlags) *cobra.Command {
	var (
		candidateID int64
		postingID   int64
		limit       int
		output      string
	)
	cmd := &cobra.Command{
		Use:   "recommend (--candidate ID | --posting ID)",
		Short: "Rank postings for a candidate, or candidates for a posting",
		Example: `  skillrank recommend --candidate 42
  skillrank recommend --posting 7 --limit 10 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			queryKind, queryID := models.KindCandidate, candidateID
			if cmd.Flags().Changed("posting") {
				queryKind, queryID = models.KindPosting, postingID
			}

			cfg, logger, err := setup(flags, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			response, err := components.Service.Query(cmd.Context(), queryID, queryKind, queryKind.Opposite())
			if errors.Is(err, recommend.ErrUnknownEntity) {
				return fmt.Errorf("no %s with id %d", queryKind, queryID)
			}
			if err != nil {
				return fmt.Errorf("recommend failed: %w", err)
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Recommend.DefaultLimit
			}
			response.Results = ranking.Limit(response.Results, limit)
			return cli.WriteRecommendations(cmd.OutOrStdout(), response, format)
		},
	}
	cmd.Flags().Int64Var(&candidateID, "candidate", 0, "candidate id to find postings for")
	cmd.Flags().Int64Var(&postingID, "posting", 0, "posting id to find candidates for")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (0 = all; default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, compact, or json")
	cmd.MarkFlagsMutuallyExclusive("candidate", "posting")
	cmd.MarkFlagsOneRequired("candidate", "posting")
	return cmd
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var (
		output string
		warm   bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored entity counts and cluster index state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(flags, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			ctx := cmd.Context()
			if warm {
				if err := components.Service.Warm(ctx); err != nil {
					return fmt.Errorf("warm failed: %w", err)
				}
			}
			statuses := make([]recommend.KindStatus, 0, len(models.Kinds))
			for _, kind := range models.Kinds {
				statuses = append(statuses, components.Service.Status(kind))
			}
			if format != cli.OutputJSON {
				for _, kind := range models.Kinds {
					total, err := components.Storage.CountEntities(ctx, kind)
					if err != nil {
						return err
					}
					eligible, err := components.Storage.CountEligible(ctx, kind)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "stored %s: %d (%d eligible)\n", kind, total, eligible)
				}
			}
			return cli.WriteStatus(cmd.OutOrStdout(), statuses, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&warm, "warm", true, "load and cluster every kind before reporting")
	return cmd
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "watch [file]",
		Short: "Import a corpus file and re-import it whenever it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags, true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			path := cfg.Watch.CorpusFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no corpus file given and watch.corpus_file is not set")
			}

			components, err := initializeComponents(cfg, logger)
			if err != nil {
				logger.Fatal("Failed to initialize components", zap.Error(err))
			}
			defer components.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			apply := func(path string) {
				mu.Lock()
				defer mu.Unlock()
				if err := importCorpus(ctx, components, path, prune, logger); err != nil {
					logger.Warn("corpus import failed", zap.String("path", path), zap.Error(err))
				}
			}

			apply(path)
			if err := components.Service.Warm(ctx); err != nil {
				logger.Fatal("Failed to build cluster indexes", zap.Error(err))
			}

			w := corpus.NewWatcher([]string{path}, apply,
				corpus.WithLogger(logger),
				corpus.WithDebounce(cfg.Watch.Debounce),
				corpus.WithRemoveHandler(func(p string) {
					logger.Warn("corpus file removed; stored entities are kept", zap.String("path", p))
				}))
			if err := w.Start(ctx); err != nil {
				logger.Fatal("Failed to start watcher", zap.Error(err))
			}
			defer w.Stop()

			logger.Info("watching corpus file", zap.String("path", path), zap.String("version", version))
			<-ctx.Done()
			logger.Info("Shutting down...")
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "delete stored entities that are not in the file")
	return cmd
}

// importCorpus loads path and applies it with the service as notifier, then
// rebuilds the cluster index of every kind that changed.
func importCorpus(ctx context.Context, components *Components, path string, prune bool, logger *zap.Logger) error {
	c, err := corpus.Load(path)
	if err != nil {
		return err
	}
	sum, err := corpus.Apply(ctx, components.Storage, c, corpus.ApplyOptions{
		Prune:    prune,
		Notifier: components.Service,
		Logger:   logger,
	})
	if err != nil {
		// Storage may hold part of the import without the matching notifications.
		for _, kind := range models.Kinds {
			if rerr := components.Service.Reload(ctx, kind); rerr != nil {
				logger.Warn("reload after failed import", zap.String("kind", string(kind)), zap.Error(rerr))
			}
		}
		return err
	}
	for _, kind := range sum.Changed {
		if err := components.Service.Invalidate(ctx, kind, true); err != nil {
			return fmt.Errorf("rebuild %s clusters: %w", kind, err)
		}
		st := components.Service.Status(kind)
		logger.Info("clusters rebuilt",
			zap.String("kind", string(kind)),
			zap.String("state", st.State),
			zap.Int("size", st.Size),
			zap.Ints("cluster_sizes", st.ClusterSizes))
	}
	return nil
}
