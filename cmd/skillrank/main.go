// Package main is the skillrank CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/skillrank/internal/config"
	"github.com/hyperjump/skillrank/internal/embedding"
	"github.com/hyperjump/skillrank/internal/recommend"
	"github.com/hyperjump/skillrank/internal/skills"
	"github.com/hyperjump/skillrank/internal/storage"
	"github.com/hyperjump/skillrank/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/skillrank/config.yaml"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "skillrank",
		Short:         "Skill-based matching between job postings and candidates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "enable debug logging (cluster builds, corpus changes, etc.)")

	root.AddCommand(
		newImportCmd(flags),
		newRecommendCmd(flags),
		newStatusCmd(flags),
		newWatchCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skillrank version %s\n", version)
		},
	}
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and builds the logger for a command. Long-running
// commands get the JSON production logger; one-shot commands log to stderr.
func setup(flags *globalFlags, longRunning bool) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || flags.debug
	var logger *zap.Logger
	if longRunning {
		logger, err = utils.NewLogger(debugMode)
	} else {
		logger, err = utils.NewCLILogger(debugMode)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode))
	return cfg, logger, nil
}

// Components holds the wired storage, embedding model and recommendation service.
type Components struct {
	Storage *storage.SQLiteStorage
	Models  *embedding.Loader
	Service *recommend.Service
}

func (c *Components) Close() {
	if c.Models != nil {
		_ = c.Models.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents opens storage and the embedding model. A model that
// cannot be loaded is an error here rather than on the first request.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	loader := embedding.NewConfigLoader(cfg.Embedding, logger)
	provider, err := loader.Provider()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	synth := skills.NewSynthesizer(provider, skills.WithLogger(logger))
	svc := recommend.NewService(store, synth, provider.ModelID(),
		recommend.WithLogger(logger),
		recommend.WithClusteringConfig(cfg.Clustering))

	logger.Debug("components initialized",
		zap.String("database", cfg.Storage.DatabasePath),
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", provider.ModelID()),
		zap.Int("dimensions", provider.Dimensions()))

	return &Components{
		Storage: store,
		Models:  loader,
		Service: svc,
	}, nil
}
