package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/internal/config"
	"github.com/matzehuels/exprflow/pkg/artifact"
	"github.com/matzehuels/exprflow/pkg/buildinfo"
	"github.com/matzehuels/exprflow/pkg/cache"
	"github.com/matzehuels/exprflow/pkg/integrations/biomart"
	"github.com/matzehuels/exprflow/pkg/pipeline"
	"github.com/matzehuels/exprflow/pkg/render"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "exprflow"

	// metricsFile is the Prometheus textfile written next to the artifacts.
	metricsFile = "metrics.prom"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	noCache    bool
	logFormat  string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "exprflow runs differential-expression analyses end to end",
		Long:         `exprflow fits a negative binomial model to RNA-seq counts, tests one comparison, annotates and filters the result table, runs gene-set over-representation and renders the figures.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseLogFormat(c.logFormat)
			if err != nil {
				return err
			}
			c.Logger.SetFormatter(f)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./exprflow.yaml)")
	root.PersistentFlags().BoolVar(&c.noCache, "no-cache", false, "disable the response cache")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "log output: text, json or logfmt")

	// Register all subcommands
	root.AddCommand(c.runCommand())
	root.AddCommand(c.datasetsCommand())
	root.AddCommand(c.cleanCommand())
	root.AddCommand(c.filterCommand())
	root.AddCommand(c.mapCommand())
	root.AddCommand(c.enrichCommand())
	root.AddCommand(c.plotCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.runsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user set on cmd.
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Loaded, error) {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		c.Logger.Debug("loaded config", "file", cfg.File)
	}
	return cfg, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use. The caller closes it.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, error) {
	ch, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(ch, mappingKeyer(cfg.Mapping.URL), c.Logger)

	st, err := store.OpenDriver(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		_ = runner.Close()
		return nil, fmt.Errorf("open run store: %w", err)
	}
	runner.Store = st
	return runner, nil
}

// mappingKeyer scopes cached mapping answers by BioMart host unless the
// public endpoint is used.
func mappingKeyer(rawURL string) cache.Keyer {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || rawURL == biomart.DefaultURL {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(nil, u.Host+":")
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Driver {
	case "none":
		return cache.NewNullCache(), nil
	case "redis":
		return cache.NewRedisCache(ctx, cfg.RedisURL, appName+":")
	}
	dir, err := fileCacheDir(cfg.Dir)
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// newSink writes artifacts to the output directory and, when a bucket is
// configured, mirrors them to S3 under a per-run prefix.
func newSink(ctx context.Context, cfg config.OutputConfig, runPrefix string) (artifact.Sink, error) {
	fs, err := artifact.NewFS(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if cfg.S3.Bucket == "" {
		return fs, nil
	}
	s3, err := artifact.NewS3(ctx, artifact.S3Config{
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		Prefix:    filepath.ToSlash(filepath.Join(cfg.S3.Prefix, runPrefix)),
		PathStyle: cfg.S3.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return artifact.Tee{fs, s3}, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/exprflow/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// =============================================================================
// Options Helpers
// =============================================================================

// pipelineOptions translates the loaded configuration into pipeline options.
func pipelineOptions(cfg *config.Config, logger *log.Logger) (pipeline.Options, error) {
	formats := make([]render.Format, 0, len(cfg.Plot.Formats))
	for _, f := range cfg.Plot.Formats {
		parsed, err := render.ParseFormats(f)
		if err != nil {
			return pipeline.Options{}, err
		}
		formats = append(formats, parsed...)
	}

	opts := pipeline.Options{
		Dataset:                  cfg.Dataset.Source,
		Reference:                cfg.Analysis.Reference,
		Levels:                   cfg.Analysis.Levels,
		Coefficient:              cfg.Analysis.Coefficient,
		Alpha:                    cfg.Analysis.Alpha,
		SkipIndependentFiltering: !cfg.Analysis.IndependentFiltering,
		MaxIter:                  cfg.Analysis.MaxIter,
		Shrink:                   cfg.Analysis.Shrink,
		Mapping: pipeline.MappingOptions{
			Source:    cfg.Mapping.Source,
			URL:       cfg.Mapping.URL,
			Dataset:   cfg.Mapping.Dataset,
			File:      cfg.Mapping.File,
			Timeout:   cfg.Mapping.Timeout,
			Rate:      cfg.Mapping.Rate,
			BatchSize: cfg.Mapping.BatchSize,
			TTL:       cfg.Cache.TTL,
		},
		Refresh:        cfg.Mapping.Refresh,
		Key:            results.Key(cfg.Filter.Key),
		DropMissingKey: cfg.Filter.DropMissingKey,
		PAdj:           cfg.Filter.PAdj,
		Log2FC:         cfg.Filter.LFC,
		Direction:      results.Direction(cfg.Filter.Direction),
		Enrich: pipeline.EnrichOptions{
			GeneSets:     cfg.Enrich.GeneSets,
			MinSize:      cfg.Enrich.MinSize,
			MaxSize:      cfg.Enrich.MaxSize,
			PValueCutoff: cfg.Enrich.PValueCutoff,
			PAdjCutoff:   cfg.Enrich.PAdjCutoff,
			TopN:         cfg.Enrich.Top,
		},
		Formats:     formats,
		Width:       cfg.Plot.Width,
		Height:      cfg.Plot.Height,
		SkipNetwork: !cfg.Plot.Network,
		Logger:      logger,
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}
