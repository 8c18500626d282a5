package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/exprflow/internal/config"
	"github.com/matzehuels/exprflow/pkg/cache"
)

// cacheCommand groups the maintenance subcommands of the response cache.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
		Long: `The response cache holds BioMart mappings and downloaded gene sets.
clear and stats act on the configured driver, file or redis.`,
	}
	cmd.PersistentFlags().String("cache-driver", "", "cache to act on: file or redis (default: cache.driver)")

	cmd.AddCommand(
		c.cacheMaintainCommand("clear", "Remove all cached responses", clearCache),
		c.cacheMaintainCommand("stats", "Show cache size and expired entries", showCacheStats),
		c.cachePathCommand(),
	)
	return cmd
}

// cacheMaintainCommand opens the configured cache and hands it to fn.
func (c *CLI) cacheMaintainCommand(use, short string, fn func(*cobra.Command, config.CacheConfig, cache.Maintainer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Cache.Driver == "none" {
				printInfo("Caching is disabled")
				return nil
			}
			ch, err := newCache(cmd.Context(), cfg.Cache)
			if err != nil {
				return err
			}
			defer ch.Close()
			m, ok := ch.(cache.Maintainer)
			if !ok {
				return fmt.Errorf("cache driver %q cannot be inspected", cfg.Cache.Driver)
			}
			return fn(cmd, cfg.Cache, m)
		},
	}
}

func clearCache(cmd *cobra.Command, cfg config.CacheConfig, m cache.Maintainer) error {
	n, err := m.Clear(cmd.Context())
	if err != nil {
		return err
	}
	printSuccess("Cleared %d cached %s", n, plural(n, "entry"))
	printDetail("%s", cacheLocation(cfg, m))
	return nil
}

func showCacheStats(cmd *cobra.Command, cfg config.CacheConfig, m cache.Maintainer) error {
	st, err := m.Stats(cmd.Context())
	if err != nil {
		return err
	}
	printKeyValue("location", cacheLocation(cfg, m))
	printKeyValue("entries", humanize.Comma(int64(st.Entries)))
	printKeyValue("size", humanize.Bytes(uint64(st.Bytes)))
	printKeyValue("expired", humanize.Comma(int64(st.Expired)))
	return nil
}

func cacheLocation(cfg config.CacheConfig, m cache.Maintainer) string {
	if fc, ok := m.(*cache.FileCache); ok {
		return fc.Dir()
	}
	return cfg.RedisURL
}

// cachePathCommand prints the file cache directory.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the file cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := fileCacheDir(cfg.Cache.Dir)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(stdout, dir)
			return nil
		},
	}
}

// fileCacheDir returns the configured cache directory or the XDG default.
func fileCacheDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return cacheDir()
}
