package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"smartlists/config"
	"smartlists/internal/logging"
)

const configEnv = "SMARTLISTS_CONFIG"

type commandContext struct {
	configFlag *string

	once      sync.Once
	settings  config.Settings
	logger    *slog.Logger
	logCloser io.Closer
	err       error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p
		}
	}
	if p := strings.TrimSpace(os.Getenv(configEnv)); p != "" {
		return p
	}
	return filepath.Join("cache", "settings.json")
}

// ensureSettings loads settings.json (creating it with defaults when
// missing), applies environment overrides and builds the logger.
func (c *commandContext) ensureSettings() (config.Settings, *slog.Logger, error) {
	c.once.Do(func() {
		settings, err := config.NewManager(c.configPath()).Load()
		if err != nil {
			c.err = err
			return
		}
		settings.ApplyEnv(os.Getenv)

		logger, closer, err := logging.New(settings.Log, os.Stderr)
		if err != nil {
			c.err = err
			return
		}
		slog.SetDefault(logger)
		c.settings, c.logger, c.logCloser = settings, logger, closer
	})
	return c.settings, c.logger, c.err
}

func (c *commandContext) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "smartlists",
		Short:         "Rule-based smart playlists and collections for Jellyfin",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			ctx.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Settings file path (default $"+configEnv+" or cache/settings.json)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newValidateCommand(ctx))
	rootCmd.AddCommand(newRefreshCommand(ctx))
	return rootCmd
}
