package cmd

import (
	"context"
	"fmt"
	"os"

	"vibestream/config"
	"vibestream/logger"
	"vibestream/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vibestream",
	Short: "vibestream is a self-hosted music library and streaming server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(loadConfig())
	},
}

// loadConfig reads the configuration and initialises the global logger from it.
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.DefaultConfig(cfg.LogLevel, cfg.LogFile))
	return cfg
}

// Execute executes the root command.
func Execute() {
	defer logger.Sync()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
