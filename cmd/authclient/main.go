// Package main provides the authclient binary: token management and
// authenticated requests from the command line.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvcrn/authclient/internal/config"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "authclient"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	configPath string
	logLevel   string
	log        zerolog.Logger
}

func rootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Authenticated API client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.log = logger.New()
			if c.logLevel != "" {
				c.log = c.log.Level(logger.ParseLevel(c.logLevel))
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", defaultConfigPath(), "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")

	cmd.AddCommand(c.tokenCmd(), c.requestCmd(), c.serveCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func defaultConfigPath() string {
	return filepath.Join(filepath.Dir(credentials.DefaultTokenPath()), "config.yaml")
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
