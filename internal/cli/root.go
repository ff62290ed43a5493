// Package cli implements the 10xcards commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/config"
	"github.com/izukowska/10xcards/pkg/logging"
)

var appVersion = "dev"

type rootOptions struct {
	cfgFile  string
	logLevel string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "10xcards",
		Short:         "10xCards AI gateway: flashcard generation and chat over OpenRouter",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       appVersion,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "YAML config file (environment variables override it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level: debug, info, warn, error")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newHealthCmd(opts))
	root.AddCommand(newChatCmd(opts))
	root.AddCommand(newGenerateCmd(opts))

	return root
}

// SetVersion sets the version shown by --version.
func SetVersion(version string) {
	appVersion = version
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// load reads config and builds the matching logger, which also becomes the
// process default.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger, err := logging.NewLogger(logging.Options{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	logging.SetDefault(logger)

	return cfg, logger, nil
}
