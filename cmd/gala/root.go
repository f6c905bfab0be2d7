package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/config"
	"github.com/ShayCichocki/gala/internal/logging"
)

var (
	configPath string
	verbose    bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gala",
	Short: "Event-planning agent orchestrator",
	Long: `Gala plans an event into tasks and works through the ones assigned to
the AI agent, one at a time, asking the organizer whenever it needs a
decision.

Typical flow:
  gala plan --form spring-social.yaml
  gala run <event-id>
  gala respond <notification-id> "Jazz trio, please" --resume`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/gala/config.yaml and .gala.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(respondCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectorsCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return logging.Init(loggingConfig(cfg, verbose))
}

func loggingConfig(c *config.Config, debug bool) logging.Config {
	lc := logging.Config{
		Level:         c.Logging.Level,
		Format:        c.Logging.Format,
		Path:          c.Logging.Path,
		RetentionDays: c.Logging.RetentionDays,
	}
	if debug {
		lc.Level = "debug"
	}
	return lc
}
