package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop <event-id>",
	Short: "Ask a running gala process to stop an event",
	Long: `Drop a stop signal for the event. The process running it finishes the
current model call and stops at the next step; a later answer to one of
its questions will not restart the loop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.GetEvent(args[0]); err != nil {
			return fmt.Errorf("event %s: %w", args[0], err)
		}

		if err := signals.SendStop(cfg.Signals.Dir, args[0]); err != nil {
			return err
		}
		printStatus("✓", "Stop requested for "+args[0], color.FgGreen)
		return nil
	},
}
