package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// No config is needed to print the version.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gala version %s\n", version.Full())
	},
}
