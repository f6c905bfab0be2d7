package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/config"
	"github.com/ShayCichocki/gala/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View or modify gala configuration.

Configuration is stored at ~/.config/gala/config.yaml.
Project-specific overrides can be placed in .gala.yaml, and any key can be
overridden with GALA_<KEY> (dots become underscores).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Print the effective configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := config.Flatten(cfg)
		if len(args) == 1 {
			v, ok := values[args[0]]
			if !ok {
				return fmt.Errorf("unknown configuration key: %s", args[0])
			}
			fmt.Println(displayValue(args[0], v))
			return nil
		}
		for _, line := range configLines(values) {
			fmt.Println(line)
		}
		for _, id := range cfg.ConnectorIDs() {
			c := cfg.Connectors[id]
			fmt.Printf("connectors.%s: type=%s enabled=%t\n", id, c.Type, c.Enabled)
		}
		fmt.Printf("\nuser config: %s\n", config.GetUserConfigPath())
		if p := config.GetProjectConfigPath(); p != "" {
			fmt.Printf("project config: %s\n", p)
		}
		if logs, err := logging.Get().LogFiles(); err == nil && len(logs) > 0 {
			fmt.Println("\nlog files:")
			for _, f := range logs {
				fmt.Println("  " + f)
			}
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the user config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetValue(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", args[0], displayValue(args[0], args[1]))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// configLines renders key: value lines sorted by key, secrets masked.
func configLines(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, displayValue(k, values[k])))
	}
	return lines
}

func displayValue(key string, v any) string {
	s := fmt.Sprint(v)
	if config.IsSecretKey(key) {
		return config.MaskAPIKey(s)
	}
	if s == "" {
		return "(not set)"
	}
	return s
}
