package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/connector"
)

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "Inspect configured tool connectors",
}

var connectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connectors and the tools they expose",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := connector.LoadRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer reg.Close()

		list := reg.List()
		if len(list) == 0 {
			fmt.Println("No connectors configured.")
			return nil
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "Enabled", "Tools"})
		for _, c := range list {
			names := make([]string, 0, len(c.Tools()))
			for _, t := range c.Tools() {
				names = append(names, t.Name)
			}
			tw.AppendRow(table.Row{c.ID(), c.Enabled(), strings.Join(names, ", ")})
		}
		tw.Render()
		return nil
	},
}

var connectorsTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that every enabled connector is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := connector.LoadRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer reg.Close()

		enabled := reg.ListEnabled()
		if len(enabled) == 0 {
			fmt.Println("No enabled connectors.")
			return nil
		}
		failed := 0
		for _, c := range enabled {
			if err := c.TestConnection(cmd.Context()); err != nil {
				failed++
				printStatus("✗", fmt.Sprintf("%s: %v", c.ID(), err), color.FgRed)
				continue
			}
			printStatus("✓", c.ID(), color.FgGreen)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d connectors failed", failed, len(enabled))
		}
		return nil
	},
}

func init() {
	connectorsCmd.AddCommand(connectorsListCmd)
	connectorsCmd.AddCommand(connectorsTestCmd)
}
