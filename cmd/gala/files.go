package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/files"
)

var filesShow string

var filesCmd = &cobra.Command{
	Use:   "files <event-id>",
	Short: "List documents the agent wrote for an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := files.NewDiskWriter(cfg.Files.Dir)
		if filesShow != "" {
			content, err := w.Read(args[0], filesShow)
			if err != nil {
				return err
			}
			fmt.Print(content)
			return nil
		}

		list, err := w.List(args[0])
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No files for this event.")
			return nil
		}
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Name", "Size", "Modified"})
		for _, f := range list {
			tw.AppendRow(table.Row{f.Name, f.Size, f.ModTime.Local().Format("2006-01-02 15:04")})
		}
		tw.Render()
		return nil
	},
}

func init() {
	filesCmd.Flags().StringVar(&filesShow, "show", "", "Print the named file")
}
