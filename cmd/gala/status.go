package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [event-id]",
	Short: "Show events, tasks and open questions",
	Long: `Without arguments, list every event with its progress and latest run.
With an event id, show that event's tasks and unanswered questions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showEvent(db, args[0])
	}
	return listEvents(db)
}

func listEvents(db *state.DB) error {
	events, err := db.ListEvents()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events yet. Run 'gala plan --form <file>' to create one.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Date", "Done", "Blocked", "Open questions", "Last run"})
	for _, e := range events {
		tasks, err := db.ListTasksByEvent(e.ID)
		if err != nil {
			return err
		}
		done, blocked := 0, 0
		for _, t := range tasks {
			switch t.Status {
			case models.TaskStatusDone:
				done++
			case models.TaskStatusBlocked:
				blocked++
			}
		}
		last := "-"
		if r, err := db.LatestRun(e.ID); err == nil {
			last = string(r.Status)
		} else if !errors.Is(err, state.ErrNotFound) {
			return err
		}
		tw.AppendRow(table.Row{
			e.ID, e.Name, e.Date.Format(models.DateLayout),
			fmt.Sprintf("%d/%d", done, len(tasks)), blocked, len(openQuestions(db, e.ID)), last,
		})
	}
	tw.Render()
	return nil
}

func showEvent(db *state.DB, id string) error {
	e, err := db.GetEvent(id)
	if err != nil {
		return fmt.Errorf("event %s: %w", id, err)
	}
	bold := color.New(color.Bold)
	bold.Printf("%s\n", e.Name)
	fmt.Printf("  Date: %s\n", e.Date.Format(models.DateLayout))
	if e.Location != "" {
		fmt.Printf("  Location: %s\n", e.Location)
	}
	if e.GuestCount > 0 {
		fmt.Printf("  Guests: %d\n", e.GuestCount)
	}
	if r, err := db.LatestRun(id); err == nil {
		fmt.Printf("  Last run: %s (%s)\n", r.Status, r.StartedAt.Local().Format("2006-01-02 15:04"))
		if r.Error != "" {
			printStatus("  ✗", r.Error, color.FgRed)
		}
	}
	fmt.Println()

	tasks, err := db.ListTasksByEvent(id)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
	} else {
		renderTasks(os.Stdout, tasks)
	}

	if notes := openQuestions(db, id); len(notes) > 0 {
		fmt.Println()
		bold.Println("Waiting on you")
		renderNotifications(os.Stdout, notes)
		for _, n := range notes {
			if n.IsRead {
				continue
			}
			if err := db.MarkNotificationRead(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
