package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ShayCichocki/gala/pkg/models"
)

// printStatus prints a colored symbol followed by a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

func statusColor(s models.TaskStatus) color.Attribute {
	switch s {
	case models.TaskStatusDone:
		return color.FgGreen
	case models.TaskStatusInProgress:
		return color.FgCyan
	case models.TaskStatusBlocked:
		return color.FgYellow
	default:
		return color.FgWhite
	}
}

// renderTasks writes tasks as a table. Dependencies are shown as row
// numbers so the table reads on its own.
func renderTasks(w io.Writer, tasks []models.Task) {
	row := make(map[string]int, len(tasks))
	for i, t := range tasks {
		row[t.ID] = i + 1
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Title", "Status", "Priority", "Due", "Category", "Assignee", "Deps", "Progress"})
	for i, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Format(models.DateLayout)
		}
		deps := make([]string, 0, len(t.Dependencies))
		for _, id := range t.Dependencies {
			if n, ok := row[id]; ok {
				deps = append(deps, fmt.Sprint(n))
			} else {
				deps = append(deps, "?")
			}
		}
		status := color.New(statusColor(t.Status)).Sprint(string(t.Status))
		tw.AppendRow(table.Row{
			i + 1, t.Title, status, t.Priority.String(), due, string(t.Category), t.Assignee,
			strings.Join(deps, ","), fmt.Sprintf("%d%%", t.Progress),
		})
	}
	tw.Render()
}

func renderNotifications(w io.Writer, notes []models.Notification) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Type", "Task", "Message", "Suggestions"})
	for _, n := range notes {
		tw.AppendRow(table.Row{n.ID, string(n.Type), n.TaskID, truncate(n.Message, 60), strings.Join(n.Suggestions, " | ")})
	}
	tw.Render()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
