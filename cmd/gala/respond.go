package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/orchestrator"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/pkg/models"
)

var respondResume bool

var respondCmd = &cobra.Command{
	Use:   "respond <notification-id> <answer...>",
	Short: "Answer a question the agent asked",
	Long: `Resolve an input_needed notification with the organizer's answer and
unblock its task. With --resume the event's task loop is run again right
away; otherwise the next "gala run" picks the task up.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRespond,
}

func init() {
	respondCmd.Flags().BoolVar(&respondResume, "resume", false, "Run the event's task loop after answering")
}

func runRespond(cmd *cobra.Command, args []string) error {
	id := args[0]
	answer := strings.TrimSpace(strings.Join(args[1:], " "))
	if answer == "" {
		return fmt.Errorf("answer must not be empty")
	}

	var (
		emitter *orchestrator.EventEmitter
		obs     orchestrator.Observer
	)
	if respondResume {
		emitter = orchestrator.NewEventEmitter(256)
		obs = emitter
		go func() {
			for ev := range emitter.Events() {
				printEvent(ev)
			}
		}()
	}
	a, err := newApp(cmd.Context(), cfg, obs)
	if err != nil {
		return err
	}
	defer func() {
		a.close(30 * time.Second)
		if emitter != nil {
			emitter.Close()
		}
	}()

	n, err := a.db.GetNotification(id)
	if err != nil {
		return fmt.Errorf("notification %s: %w", id, err)
	}
	res, err := a.manager.HandleUserResponse(cmd.Context(), id, answer)
	if err != nil {
		return err
	}
	if !res.Accepted {
		printStatus("⚠", "Notification was already answered; nothing changed", color.FgYellow)
		return nil
	}
	if res.TaskID != "" {
		printStatus("✓", "Answer recorded; task "+res.TaskID+" is back in progress", color.FgGreen)
	} else {
		printStatus("✓", "Notification resolved", color.FgGreen)
	}

	if !respondResume {
		return nil
	}
	if err := a.manager.Run(cmd.Context(), n.EventID); err != nil {
		return err
	}
	summarize(a, n.EventID)
	return nil
}

// openQuestions returns the event's unanswered input_needed notifications.
func openQuestions(db state.NotificationStore, eventID string) []models.Notification {
	notes, err := db.ListNotificationsByEvent(eventID, true)
	if err != nil {
		return nil
	}
	var out []models.Notification
	for _, n := range notes {
		if n.Type == models.NotificationInputNeeded {
			out = append(out, n)
		}
	}
	return out
}
