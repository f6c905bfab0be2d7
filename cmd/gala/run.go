package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/gala/internal/orchestrator"
	"github.com/ShayCichocki/gala/internal/signals"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/pkg/models"
)

var runAll bool

var runCmd = &cobra.Command{
	Use:   "run [event-id...]",
	Short: "Work through an event's AI tasks",
	Long: `Run the task loop for one or more events until every task is done,
the remaining work waits on the organizer, or the run is stopped.

Events run concurrently, each with its own strictly sequential loop, and a
failure in one event does not affect the others.
Ctrl-C stops after the current step; a second Ctrl-C exits at once without
waiting for an in-flight model call (the run is recovered as interrupted on
the next start). "gala stop <event-id>" from another terminal stops a single
event.`,
	RunE: runEvents,
}

func init() {
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every event that has AI work left")
}

func runEvents(cmd *cobra.Command, args []string) error {
	if runAll == (len(args) > 0) {
		return errors.New("pass event ids or --all")
	}

	emitter := orchestrator.NewEventEmitter(256)
	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		for ev := range emitter.Events() {
			printEvent(ev)
		}
	}()

	a, err := newApp(cmd.Context(), cfg, emitter)
	if err != nil {
		emitter.Close()
		return err
	}
	defer func() {
		a.close(30 * time.Second)
		emitter.Close()
		printer.Wait()
	}()

	watcher, err := signals.NewWatcher(cfg.Signals.Dir)
	if err != nil {
		return err
	}
	defer watcher.Close()
	a.manager.SetStopWatcher(watcher)

	ids := args
	if runAll {
		ids, err = a.manager.ResumeCandidates()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No events have AI work left.")
			return nil
		}
	}
	recovery := state.NewRecoveryManager(a.db, recoveryStaleAfter)
	for _, id := range ids {
		if _, err := a.db.GetEvent(id); err != nil {
			return fmt.Errorf("event %s: %w", id, err)
		}
		live, err := recovery.EventHasLiveRun(id, time.Now())
		if err != nil {
			return err
		}
		if live {
			return fmt.Errorf("event %s is already being run by another gala process (gala stop %s)", id, id)
		}
		// A stop request left over from an earlier run would end this one
		// immediately.
		_ = signals.Clear(cfg.Signals.Dir, id)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go stopOnInterrupt(ctx, sigCh, func() {
		printStatus("⏸", "Stopping after the current step (Ctrl-C again to exit now)", color.FgYellow)
		for _, id := range ids {
			a.manager.Stop(id)
		}
	}, func() {
		printStatus("✗", "Aborted", color.FgRed)
		os.Exit(130)
	})

	runErr := runConcurrently(ctx, ids, a.manager.Run)

	fmt.Println()
	for _, id := range ids {
		summarize(a, id)
	}
	if in, out, cost, ok := a.tokens(); ok {
		fmt.Printf("Tokens: %d in / %d out (~$%.4f)\n", in, out, cost)
	}
	return runErr
}

// runConcurrently runs every event to its own end. One event's failure
// never cancels another; the first error is returned.
func runConcurrently(ctx context.Context, ids []string, run func(context.Context, string) error) error {
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := run(ctx, id); err != nil {
				return fmt.Errorf("event %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// stopOnInterrupt calls stop on the first signal and abort on the second.
func stopOnInterrupt(ctx context.Context, sigCh <-chan os.Signal, stop, abort func()) {
	select {
	case <-sigCh:
		stop()
	case <-ctx.Done():
		return
	}
	select {
	case <-sigCh:
		abort()
	case <-ctx.Done():
	}
}

func printEvent(ev orchestrator.OrchestratorEvent) {
	switch ev.Type {
	case orchestrator.EventTaskUpdated:
		t := ev.Task
		line := fmt.Sprintf("%s [%s] %d%%", t.Title, t.Status, t.Progress)
		if t.ProgressText != "" {
			line += " " + truncate(t.ProgressText, 80)
		}
		printStatus("•", line, statusColor(t.Status))
	case orchestrator.EventNotificationCreated:
		n := ev.Notification
		switch n.Type {
		case models.NotificationInputNeeded:
			printStatus("?", fmt.Sprintf("%s (answer with: gala respond %s \"...\")", n.Message, n.ID), color.FgYellow)
			for _, s := range n.Suggestions {
				fmt.Printf("    - %s\n", s)
			}
		case models.NotificationError:
			printStatus("✗", n.Message, color.FgRed)
		case models.NotificationCompletion:
			printStatus("✓", n.Title, color.FgGreen)
		default:
			printStatus("i", n.Message, color.FgBlue)
		}
	case orchestrator.EventChatMessage:
		m := ev.Message
		if verbose && m.Role == models.RoleAssistant && m.Content != "" {
			fmt.Println(color.New(color.Faint).Sprint(truncate(m.Content, 200)))
		}
		if m.Role == models.RoleSystem {
			printStatus("!", m.Content, color.FgRed)
		}
	case orchestrator.EventStatusChanged:
		s := ev.Status
		if verbose {
			fmt.Printf("[%s] %s %d/%d done\n", s.EventID, s.State, s.DoneCount, s.TotalCount)
		}
	}
}

func summarize(a *app, eventID string) {
	snap, err := a.manager.Status(eventID)
	if err != nil {
		return
	}
	label := fmt.Sprintf("%s: %s (%d/%d done)", eventID, snap.State, snap.DoneCount, snap.TotalCount)
	switch snap.State {
	case orchestrator.StateCompleted:
		printStatus("✓", label, color.FgGreen)
	case orchestrator.StateWaitingForUser:
		printStatus("…", label, color.FgYellow)
		if notes := openQuestions(a.db, eventID); len(notes) > 0 {
			renderNotifications(os.Stdout, notes)
		}
	case orchestrator.StateFailed:
		printStatus("✗", label, color.FgRed)
	default:
		printStatus("•", label, color.FgWhite)
	}
}
