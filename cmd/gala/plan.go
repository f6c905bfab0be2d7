package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apperrors "github.com/ShayCichocki/gala/internal/errors"
	"github.com/ShayCichocki/gala/internal/planner"
	"github.com/ShayCichocki/gala/pkg/models"
)

var planFormPath string

var planCmd = &cobra.Command{
	Use:   "plan --form event.yaml",
	Short: "Create an event and plan its tasks",
	Long: `Create an event from a YAML form and ask the model for a task plan.

The form has the fields name, type, date (YYYY-MM-DD), location,
guest_count, budget, description and requirements. The event and its
tasks are saved and the new event id is printed.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planFormPath, "form", "f", "", "Event form YAML file")
	_ = planCmd.MarkFlagRequired("form")
}

// loadForm reads and checks an event form.
func loadForm(path string) (models.EventFormData, error) {
	var form models.EventFormData
	data, err := os.ReadFile(path)
	if err != nil {
		return form, fmt.Errorf("read form: %w", err)
	}
	if err := yaml.Unmarshal(data, &form); err != nil {
		return form, fmt.Errorf("parse form %s: %w", path, err)
	}
	if strings.TrimSpace(form.Name) == "" {
		return form, errors.New("form: name is required")
	}
	if _, err := form.ParsedDate(); err != nil {
		return form, fmt.Errorf("form: date must be %s: %w", models.DateLayout, err)
	}
	return form, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	form, err := loadForm(planFormPath)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	if gateway == nil {
		return apperrors.ErrGatewayNotConfigured
	}

	fmt.Printf("Planning %q...\n", form.Name)
	tasks, err := planner.New(gateway).PlanTasks(cmd.Context(), form)
	if err != nil {
		return err
	}

	event, err := form.ToEvent(uuid.NewString(), time.Now().UTC())
	if err != nil {
		return err
	}
	if err := db.CreateEvent(&event); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	tasks = planner.ForEvent(tasks, event.ID)
	if err := db.CreateTasks(tasks); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}

	if len(tasks) == 0 {
		printStatus("⚠", "The model returned no usable tasks; the event was created without a plan", color.FgYellow)
	} else {
		renderTasks(os.Stdout, tasks)
	}
	printStatus("✓", fmt.Sprintf("Created event %s with %d tasks", event.ID, len(tasks)), color.FgGreen)
	fmt.Printf("\nStart working on it with: gala run %s\n", event.ID)
	return nil
}
