// Package planner turns a new event's form into an initial task list with a
// single model call.
package planner

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/conversation"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/pkg/models"
)

const planRequest = "Plan the tasks for this event. Respond with the JSON array only."

// Planner runs the one-shot planning call.
type Planner struct {
	gateway api.Gateway
	log     *logging.Logger
}

// New creates a Planner.
func New(gateway api.Gateway) *Planner {
	return &Planner{gateway: gateway, log: logging.Component("planner")}
}

// PlanTasks asks the model for a plan. Model failures are returned; a reply
// that cannot be parsed yields an empty plan. Tasks carry no EventID.
func (p *Planner) PlanTasks(ctx context.Context, form models.EventFormData) ([]models.Task, error) {
	date, err := form.ParsedDate()
	if err != nil {
		return nil, fmt.Errorf("event date %q: %w", form.Date, err)
	}

	history := conversation.History{conversation.TextTurn{Role: conversation.RoleUser, Text: planRequest}}
	resp, err := p.gateway.Call(ctx, api.BuildPlanningSystemPrompt(form), history, nil)
	if err != nil {
		return nil, fmt.Errorf("planning call: %w", err)
	}

	tasks, err := ParseTasks(resp.Text, date)
	if err != nil {
		p.log.WarnCtx("unusable planning response", map[string]any{"event": form.Name, "error": err, "chars": len(resp.Text)})
		return []models.Task{}, nil
	}
	p.log.InfoCtx("planned tasks", map[string]any{"event": form.Name, "count": len(tasks)})
	return tasks, nil
}

// ForEvent stamps tasks with eventID.
func ForEvent(tasks []models.Task, eventID string) []models.Task {
	for i := range tasks {
		tasks[i].EventID = eventID
	}
	return tasks
}
