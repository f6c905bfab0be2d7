package api

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

// Persona describes the specialist the model plays for a task category.
type Persona struct {
	Name  string
	Focus string
}

var personas = map[models.AgentCategory]Persona{
	models.CategoryGuests: {
		Name:  "Guest Relations Coordinator",
		Focus: "invitations, RSVPs, guest lists, seating and all communication with attendees",
	},
	models.CategoryVenueCatering: {
		Name:  "Venue and Catering Specialist",
		Focus: "venue selection and booking, menus, dietary requirements and food and beverage vendors",
	},
	models.CategoryEntertainmentLogistics: {
		Name:  "Entertainment and Logistics Manager",
		Focus: "music, performers, equipment, transport, timelines and day-of coordination",
	},
	models.CategoryGeneral: {
		Name:  "Event Planning Assistant",
		Focus: "any planning work that keeps the event on track",
	},
}

// PersonaFor returns the persona for a category, falling back to general.
func PersonaFor(c models.AgentCategory) Persona {
	if p, ok := personas[c]; ok {
		return p
	}
	return personas[models.CategoryGeneral]
}

// BuildTaskSystemPrompt renders the system prompt for working on one task.
// The output depends only on its arguments.
func BuildTaskSystemPrompt(event models.Event, task models.Task, allTasks []models.Task) string {
	persona := PersonaFor(task.Category)
	var b strings.Builder

	fmt.Fprintf(&b, "You are the %s on an event planning team. You focus on %s.\n", persona.Name, persona.Focus)
	b.WriteString("You work autonomously through your assigned task using the tools available to you.\n\n")

	b.WriteString("## Event\n")
	writeEvent(&b, event)

	b.WriteString("\n## Current Task\n")
	fmt.Fprintf(&b, "Task ID: %s\n", task.ID)
	fmt.Fprintf(&b, "Title: %s\n", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", task.Description)
	}
	fmt.Fprintf(&b, "Priority: %s\n", task.Priority)
	if task.DueDate != nil {
		fmt.Fprintf(&b, "Due date: %s\n", task.DueDate.Format(models.DateLayout))
	} else {
		b.WriteString("Due date: none\n")
	}
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	if task.Progress > 0 || task.ProgressText != "" {
		fmt.Fprintf(&b, "Progress: %d%%", task.Progress)
		if task.ProgressText != "" {
			fmt.Fprintf(&b, " - %s", task.ProgressText)
		}
		b.WriteString("\n")
	}
	if len(task.Subtasks) > 0 {
		b.WriteString("Subtasks:\n")
		for _, st := range task.Subtasks {
			mark := " "
			if st.Done {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, st.Title)
		}
	}
	if task.Document != "" {
		b.WriteString("\n### Task Document\n")
		b.WriteString(task.Document)
		if !strings.HasSuffix(task.Document, "\n") {
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## All Tasks\n")
	for _, t := range allTasks {
		marker := ""
		if t.ID == task.ID {
			marker = " <- current"
		}
		due := ""
		if t.DueDate != nil {
			due = ", due " + t.DueDate.Format(models.DateLayout)
		}
		fmt.Fprintf(&b, "- [%s] %s (id: %s, priority: %s%s, assignee: %s)%s\n",
			t.Status, t.Title, t.ID, t.Priority, due, t.Assignee, marker)
	}

	b.WriteString("\n## How to Work\n")
	fmt.Fprintf(&b, "- Call %s whenever you make meaningful progress.\n", tools.UpdateTaskProgress)
	fmt.Fprintf(&b, "- Call %s to save documents such as guest lists, schedules or vendor comparisons.\n", tools.WriteEventFile)
	fmt.Fprintf(&b, "- If you cannot continue without information only the organizer has, call %s with one clear question.\n", tools.RequestUserInput)
	fmt.Fprintf(&b, "- When the task is fully done, call %s with a short summary. Do not stop without calling it.\n", tools.MarkTaskComplete)
	b.WriteString("- Work only on the current task. Other tasks are listed for context.\n")

	return b.String()
}

// BuildPlanningSystemPrompt renders the one-shot planning prompt for a new
// event. The output depends only on its argument.
func BuildPlanningSystemPrompt(form models.EventFormData) string {
	var b strings.Builder

	b.WriteString("You are an expert event planner. Break the event below into a concrete, ordered list of planning tasks.\n\n")

	b.WriteString("## Event\n")
	fmt.Fprintf(&b, "Name: %s\n", form.Name)
	if form.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", form.Type)
	}
	fmt.Fprintf(&b, "Date: %s\n", form.Date)
	if form.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", form.Location)
	}
	if form.GuestCount > 0 {
		fmt.Fprintf(&b, "Guests: %d\n", form.GuestCount)
	}
	if form.Budget > 0 {
		fmt.Fprintf(&b, "Budget: %.2f\n", form.Budget)
	}
	if form.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", form.Description)
	}
	if len(form.Requirements) > 0 {
		b.WriteString("Requirements:\n")
		for _, r := range form.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	b.WriteString("\n## Output Format\n")
	b.WriteString("Respond with ONLY a JSON array. Each element is an object with these fields:\n")
	b.WriteString("- \"title\": short task title (required)\n")
	b.WriteString("- \"description\": what needs to be done\n")
	b.WriteString("- \"priority\": 0 (low), 1 (medium) or 2 (high)\n")
	fmt.Fprintf(&b, "- \"dueDate\": optional date in YYYY-MM-DD format, strictly before %s\n", form.Date)
	b.WriteString("- \"agentCategory\": one of ")
	for i, c := range models.Categories() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", string(c))
	}
	b.WriteString("\n")
	b.WriteString("- \"dependencies\": array of indices of EARLIER tasks in this array that must finish first\n")
	b.WriteString("- \"subtasks\": optional array of short checklist strings\n")

	return b.String()
}

func writeEvent(b *strings.Builder, event models.Event) {
	fmt.Fprintf(b, "Name: %s\n", event.Name)
	if event.Type != "" {
		fmt.Fprintf(b, "Type: %s\n", event.Type)
	}
	if !event.Date.IsZero() {
		fmt.Fprintf(b, "Date: %s\n", event.Date.Format(models.DateLayout))
	}
	if event.Location != "" {
		fmt.Fprintf(b, "Location: %s\n", event.Location)
	}
	if event.GuestCount > 0 {
		fmt.Fprintf(b, "Guests: %d\n", event.GuestCount)
	}
	if event.Budget > 0 {
		fmt.Fprintf(b, "Budget: %.2f\n", event.Budget)
	}
	if event.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", event.Description)
	}
}
