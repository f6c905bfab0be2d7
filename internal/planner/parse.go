package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ShayCichocki/gala/pkg/models"
)

// ErrNoTaskArray means the response contained no JSON array at all.
var ErrNoTaskArray = errors.New("no JSON array found in planning response")

// plannedTask is one element of the planning response. Loosely typed fields
// are normalized by ParseTasks.
type plannedTask struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Priority      any             `json:"priority"`
	DueDate       string          `json:"dueDate"`
	AgentCategory string          `json:"agentCategory"`
	Dependencies  json.RawMessage `json:"dependencies"`
	Subtasks      json.RawMessage `json:"subtasks"`
}

// ParseTasks turns a planning response into todo tasks assigned to the
// agent. Invalid fields are repaired or dropped per element:
//   - unknown categories become general
//   - priorities are clamped to 0-2, defaulting to medium
//   - due dates on or after eventDate are dropped
//   - dependencies may only point at earlier kept elements
//
// Elements without a title are skipped. An error is returned only when no
// array can be recovered from raw.
func ParseTasks(raw string, eventDate time.Time) ([]models.Task, error) {
	elems, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var tasks []models.Task
	// ids maps response index to the kept task id, "" when dropped.
	ids := make([]string, len(elems))

	for i, el := range elems {
		var pt plannedTask
		if err := json.Unmarshal(el, &pt); err != nil {
			continue
		}
		title := strings.TrimSpace(pt.Title)
		if title == "" {
			continue
		}

		task := models.Task{
			ID:          uuid.NewString(),
			Title:       title,
			Description: strings.TrimSpace(pt.Description),
			Status:      models.TaskStatusTodo,
			Priority:    parsePriority(pt.Priority),
			DueDate:     parseDueDate(pt.DueDate, eventDate),
			Assignee:    models.AgentAssignee,
			Category:    models.NormalizeCategory(strings.ToLower(strings.TrimSpace(pt.AgentCategory))),
			Subtasks:    parseSubtasks(listOf[json.RawMessage](pt.Subtasks)),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		seen := make(map[string]bool)
		for _, d := range listOf[any](pt.Dependencies) {
			idx, ok := parseIndex(d)
			if !ok || idx < 0 || idx >= i || ids[idx] == "" || seen[ids[idx]] {
				continue
			}
			seen[ids[idx]] = true
			task.Dependencies = append(task.Dependencies, ids[idx])
		}

		ids[i] = task.ID
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// decodeArray locates the outermost JSON array in raw, repairing it if the
// strict decode fails.
func decodeArray(raw string) ([]json.RawMessage, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 {
		return nil, ErrNoTaskArray
	}
	var body string
	if end > start {
		body = raw[start : end+1]
	} else {
		// Truncated output; let the repair close the array.
		body = raw[start:]
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elems); err == nil {
		return elems, nil
	}

	repaired, err := jsonrepair.JSONRepair(body)
	if err != nil {
		return nil, fmt.Errorf("repair planning JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &elems); err != nil {
		return nil, fmt.Errorf("decode planning JSON: %w", err)
	}
	return elems, nil
}

func parsePriority(v any) models.Priority {
	var n float64
	switch p := v.(type) {
	case float64:
		n = p
	case string:
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "low":
			return models.PriorityLow
		case "medium", "normal":
			return models.PriorityMedium
		case "high", "urgent":
			return models.PriorityHigh
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.PriorityMedium
		}
		n = f
	default:
		return models.PriorityMedium
	}
	if math.IsNaN(n) {
		return models.PriorityMedium
	}
	switch r := math.Round(n); {
	case r <= float64(models.PriorityLow):
		return models.PriorityLow
	case r >= float64(models.PriorityHigh):
		return models.PriorityHigh
	default:
		return models.Priority(r)
	}
}

// parseDueDate keeps a date strictly before the event date. A zero
// eventDate accepts any valid date.
func parseDueDate(s string, eventDate time.Time) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) > len(models.DateLayout) {
		// Accept full timestamps by their date part.
		s = s[:len(models.DateLayout)]
	}
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return nil
	}
	if !eventDate.IsZero() {
		ey, em, ed := eventDate.Date()
		if !d.Before(time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)) {
			return nil
		}
	}
	return &d
}

// listOf decodes raw as a list of T, treating a lone value as a one-element
// list. Anything else is an empty list.
func listOf[T any](raw json.RawMessage) []T {
	if len(raw) == 0 {
		return nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one T
	if err := json.Unmarshal(raw, &one); err == nil {
		return []T{one}
	}
	return nil
}

func parseIndex(v any) (int, bool) {
	switch d := v.(type) {
	case float64:
		if d != math.Trunc(d) {
			return 0, false
		}
		return int(d), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(d))
		return n, err == nil
	default:
		return 0, false
	}
}

// parseSubtasks accepts plain strings or {"title": ...} objects.
func parseSubtasks(raw []json.RawMessage) []models.Subtask {
	var out []models.Subtask
	for _, r := range raw {
		var title string
		if err := json.Unmarshal(r, &title); err != nil {
			var obj models.Subtask
			if err := json.Unmarshal(r, &obj); err != nil {
				continue
			}
			title = obj.Title
		}
		if title = strings.TrimSpace(title); title != "" {
			out = append(out, models.Subtask{Title: title})
		}
	}
	return out
}
