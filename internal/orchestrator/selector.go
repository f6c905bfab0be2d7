package orchestrator

import (
	"sort"
	"time"

	"github.com/ShayCichocki/gala/pkg/models"
)

const (
	dueSoonWindow   = 72 * time.Hour
	dueUrgentWindow = 24 * time.Hour
)

// Weights are the selector scoring constants. Only their relative order
// matters; they are tunable through config.
type Weights struct {
	Priority   int
	DueSoon    int
	DueUrgent  int
	InProgress int
}

// DefaultWeights returns the stock scoring constants.
func DefaultWeights() Weights {
	return Weights{Priority: 100, DueSoon: 30, DueUrgent: 50, InProgress: 20}
}

// Eligible reports whether t may be selected: assigned to the agent, not
// done, not blocked, and every dependency done. A dependency missing from
// byID makes the task ineligible.
func Eligible(t *models.Task, byID map[string]*models.Task) bool {
	if !t.AssignedToAgent() {
		return false
	}
	if t.Status == models.TaskStatusDone || t.Status == models.TaskStatusBlocked {
		return false
	}
	return t.DependenciesDone(byID)
}

// Score ranks an eligible task. Due-date bonuses are cumulative, so a task
// due within a day gets both. Overdue tasks count as due soon.
func Score(t models.Task, now time.Time, w Weights) int {
	score := int(t.Priority) * w.Priority
	if t.DueDate != nil {
		until := t.DueDate.Sub(now)
		if until < dueSoonWindow {
			score += w.DueSoon
		}
		if until < dueUrgentWindow {
			score += w.DueUrgent
		}
	}
	if t.Status == models.TaskStatusInProgress {
		score += w.InProgress
	}
	return score
}

// SelectNext returns the highest scoring eligible task, ties broken by list
// order, or nil when nothing is eligible. The result is a copy.
func SelectNext(tasks []models.Task, now time.Time, w Weights) *models.Task {
	byID := models.IndexTasks(tasks)

	type candidate struct {
		idx   int
		score int
	}
	var candidates []candidate
	for i := range tasks {
		if Eligible(&tasks[i], byID) {
			candidates = append(candidates, candidate{idx: i, score: Score(tasks[i], now, w)})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	picked := tasks[candidates[0].idx]
	return &picked
}

// taskCounts summarizes a task list for status snapshots.
func taskCounts(tasks []models.Task) (done, total, blocked int) {
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusDone:
			done++
		case models.TaskStatusBlocked:
			blocked++
		}
	}
	return done, len(tasks), blocked
}

// allDone reports whether every task is done. An empty list is done.
func allDone(tasks []models.Task) bool {
	for _, t := range tasks {
		if t.Status != models.TaskStatusDone {
			return false
		}
	}
	return true
}
