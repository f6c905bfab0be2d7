package state

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/pkg/models"
)

// InterruptedRun is a run still marked running whose process went away.
type InterruptedRun struct {
	RunID        string
	EventID      string
	StartedAt    time.Time
	LastActivity time.Time
}

// RecoveryManager detects runs left in the running state by a crashed or
// killed process and parks them as paused so the event can be resumed.
type RecoveryManager struct {
	db         *DB
	staleAfter time.Duration
	log        *logging.Logger
}

// NewRecoveryManager creates a RecoveryManager. A running run with no
// message newer than staleAfter is considered interrupted.
func NewRecoveryManager(db *DB, staleAfter time.Duration) *RecoveryManager {
	return &RecoveryManager{db: db, staleAfter: staleAfter, log: logging.Component("state")}
}

// CheckForInterrupted lists interrupted runs as of now.
func (rm *RecoveryManager) CheckForInterrupted(now time.Time) ([]InterruptedRun, error) {
	runs, err := rm.db.ListRunsByStatus(models.RunStatusRunning)
	if err != nil {
		return nil, err
	}

	var out []InterruptedRun
	for _, r := range runs {
		last, err := rm.lastActivity(r)
		if err != nil {
			return nil, err
		}
		if now.Sub(last) < rm.staleAfter {
			continue
		}
		out = append(out, InterruptedRun{
			RunID:        r.ID,
			EventID:      r.EventID,
			StartedAt:    r.StartedAt,
			LastActivity: last,
		})
	}
	return out, nil
}

// EventHasLiveRun reports whether an event has a running run that is not
// stale, meaning some process is probably driving it.
func (rm *RecoveryManager) EventHasLiveRun(eventID string, now time.Time) (bool, error) {
	runs, err := rm.db.ListRunsByEvent(eventID)
	if err != nil {
		return false, err
	}
	for _, r := range runs {
		if r.Status != models.RunStatusRunning {
			continue
		}
		last, err := rm.lastActivity(r)
		if err != nil {
			return false, err
		}
		if now.Sub(last) < rm.staleAfter {
			return true, nil
		}
	}
	return false, nil
}

// Recover marks every interrupted run paused and returns them.
func (rm *RecoveryManager) Recover(now time.Time) ([]InterruptedRun, error) {
	interrupted, err := rm.CheckForInterrupted(now)
	if err != nil {
		return nil, err
	}

	for _, ir := range interrupted {
		run, err := rm.db.GetRun(ir.RunID)
		if err != nil {
			return nil, err
		}
		run.Status = models.RunStatusPaused
		run.Error = "interrupted"
		if err := rm.db.UpdateRun(run); err != nil {
			return nil, fmt.Errorf("pause interrupted run %s: %w", ir.RunID, err)
		}
		rm.log.InfoCtx("paused interrupted run", map[string]any{
			"run_id":        ir.RunID,
			"event_id":      ir.EventID,
			"last_activity": ir.LastActivity,
		})
	}
	return interrupted, nil
}

func (rm *RecoveryManager) lastActivity(r models.Run) (time.Time, error) {
	last := r.StartedAt
	var latest string
	err := rm.db.QueryRow(
		"SELECT COALESCE((SELECT created_at FROM messages WHERE run_id = ? ORDER BY seq DESC LIMIT 1), '')", r.ID,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("last activity for run %s: %w", r.ID, err)
	}
	if t, err := parseTime(latest); err == nil && t.After(last) {
		last = t
	}
	return last, nil
}
