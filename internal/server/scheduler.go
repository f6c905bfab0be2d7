package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/orchestrator"
)

// Resumer finds and starts events with pending AI work. *orchestrator.Manager
// satisfies it.
type Resumer interface {
	ResumeCandidates() ([]string, error)
	StartAsync(ctx context.Context, eventID string) error
}

var _ Resumer = (*orchestrator.Manager)(nil)

// ResumeScheduler periodically starts idle events that have an eligible
// task, e.g. after a dependency was completed by a human.
type ResumeScheduler struct {
	cron    *cron.Cron
	resumer Resumer
	log     *logging.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewResumeScheduler parses a standard 5-field cron schedule.
func NewResumeScheduler(schedule string, r Resumer) (*ResumeScheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	s := &ResumeScheduler{cron: c, resumer: r, log: logging.Component("scheduler"), ctx: context.Background()}
	if _, err := c.AddFunc(schedule, func() { s.RunOnce(s.context()) }); err != nil {
		return nil, fmt.Errorf("invalid resume schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule until Stop. Runs it starts use ctx.
func (s *ResumeScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info("resume scheduler started")
}

// Stop halts the schedule and waits for a tick in progress.
func (s *ResumeScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce starts every resume candidate and returns how many started.
func (s *ResumeScheduler) RunOnce(ctx context.Context) int {
	ids, err := s.resumer.ResumeCandidates()
	if err != nil {
		s.log.ErrorCtx("could not list resume candidates", map[string]any{"error": err})
		return 0
	}
	started := 0
	for _, id := range ids {
		err := s.resumer.StartAsync(ctx, id)
		switch {
		case err == nil:
			started++
			s.log.InfoCtx("resumed event", map[string]any{"event_id": id})
		case errors.Is(err, orchestrator.ErrAlreadyRunning):
		default:
			s.log.WarnCtx("could not resume event", map[string]any{"event_id": id, "error": err})
		}
	}
	return started
}

func (s *ResumeScheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
