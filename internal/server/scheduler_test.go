package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/gala/internal/orchestrator"
)

type fakeResumer struct {
	mu         sync.Mutex
	candidates []string
	listErr    error
	startErrs  map[string]error
	started    []string
}

func (f *fakeResumer) ResumeCandidates() ([]string, error) {
	return f.candidates, f.listErr
}

func (f *fakeResumer) StartAsync(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErrs[id]; err != nil {
		return err
	}
	f.started = append(f.started, id)
	return nil
}

func TestResumeScheduler_RunOnce(t *testing.T) {
	r := &fakeResumer{
		candidates: []string{"a", "b", "c"},
		startErrs: map[string]error{
			"b": orchestrator.ErrAlreadyRunning,
			"c": errors.New("db locked"),
		},
	}
	s, err := NewResumeScheduler("@every 1h", r)
	require.NoError(t, err)

	assert.Equal(t, 1, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"a"}, r.started)
}

func TestResumeScheduler_ListError(t *testing.T) {
	s, err := NewResumeScheduler("*/5 * * * *", &fakeResumer{listErr: errors.New("closed")})
	require.NoError(t, err)
	assert.Zero(t, s.RunOnce(context.Background()))
}

func TestResumeScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewResumeScheduler("every now and then", &fakeResumer{})
	assert.Error(t, err)

	_, err = NewResumeScheduler("0 0 * * * *", &fakeResumer{})
	assert.Error(t, err, "seconds field not accepted")
}

func TestResumeScheduler_StartStop(t *testing.T) {
	s, err := NewResumeScheduler("@hourly", &fakeResumer{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Stop()
}
