package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

type fakeRunner struct {
	mu       sync.Mutex
	mappings []entities.Mapping
	pullErr  error
	calls    []string
	sweeps   []time.Duration
}

func (f *fakeRunner) ListScheduledMappings(context.Context) ([]entities.Mapping, error) {
	return f.mappings, nil
}

func (f *fakeRunner) Pull(_ context.Context, mappingID uint, _ bool) (*syncengine.PullResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "pull")
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return &syncengine.PullResult{Run: &entities.SyncRun{MappingID: mappingID}}, nil
}

func (f *fakeRunner) Push(_ context.Context, mappingID uint) (*entities.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "push")
	return &entities.SyncRun{MappingID: mappingID}, nil
}

func (f *fakeRunner) FailStaleRuns(_ context.Context, timeout time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps = append(f.sweeps, timeout)
	return 0, nil
}

func TestValidateCronSchedule(t *testing.T) {
	assert.NoError(t, ValidateCronSchedule("*/15 * * * *"))
	assert.NoError(t, ValidateCronSchedule("0 */6 * * *"))
	assert.Error(t, ValidateCronSchedule("every hour"))
	assert.Error(t, ValidateCronSchedule("0 0 * * * *"), "seconds field is not accepted")
}

func TestGetNextRunTime(t *testing.T) {
	from := time.Date(2024, 5, 1, 10, 7, 0, 0, time.UTC)

	next, err := GetNextRunTime("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC), *next)

	_, err = GetNextRunTime("bogus", from)
	assert.Error(t, err)
}

func TestSyncScheduler_StartRegistersValidSchedules(t *testing.T) {
	runner := &fakeRunner{mappings: []entities.Mapping{
		{ID: 1, Name: "apps", Schedule: "*/15 * * * *", SyncDirection: entities.SyncDirectionPull},
		{ID: 2, Name: "broken", Schedule: "whenever", SyncDirection: entities.SyncDirectionPull},
	}}
	s := NewSyncScheduler(runner, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	defer s.Stop()
	assert.True(t, s.IsRunning())

	next := s.NextRuns()
	assert.Len(t, next, 1)
	assert.Contains(t, next, uint(1))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Empty(t, s.NextRuns())
}

func TestSyncScheduler_StopsOnContextCancel(t *testing.T) {
	s := NewSyncScheduler(&fakeRunner{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestSyncScheduler_RunMapping(t *testing.T) {
	for _, tt := range []struct {
		name      string
		direction entities.SyncDirection
		pullErr   error
		want      []string
	}{
		{"pull only", entities.SyncDirectionPull, nil, []string{"pull"}},
		{"push only", entities.SyncDirectionPush, nil, []string{"push"}},
		{"bidirectional", entities.SyncDirectionBidirectional, nil, []string{"pull", "push"}},
		{"already running", entities.SyncDirectionBidirectional, services.ErrRunActive, []string{"pull"}},
		{"pull failed", entities.SyncDirectionBidirectional, errors.New("boom"), []string{"pull"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{pullErr: tt.pullErr}
			s := NewSyncScheduler(runner, Options{})

			s.RunMapping(context.Background(), &entities.Mapping{ID: 1, SyncDirection: tt.direction})
			assert.Equal(t, tt.want, runner.calls)
		})
	}
}

func TestSyncScheduler_SweepStaleRuns(t *testing.T) {
	runner := &fakeRunner{}

	NewSyncScheduler(runner, Options{}).SweepStaleRuns(context.Background())
	assert.Empty(t, runner.sweeps)

	NewSyncScheduler(runner, Options{StaleRunTimeout: time.Hour}).SweepStaleRuns(context.Background())
	assert.Equal(t, []time.Duration{time.Hour}, runner.sweeps)
}
