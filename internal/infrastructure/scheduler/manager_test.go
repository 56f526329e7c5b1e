package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/shared/logger"
)

func jobNames(m *SchedulerManager) []string {
	var names []string
	for _, j := range m.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

func noop(context.Context) (int, error) { return 0, nil }

func TestRegisterReconcileJobs(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNopLogger())
	require.NoError(t, err)

	err = m.RegisterReconcileJobs("0 3 * * *", BatchJobFunc(noop), "30 4 * * *", BatchJobFunc(noop))
	require.NoError(t, err)
	require.NoError(t, m.RegisterMaintenanceJobs(BatchJobFunc(noop)))

	assert.ElementsMatch(t, []string{"reconcile-all", "health-check", "processed-events-purge"}, jobNames(m))
}

func TestRegisterReconcileJobs_EmptyCronSkips(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, m.RegisterReconcileJobs("0 3 * * *", BatchJobFunc(noop), "", BatchJobFunc(noop)))
	assert.Equal(t, []string{"reconcile-all"}, jobNames(m))
}

func TestRegisterReconcileJobs_BadCron(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNopLogger())
	require.NoError(t, err)

	err = m.RegisterReconcileJobs("not a cron", BatchJobFunc(noop), "", nil)
	assert.Error(t, err)
}

func TestRun_SwallowsJobError(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNopLogger())
	require.NoError(t, err)

	calls := 0
	m.run(context.Background(), "failing", BatchJobFunc(func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}))
	assert.Equal(t, 1, calls)
}

func TestStartStop(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNopLogger())
	require.NoError(t, err)

	m.Start()
	assert.True(t, m.IsStarted())
	m.Start()

	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
	require.NoError(t, m.Stop())
}
