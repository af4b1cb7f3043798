package jobqueue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

type fakeOrders struct {
	calls     atomic.Int32
	olderThan time.Duration
}

func (f *fakeOrders) CancelStaleOrders(_ context.Context, olderThan time.Duration) (int64, error) {
	f.calls.Add(1)
	f.olderThan = olderThan
	return 2, nil
}

type fakeCounters struct {
	err error
}

func (f fakeCounters) Flush(context.Context) (int, error) { return 0, f.err }

func TestSweepTasksRunOnce(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "watermarked_x_report.pdf")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	orders := &fakeOrders{}
	cfg := config.SweeperConfig{Interval: time.Minute, TempMaxAge: 24 * time.Hour, CounterInterval: time.Minute}
	tasks := SweepTasks(cfg, SweepDeps{Orders: orders, Counters: fakeCounters{}, PendingTTL: 30 * time.Minute, TempDir: dir})
	require.Len(t, tasks, 3)

	m := NewManager(nil, tasks...)
	require.NoError(t, m.RunOnce(context.Background()))
	assert.Equal(t, int32(1), orders.calls.Load())
	assert.Equal(t, 30*time.Minute, orders.olderThan)
	assert.NoFileExists(t, stale)
}

func TestRunOnceJoinsErrors(t *testing.T) {
	cfg := config.SweeperConfig{Interval: time.Minute, CounterInterval: time.Minute}
	m := NewManager(nil, SweepTasks(cfg, SweepDeps{Counters: fakeCounters{err: errors.New("redis down")}})...)

	err := m.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "view-counters: redis down")
}

func TestManagerStartStop(t *testing.T) {
	var runs atomic.Int32
	m := NewManager(nil, Task{Name: "tick", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	assert.False(t, m.IsRunning())
	m.Stop()

	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}
