package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/store"
)

type recordingExecutor struct {
	mu   sync.Mutex
	ids  []string
	done chan string
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{done: make(chan string, 16)}
}

func (e *recordingExecutor) Execute(_ context.Context, runID string) error {
	e.mu.Lock()
	e.ids = append(e.ids, runID)
	e.mu.Unlock()
	e.done <- runID
	return nil
}

func waitFor(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-timeout:
			t.Fatalf("timed out after %d of %d runs", len(got), n)
		}
	}
	return got
}

func TestDispatcher_ExecutesEnqueued(t *testing.T) {
	exec := newRecordingExecutor()
	d := NewDispatcher(exec, store.NewMemoryStore(), DispatcherConfig{Workers: 2})
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	assert.True(t, d.Enqueue("a"))
	assert.True(t, d.Enqueue("b"))
	got := waitFor(t, exec.done, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, got)

	require.NoError(t, d.Stop(ctx))
	assert.False(t, d.Enqueue("c"), "enqueue after stop must be refused")
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(newRecordingExecutor(), store.NewMemoryStore(), DispatcherConfig{Workers: 1, QueueSize: 1})
	assert.True(t, d.Enqueue("a"))
	assert.False(t, d.Enqueue("b"))
}

func TestDispatcher_DoubleStart(t *testing.T) {
	d := NewDispatcher(newRecordingExecutor(), store.NewMemoryStore(), DispatcherConfig{})
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	assert.Error(t, d.Start(ctx))
	require.NoError(t, d.Stop(ctx))
	require.NoError(t, d.Stop(ctx))
}

func TestDispatcher_RecoversRuns(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	stale := model.NewRun("pr", "sha", "poller", base)
	stale.Status = model.RunInProgress
	started := base.Add(time.Second)
	stale.StartedAt = &started
	require.NoError(t, st.SaveRun(ctx, stale))

	older := model.NewRun("pr", "sha", "poller", base.Add(time.Minute))
	newer := model.NewRun("pr", "sha", "poller", base.Add(2*time.Minute))
	require.NoError(t, st.SaveRun(ctx, newer))
	require.NoError(t, st.SaveRun(ctx, older))

	exec := newRecordingExecutor()
	d := NewDispatcher(exec, st, DispatcherConfig{Workers: 1})
	require.NoError(t, d.Start(ctx))
	got := waitFor(t, exec.done, 2)
	require.NoError(t, d.Stop(ctx))

	assert.Equal(t, []string{older.ID, newer.ID}, got, "pending runs are requeued oldest first")

	r, err := st.Run(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, r.Status)
	assert.Contains(t, r.ErrorMessage, "interrupted")
	assert.NotNil(t, r.CompletedAt)
}

func TestDispatcher_WithOrchestrator(t *testing.T) {
	f := newFixture(t, map[string]string{"main.js": "console.log('hi');\n"})
	run := f.newRun(t)
	ctx := context.Background()

	d := NewDispatcher(f.orch, f.store, DispatcherConfig{Workers: 1})
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool {
		r, err := f.store.Run(ctx, run.ID)
		return err == nil && r.Status == model.RunCompleted
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, d.Stop(ctx))
}
