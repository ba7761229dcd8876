package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)

	started := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	id, err := store.RecordStart("task-a", started)
	require.NoError(t, err)
	require.NotZero(t, id)

	finished := started.Add(42 * time.Second)
	require.NoError(t, store.RecordFinish(id, "completed", finished))

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	require.Equal(t, id, run.ID)
	require.Equal(t, "task-a", run.TaskID)
	require.Equal(t, "completed", run.Outcome)
	require.True(t, run.StartedAt.Equal(started))
	require.True(t, run.FinishedAt.Equal(finished))
}

func TestListNewestFirst(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i, taskID := range []string{"first", "second", "third"} {
		_, err := store.RecordStart(taskID, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "third", runs[0].TaskID)
	require.Equal(t, "second", runs[1].TaskID)
}

func TestUnfinishedRun(t *testing.T) {
	store := openTestStore(t)

	_, err := store.RecordStart("task-b", time.Now())
	require.NoError(t, err)

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Empty(t, runs[0].Outcome)
	require.True(t, runs[0].FinishedAt.IsZero())
}
