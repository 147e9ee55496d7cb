package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// These tests need a real postgres. Point TASKS_DB_TEST_URL at a throwaway
// database to run them.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TASKS_DB_TEST_URL")
	if url == "" {
		t.Skip("TASKS_DB_TEST_URL not set")
	}
	ctx := context.Background()
	st, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.EnsureSchema(ctx))
	return st
}

func TestTaskRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := &TaskRecord{
		ID:          "task-rt-1",
		OwnerID:     "tom@myspace.com",
		Description: "Search for french ducks",
		Status:      "defined",
		MaxSteps:    30,
		Created:     1700000000,
		Threads:     []string{"thread-1"},
	}
	require.NoError(t, st.SaveTask(ctx, rec))
	t.Cleanup(func() { _ = st.DeleteTask(ctx, rec.ID) })

	got, err := st.GetTask(ctx, rec.ID, []string{"tom@myspace.com"})
	require.NoError(t, err)
	require.Equal(t, rec.Description, got.Description)
	require.Equal(t, rec.Threads, got.Threads)

	// Out of scope reads as absent.
	_, err = st.GetTask(ctx, rec.ID, []string{"someone@else.com"})
	require.Error(t, err)
}

func TestFindTasksByTagAndLabel(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := &TaskRecord{
		ID:      "task-ft-1",
		OwnerID: "tom@myspace.com",
		Status:  "defined",
		Created: 1700000000,
	}
	require.NoError(t, st.SaveTask(ctx, rec))
	t.Cleanup(func() { _ = st.DeleteTask(ctx, rec.ID) })
	require.NoError(t, st.SetTaskTags(ctx, rec.ID, []string{"search", "web"}))
	require.NoError(t, st.SetTaskLabels(ctx, rec.ID, map[string]string{"env": "prod", "team": "search"}))

	owners := []string{"tom@myspace.com"}

	// Tags require every listed value.
	found, err := st.FindTasks(ctx, TaskFilter{Owners: owners, Tags: []string{"search", "web"}})
	require.NoError(t, err)
	require.NotEmpty(t, found)

	found, err = st.FindTasks(ctx, TaskFilter{Owners: owners, Tags: []string{"web", "unrelated"}})
	require.NoError(t, err)
	for _, f := range found {
		require.NotEqual(t, rec.ID, f.ID)
	}

	// Labels require every listed pair.
	found, err = st.FindTasks(ctx, TaskFilter{Owners: owners, Labels: map[string]string{"env": "prod", "team": "search"}})
	require.NoError(t, err)
	require.NotEmpty(t, found)

	found, err = st.FindTasks(ctx, TaskFilter{Owners: owners, Labels: map[string]string{"env": "prod", "team": "other"}})
	require.NoError(t, err)
	for _, f := range found {
		require.NotEqual(t, rec.ID, f.ID)
	}
}

func TestEventOrderAssignment(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateEpisode(ctx, &EpisodeRecord{ID: "ep-eo-1", Created: 1700000000}))
	t.Cleanup(func() { _ = st.DeleteEpisode(ctx, "ep-eo-1") })

	first, err := st.NextEventOrder(ctx, "ep-eo-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), first)

	require.NoError(t, st.InsertActionEvent(ctx, &ActionEventRecord{
		ID:         "act-eo-1",
		EpisodeID:  "ep-eo-1",
		EventOrder: first,
		Action:     []byte(`{"name": "open"}`),
		Namespace:  "default",
		Created:    1700000001,
	}))

	second, err := st.NextEventOrder(ctx, "ep-eo-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), second)

	last, err := st.LastActionEvent(ctx, "ep-eo-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, "act-eo-1", last.ID)
}

func TestWithTxRollsBack(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	sentinel := os.ErrInvalid
	err := st.WithTx(ctx, func(tx *Store) error {
		if err := tx.SaveTask(ctx, &TaskRecord{
			ID: "task-tx-1", OwnerID: "tom@myspace.com", Status: "defined", Created: 1700000000,
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = st.GetTask(ctx, "task-tx-1", []string{"tom@myspace.com"})
	require.Error(t, err)
}
