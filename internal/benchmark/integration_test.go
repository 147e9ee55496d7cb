package benchmark

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/task"
	"github.com/agentsea/taskara/internal/types"
)

func testService(t *testing.T) *Service {
	t.Helper()
	url := os.Getenv("TASKS_DB_TEST_URL")
	if url == "" {
		t.Skip("TASKS_DB_TEST_URL not set")
	}
	ctx := context.Background()
	st, err := store.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.EnsureSchema(ctx))
	return NewService(st, task.NewService(st))
}

func TestBenchmarkEvalMaterialisesTasks(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	bench, err := svc.Create(ctx, "tom@myspace.com", types.V1Benchmark{
		Name: "test-bench",
		Tasks: []types.V1TaskTemplate{
			{Description: "Search the web", DeviceType: &types.V1DeviceType{Name: "desktop"}},
			{Description: "Order a pizza", DeviceType: &types.V1DeviceType{Name: "mobile"}},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, bench.ID) })

	eval, err := svc.Eval(ctx, owners, bench.ID, types.V1BenchmarkEval{
		AssignedTo:   "test_agent",
		AssignedType: "pizza",
	}, "tom@myspace.com")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.DeleteEval(ctx, owners, eval.ID) })

	require.Len(t, eval.Tasks, 2)
	for _, et := range eval.Tasks {
		require.Equal(t, "test-bench", et.Labels[BenchmarkLabel])
		require.Equal(t, "test_agent", et.AssignedTo)
		require.Equal(t, "pizza", et.AssignedType)
	}
}

func TestEvalRollsBackOnTemplateFailure(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	// The second template has no description, so its task fails validation
	// mid-materialisation.
	bench, err := svc.Create(ctx, "tom@myspace.com", types.V1Benchmark{
		Name: "partial-bench",
		Tasks: []types.V1TaskTemplate{
			{Description: "Search the web"},
			{},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, bench.ID) })

	_, err = svc.Eval(ctx, owners, bench.ID, types.V1BenchmarkEval{
		AssignedTo: "test_agent",
	}, "tom@myspace.com")
	require.Error(t, err)

	// Nothing survives the rollback: no eval rows, no materialised tasks.
	evals, err := svc.FindEvals(ctx, owners)
	require.NoError(t, err)
	for _, e := range evals {
		if e.Benchmark != nil {
			require.NotEqual(t, bench.ID, e.Benchmark.ID)
		}
	}
	tasks, err := svc.store.FindTasks(ctx, store.TaskFilter{
		Owners: owners,
		Labels: map[string]string{BenchmarkLabel: "partial-bench"},
	})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestBenchmarkNameIsUnique(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	bench, err := svc.Create(ctx, "tom@myspace.com", types.V1Benchmark{Name: "dup-bench"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, bench.ID) })

	_, err = svc.Create(ctx, "tom@myspace.com", types.V1Benchmark{Name: "dup-bench"})
	require.True(t, errs.IsConflict(err))
}

func TestPublicBenchmarkReadableByAnyone(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	bench, err := svc.Create(ctx, "tom@myspace.com", types.V1Benchmark{
		Name:   "open-bench",
		Public: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, bench.ID) })

	got, err := svc.Get(ctx, []string{"someone@else.com"}, bench.ID)
	require.NoError(t, err)
	require.Equal(t, "open-bench", got.Name)
}
