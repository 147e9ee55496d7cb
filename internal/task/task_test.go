package task

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

func TestStatusIsDone(t *testing.T) {
	cases := []struct {
		status Status
		done   bool
	}{
		{StatusDefined, false},
		{StatusCreated, false},
		{StatusInProgress, false},
		{StatusWaiting, false},
		{StatusFinished, false},
		{StatusFailed, true},
		{StatusError, true},
		{StatusCanceling, true},
		{StatusCanceled, true},
		{StatusTimedOut, true},
	}
	for _, tc := range cases {
		if got := tc.status.IsDone(); got != tc.done {
			t.Errorf("IsDone(%q) = %v, want %v", tc.status, got, tc.done)
		}
	}
}

func TestStatusValid(t *testing.T) {
	require.True(t, Status("in progress").Valid())
	require.True(t, Status("timed out").Valid())
	require.False(t, Status("in_progress").Valid())
	require.False(t, Status("done").Valid())
	require.False(t, Status("").Valid())
}

func TestVersionHashDeterministic(t *testing.T) {
	v1 := types.V1Task{
		ID:          "task-1",
		Description: "Search for french ducks",
		Status:      "in progress",
		MaxSteps:    30,
		OwnerID:     "tom@myspace.com",
		Labels:      map[string]string{"env": "prod", "benchmark": "ducks"},
		Tags:        []string{"search", "web"},
		Parameters:  map[string]any{"site": "https://google.com"},
	}
	first, err := VersionHash(v1)
	require.NoError(t, err)
	second, err := VersionHash(v1)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestVersionHashExcludesVersionAndToken(t *testing.T) {
	v1 := types.V1Task{ID: "task-1", Description: "Search for french ducks"}
	base, err := VersionHash(v1)
	require.NoError(t, err)

	v1.Version = "deadbeef"
	v1.AuthToken = "secret"
	same, err := VersionHash(v1)
	require.NoError(t, err)
	require.Equal(t, base, same)
}

func TestVersionHashTracksContent(t *testing.T) {
	v1 := types.V1Task{ID: "task-1", Description: "Search for french ducks"}
	before, err := VersionHash(v1)
	require.NoError(t, err)

	v1.Status = "finished"
	after, err := VersionHash(v1)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestCloneMapIsDeep(t *testing.T) {
	src := map[string]any{"a": 1, "b": "two"}
	dst := cloneMap(src)
	require.Equal(t, src, dst)
	dst["a"] = 99
	require.Equal(t, 1, src["a"])

	require.Nil(t, cloneMap(nil))
}

func TestCloneDeviceDoesNotAlias(t *testing.T) {
	d := &types.V1Device{Name: "desktop1", Config: map[string]any{"os": "linux"}}
	clone := cloneDevice(d)
	require.Equal(t, d, clone)
	clone.Name = "other"
	require.Equal(t, "desktop1", d.Name)

	require.Nil(t, cloneDevice(nil))
}

func TestApplyPatchOnlyTouchesPresentFields(t *testing.T) {
	rec := &store.TaskRecord{
		ID:          "task-1",
		Description: "Search for french ducks",
		Status:      "in progress",
		AssignedTo:  "tom@myspace.com",
		MaxSteps:    30,
	}
	status := "finished"
	output := `{"found": true}`
	completed := 1700000000.5
	applyPatch(rec, types.V1TaskUpdate{Status: &status, Output: &output, Completed: &completed})

	require.Equal(t, "finished", rec.Status)
	require.Equal(t, `{"found": true}`, rec.Output)
	require.Equal(t, 1700000000.5, rec.Completed)
	require.Equal(t, "Search for french ducks", rec.Description)
	require.Equal(t, "tom@myspace.com", rec.AssignedTo)
	require.Equal(t, 30, rec.MaxSteps)
}
