package benchmark

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/types"
)

func TestTemplateToTask(t *testing.T) {
	tpl := types.V1TaskTemplate{
		ID:          "tpl-1",
		Description: "Search for french ducks",
		MaxSteps:    30,
		DeviceType:  &types.V1DeviceType{Name: "desktop"},
		Parameters:  map[string]any{"site": "https://google.com"},
		Tags:        []string{"search"},
		Labels:      map[string]string{"benchmark": "ducks"},
	}

	task := TemplateToTask(tpl, "agent1", "agent", "tom@myspace.com")
	require.Empty(t, task.ID)
	require.Equal(t, "Search for french ducks", task.Description)
	require.Equal(t, 30, task.MaxSteps)
	require.Equal(t, "agent1", task.AssignedTo)
	require.Equal(t, "agent", task.AssignedType)
	require.Equal(t, "tom@myspace.com", task.OwnerID)
	require.Equal(t, "desktop", task.DeviceType.Name)
	require.Equal(t, tpl.Tags, task.Tags)
	require.Equal(t, tpl.Labels, task.Labels)

	// Materialised tasks never alias the template's collections.
	task.Labels["benchmark"] = "other"
	task.Tags[0] = "other"
	require.Equal(t, "ducks", tpl.Labels["benchmark"])
	require.Equal(t, "search", tpl.Tags[0])
}

func TestTemplateFromTask(t *testing.T) {
	src := types.V1Task{
		ID:          "task-1",
		Description: "Search for french ducks",
		MaxSteps:    30,
		Status:      "finished",
		OwnerID:     "tom@myspace.com",
		AssignedTo:  "agent1",
		Parameters:  map[string]any{"site": "https://google.com"},
		Tags:        []string{"search"},
		Labels:      map[string]string{"env": "prod"},
	}

	tpl := TemplateFromTask(src)
	require.Empty(t, tpl.ID)
	require.Equal(t, src.Description, tpl.Description)
	require.Equal(t, src.MaxSteps, tpl.MaxSteps)
	require.Equal(t, src.OwnerID, tpl.OwnerID)
	require.Equal(t, src.Parameters, tpl.Parameters)
	require.Equal(t, src.Tags, tpl.Tags)
	require.Equal(t, src.Labels, tpl.Labels)
}

func TestTemplateRoundTrip(t *testing.T) {
	tpl := types.V1TaskTemplate{
		Description: "Book a flight",
		MaxSteps:    50,
		Device:      &types.V1Device{Name: "desktop1"},
		Labels:      map[string]string{"benchmark": "travel"},
	}
	got := TemplateFromTask(TemplateToTask(tpl, "", "", "tom@myspace.com"))
	require.Equal(t, tpl.Description, got.Description)
	require.Equal(t, tpl.MaxSteps, got.MaxSteps)
	require.Equal(t, tpl.Device, got.Device)
	require.Equal(t, tpl.Labels, got.Labels)
	require.Equal(t, "tom@myspace.com", got.OwnerID)
}
