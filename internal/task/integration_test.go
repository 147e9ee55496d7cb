package task

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/review"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/types"
)

// These run the full engine against a real postgres. Point
// TASKS_DB_TEST_URL at a throwaway database to enable them.
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
	return NewService(st)
}

func TestCreateAndReviewFlow(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	created, err := svc.Create(ctx, "tom@myspace.com", types.V1Task{
		Description: "Search for french ducks",
		AssignedTo:  "tom@myspace.com",
		Labels:      map[string]string{"test": "true"},
		ReviewRequirements: []types.V1ReviewRequirement{
			{NumberRequired: 2, Users: []string{"anonymous@agentsea.ai"}, Agents: []string{"agent1", "agent2"}},
			{NumberRequired: 1, Users: []string{"tom@myspace.com", "anonymous@agentsea.ai"}, Agents: []string{"agent3"}},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, created.ID) })

	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.Version)
	require.NotEmpty(t, created.EpisodeID)
	require.Len(t, created.Threads, 1)
	require.Equal(t, "feed", created.Threads[0].Name)

	pending, err := svc.PendingReviewers(ctx, owners, created.ID)
	require.NoError(t, err)
	require.Len(t, pending.Users, 2)
	require.Len(t, pending.Agents, 3)

	_, err = svc.ReviewTask(ctx, owners, created.ID, reviewWrite("tom@myspace.com", "human", true))
	require.NoError(t, err)
	_, err = svc.ReviewTask(ctx, owners, created.ID, reviewWrite("agent1", "agent", true))
	require.NoError(t, err)

	pending, err = svc.PendingReviewers(ctx, owners, created.ID)
	require.NoError(t, err)
	require.Equal(t, 3, len(pending.Users)+len(pending.Agents))

	mine, err := svc.PendingReviews(ctx, "tom@myspace.com", "")
	require.NoError(t, err)
	require.NotContains(t, mine.Tasks, created.ID)
}

func TestUpdateMergesLabels(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	created, err := svc.Create(ctx, "tom@myspace.com", types.V1Task{
		Description: "Search for french ducks",
		Labels:      map[string]string{"test": "true"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, created.ID) })

	_, err = svc.Update(ctx, owners, created.ID, types.V1TaskUpdate{
		SetLabels: map[string]string{"test_set": "true"},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, owners, created.ID)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"test": "true", "test_set": "true"}, got.Labels)
	require.NotEqual(t, created.Version, got.Version)
}

func TestPromptRoundTrip(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	created, err := svc.Create(ctx, "tom@myspace.com", types.V1Task{Description: "Search for french ducks"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, created.ID) })

	id, err := svc.StorePrompt(ctx, owners, created.ID, types.V1Prompt{
		Thread: types.V1RoleThread{Name: "prompt"},
		Response: types.V1RoleMessage{
			Role: "assistant",
			Text: "I will open the browser.",
		},
		Model: "nav-3",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	prompts, err := svc.Prompts(ctx, owners, created.ID)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	require.Equal(t, id, prompts[0].ID)
	require.False(t, prompts[0].Approved)

	require.NoError(t, svc.ApprovePrompt(ctx, owners, created.ID, id))
	prompts, err = svc.Prompts(ctx, owners, created.ID)
	require.NoError(t, err)
	require.True(t, prompts[0].Approved)
}

func TestActionEndRule(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	created, err := svc.Create(ctx, "tom@myspace.com", types.V1Task{Description: "Search for french ducks"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, created.ID) })

	for _, name := range []string{"click", "mouse_move", "end"} {
		_, err := svc.RecordActionEvent(ctx, owners, created.ID, types.V1ActionEvent{
			Action: types.V1Action{Name: name},
		})
		require.NoError(t, err)
	}

	actions, err := svc.Actions(ctx, owners, created.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, "click", actions[0].Action.Name)
	require.Equal(t, "end", actions[1].Action.Name)

	// Recording after end is a no-op.
	_, err = svc.RecordActionEvent(ctx, owners, created.ID, types.V1ActionEvent{
		Action: types.V1Action{Name: "click"},
	})
	require.NoError(t, err)
	actions, err = svc.Actions(ctx, owners, created.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
}

func TestDeleteRemovesAnnotationReviews(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	created, err := svc.Create(ctx, "tom@myspace.com", types.V1Task{Description: "Search for french ducks"})
	require.NoError(t, err)

	_, err = svc.RecordActionEvent(ctx, owners, created.ID, types.V1ActionEvent{
		Action: types.V1Action{Name: "click"},
	})
	require.NoError(t, err)
	actions, err := svc.Actions(ctx, owners, created.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	annID, err := svc.Annotate(ctx, owners, created.ID, actions[0].ID, types.V1AnnotationReviewable{
		Key:   "quality",
		Value: "good",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ReviewAnnotation(ctx, annID, reviewWrite("tom@myspace.com", "human", true)))

	require.NoError(t, svc.Delete(ctx, owners, created.ID))

	reviews, err := svc.Store().ReviewsForResource(ctx, store.ResourceTypeAnnotation, annID)
	require.NoError(t, err)
	require.Empty(t, reviews)
}

func TestCopySharesNothing(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	owners := []string{"tom@myspace.com"}

	created, err := svc.Create(ctx, "tom@myspace.com", types.V1Task{
		Description: "Search for french ducks",
		Status:      string(StatusInProgress),
		Labels:      map[string]string{"test": "true"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, created.ID) })

	clone, err := svc.Copy(ctx, owners, created.ID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(ctx, owners, clone.ID) })

	require.NotEqual(t, created.ID, clone.ID)
	require.Equal(t, string(StatusDefined), clone.Status)
	require.NotEqual(t, created.EpisodeID, clone.EpisodeID)
	require.Equal(t, created.Labels, clone.Labels)
}

func reviewWrite(reviewer, reviewerType string, approved bool) review.UpsertParams {
	return review.UpsertParams{
		Reviewer:     reviewer,
		ReviewerType: reviewerType,
		Approved:     approved,
	}
}
