package review

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/store"
)

func pendingIDs(targets []Target) (users, agents []string) {
	for _, t := range targets {
		if t.UserID != "" {
			users = append(users, t.UserID)
		}
		if t.AgentID != "" {
			agents = append(agents, t.AgentID)
		}
	}
	return users, agents
}

func TestTargetPendingListsEveryPartyUpFront(t *testing.T) {
	in := Inputs{
		Requirements: []*store.RequirementRecord{
			{
				ID:             "req-1",
				NumberRequired: 2,
				Users:          []string{"anonymous@agentsea.ai"},
				Agents:         []string{"agent1", "agent2"},
			},
			{
				ID:             "req-2",
				NumberRequired: 1,
				Users:          []string{"tom@myspace.com", "anonymous@agentsea.ai"},
				Agents:         []string{"agent3"},
			},
		},
	}

	targets := TargetPending(in)
	require.Len(t, targets, 6)

	users, agents := pendingIDs(targets)
	require.ElementsMatch(t, []string{"anonymous@agentsea.ai", "tom@myspace.com", "anonymous@agentsea.ai"}, users)
	require.ElementsMatch(t, []string{"agent1", "agent2", "agent3"}, agents)
}

func TestTargetPendingClearsRequirementAtThreshold(t *testing.T) {
	in := Inputs{
		Requirements: []*store.RequirementRecord{
			{
				ID:             "req-1",
				NumberRequired: 2,
				Users:          []string{"anonymous@agentsea.ai"},
				Agents:         []string{"agent1", "agent2"},
			},
			{
				ID:             "req-2",
				NumberRequired: 1,
				Users:          []string{"tom@myspace.com", "anonymous@agentsea.ai"},
				Agents:         []string{"agent3"},
			},
		},
		TaskReviews: []*store.ReviewRecord{
			{Reviewer: "tom@myspace.com", ReviewerType: store.ReviewerTypeHuman, Approved: true},
			{Reviewer: "agent1", ReviewerType: store.ReviewerTypeAgent, Approved: true},
		},
	}

	// tom's review meets req-2 outright, clearing all three of its rows.
	// req-1 is still one satisfied party short, so all three of its
	// listed parties stay pending, agent1 included.
	targets := TargetPending(in)
	require.Len(t, targets, 3)
	for _, tgt := range targets {
		require.Equal(t, "req-1", tgt.RequirementID)
	}
	users, agents := pendingIDs(targets)
	require.Equal(t, []string{"anonymous@agentsea.ai"}, users)
	require.ElementsMatch(t, []string{"agent1", "agent2"}, agents)
}

func TestTargetPendingRequiresActionCoverage(t *testing.T) {
	in := Inputs{
		Requirements: []*store.RequirementRecord{
			{ID: "req-1", NumberRequired: 1, Users: []string{"tom@myspace.com"}},
		},
		TaskReviews: []*store.ReviewRecord{
			{Reviewer: "tom@myspace.com", Approved: true},
		},
		VisibleActionIDs: []string{"act-1", "act-2"},
		ActionReviews: map[string][]*store.ReviewRecord{
			"act-1": {{Reviewer: "tom@myspace.com", Approved: true}},
		},
	}

	targets := TargetPending(in)
	require.Len(t, targets, 1)
	require.Equal(t, "tom@myspace.com", targets[0].UserID)

	in.ActionReviews["act-2"] = []*store.ReviewRecord{
		{Reviewer: "tom@myspace.com", Approved: false},
	}
	require.Empty(t, TargetPending(in))
}

func TestTargetPendingIgnoresHiddenActions(t *testing.T) {
	// Hidden actions never appear in VisibleActionIDs, so a party that
	// reviewed the task and every visible action is satisfied.
	in := Inputs{
		Requirements: []*store.RequirementRecord{
			{ID: "req-1", NumberRequired: 1, Users: []string{"tom@myspace.com"}},
		},
		TaskReviews: []*store.ReviewRecord{
			{Reviewer: "tom@myspace.com", Approved: true},
		},
		VisibleActionIDs: []string{"act-1"},
		ActionReviews: map[string][]*store.ReviewRecord{
			"act-1": {{Reviewer: "tom@myspace.com", Approved: true}},
		},
	}
	require.Empty(t, TargetPending(in))
}

func TestTargetPendingMatchesReviewerAcrossTypes(t *testing.T) {
	// Satisfaction matches the reviewer id alone; a review recorded with a
	// different reviewer type still counts for the listed party.
	in := Inputs{
		Requirements: []*store.RequirementRecord{
			{ID: "req-1", NumberRequired: 1, Agents: []string{"agent1"}},
		},
		TaskReviews: []*store.ReviewRecord{
			{Reviewer: "agent1", ReviewerType: store.ReviewerTypeHuman, Approved: true},
		},
	}
	require.Empty(t, TargetPending(in))
}

func TestTargetPendingRejectionStillSatisfies(t *testing.T) {
	// A failing review is still a review; pending tracks coverage, not
	// approval.
	in := Inputs{
		Requirements: []*store.RequirementRecord{
			{ID: "req-1", NumberRequired: 1, Users: []string{"tom@myspace.com"}},
		},
		TaskReviews: []*store.ReviewRecord{
			{Reviewer: "tom@myspace.com", Approved: false},
		},
	}
	require.Empty(t, TargetPending(in))
}

func TestTargetPendingIsDeterministic(t *testing.T) {
	in := Inputs{
		Requirements: []*store.RequirementRecord{
			{ID: "req-1", NumberRequired: 2, Users: []string{"a@x.com", "b@x.com"}, Agents: []string{"agent1"}},
		},
	}
	first := TargetPending(in)
	second := TargetPending(in)
	require.Equal(t, first, second)
}
