package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentsea/taskara/internal/auth"
	"github.com/agentsea/taskara/internal/review"
	"github.com/agentsea/taskara/internal/types"
)

func (s *Server) handleCreateTask(c *gin.Context) {
	var body types.V1Task
	if !s.bindJSON(c, &body) {
		return
	}
	prof := principal(c)
	resolved := owners(c, auth.OpMutate)
	if body.OwnerID != "" {
		if err := auth.CheckOwnerScope([]string{body.OwnerID}, resolved); err != nil {
			s.respondError(c, err)
			return
		}
	}
	created, err := s.tasks.Create(c.Request.Context(), prof.Email, body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleListTasks(c *gin.Context) {
	search := types.V1SearchTask{
		TaskID:       c.Query("task_id"),
		ParentID:     c.Query("parent_id"),
		Status:       c.Query("status"),
		AssignedTo:   c.Query("assigned_to"),
		AssignedType: c.Query("assigned_type"),
		Device:       c.Query("device"),
		DeviceType:   c.Query("device_type"),
		Skill:        c.Query("skill"),
	}
	if tags := c.Query("tags"); tags != "" {
		search.Tags = strings.Split(tags, ",")
	}
	if labels := c.Query("labels"); labels != "" {
		if err := json.Unmarshal([]byte(labels), &search.Labels); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{
				{"field": "labels", "message": "labels must be a JSON object", "type": "json_invalid"},
			}})
			return
		}
	}
	if ownersParam := c.Query("owners"); ownersParam != "" {
		search.Owners = strings.Split(ownersParam, ",")
	}
	s.searchTasks(c, search)
}

func (s *Server) handleSearchTasks(c *gin.Context) {
	var body types.V1SearchTask
	if !s.bindJSON(c, &body) {
		return
	}
	s.searchTasks(c, body)
}

func (s *Server) searchTasks(c *gin.Context, search types.V1SearchTask) {
	resolved := owners(c, auth.OpRead)
	scope := resolved
	if len(search.Owners) > 0 {
		if err := auth.CheckOwnerScope(search.Owners, resolved); err != nil {
			s.respondError(c, err)
			return
		}
		scope = search.Owners
	}
	found, err := s.tasks.Find(c.Request.Context(), scope, search)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.V1Tasks{Tasks: found})
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.tasks.Get(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var body types.V1TaskUpdate
	if !s.bindJSON(c, &body) {
		return
	}
	t, err := s.tasks.Update(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	err := s.tasks.Delete(c.Request.Context(), owners(c, auth.OpDelete), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// reviewParams fills the reviewer from the principal when absent.
func reviewParams(c *gin.Context, approved bool, reviewer, reviewerType, reason, correction string) review.UpsertParams {
	if reviewer == "" {
		reviewer = principal(c).Email
	}
	return review.UpsertParams{
		Reviewer:     reviewer,
		ReviewerType: reviewerType,
		Approved:     approved,
		Reason:       reason,
		Correction:   correction,
	}
}

func (s *Server) handleReviewTask(c *gin.Context) {
	var body types.V1CreateReview
	if !s.bindJSON(c, &body) {
		return
	}
	p := reviewParams(c, *body.Approved, body.Reviewer, body.ReviewerType, body.Reason, body.Correction)
	t, err := s.tasks.ReviewTask(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handlePendingReviewers(c *gin.Context) {
	pending, err := s.tasks.PendingReviewers(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (s *Server) handlePendingReviews(c *gin.Context) {
	user, agent := "", c.Query("agent_id")
	if agent == "" {
		user = principal(c).Email
	}
	pending, err := s.tasks.PendingReviews(c.Request.Context(), user, agent)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (s *Server) handlePostMessage(c *gin.Context) {
	var body types.V1PostMessage
	if !s.bindJSON(c, &body) {
		return
	}
	err := s.tasks.PostMessage(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message posted"})
}

func (s *Server) handleListThreads(c *gin.Context) {
	threads, err := s.tasks.Threads(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.V1RoleThreads{Threads: threads})
}

func (s *Server) handleCreateThread(c *gin.Context) {
	var body types.V1AddThread
	if !s.bindJSON(c, &body) {
		return
	}
	created, err := s.tasks.CreateThread(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleRemoveThread(c *gin.Context) {
	err := s.tasks.RemoveThread(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), c.Param("tid"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Thread removed"})
}

func (s *Server) handleListPrompts(c *gin.Context) {
	prompts, err := s.tasks.Prompts(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.V1Prompts{Prompts: prompts})
}

func (s *Server) handleStorePrompt(c *gin.Context) {
	var body types.V1Prompt
	if !s.bindJSON(c, &body) {
		return
	}
	id, err := s.tasks.StorePrompt(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) handleApprovePrompt(c *gin.Context) {
	err := s.tasks.ApprovePrompt(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), c.Param("pid"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prompt approved"})
}

func (s *Server) handleFailPrompt(c *gin.Context) {
	err := s.tasks.FailPrompt(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), c.Param("pid"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prompt failed"})
}

func (s *Server) handleGetEpisode(c *gin.Context) {
	ep, err := s.tasks.Episode(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ep)
}

func (s *Server) handleListActions(c *gin.Context) {
	actions, err := s.tasks.Actions(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.V1ActionEvents{Events: actions})
}

func (s *Server) handleRecordAction(c *gin.Context) {
	var body types.V1ActionEvent
	if !s.bindJSON(c, &body) {
		return
	}
	_, err := s.tasks.RecordActionEvent(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Action recorded"})
}

func (s *Server) handleDeleteAllActions(c *gin.Context) {
	err := s.tasks.DeleteAllActions(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Actions deleted"})
}

func (s *Server) handleApproveAction(c *gin.Context) {
	s.reviewOneAction(c, true)
}

func (s *Server) handleFailAction(c *gin.Context) {
	s.reviewOneAction(c, false)
}

func (s *Server) reviewOneAction(c *gin.Context, approved bool) {
	var body types.V1CreateReview
	if !s.bindJSON(c, &body) {
		return
	}
	p := reviewParams(c, approved, body.Reviewer, body.ReviewerType, body.Reason, body.Correction)
	err := s.tasks.ReviewAction(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), c.Param("aid"), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Action reviewed"})
}

func (s *Server) handleApprovePrior(c *gin.Context) {
	var body types.V1CreateReview
	if !s.bindJSON(c, &body) {
		return
	}
	p := reviewParams(c, true, body.Reviewer, body.ReviewerType, body.Reason, body.Correction)
	err := s.tasks.ApprovePriorActions(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), c.Param("aid"), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Actions approved"})
}

func (s *Server) handleReviewAllActions(approved bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body types.V1ReviewMany
		if !s.bindJSON(c, &body) {
			return
		}
		p := reviewParams(c, approved, body.Reviewer, body.ReviewerType, body.Reason, body.Correction)
		err := s.tasks.ReviewAllActions(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), p, body.IncludeHidden)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Actions reviewed"})
	}
}

func (s *Server) handleHideAction(hidden bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.tasks.HideAction(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), c.Param("aid"), hidden)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Action updated"})
	}
}

func (s *Server) handleAnnotateAction(c *gin.Context) {
	var body types.V1AnnotationReviewable
	if !s.bindJSON(c, &body) {
		return
	}
	if body.Annotator == "" {
		body.Annotator = principal(c).Email
	}
	id, err := s.tasks.Annotate(c.Request.Context(), owners(c, auth.OpMutate), c.Param("id"), c.Param("aid"), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) handleReviewAnnotation(c *gin.Context) {
	var body types.V1CreateAnnotationReview
	if !s.bindJSON(c, &body) {
		return
	}
	p := reviewParams(c, *body.Approved, body.Reviewer, body.ReviewerType, body.Reason, body.Correction)
	if err := s.tasks.ReviewAnnotation(c.Request.Context(), c.Param("aid"), p); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Annotation reviewed"})
}
