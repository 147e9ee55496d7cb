// Package server is the REST edge of the tracker: bearer auth, routing and
// the mapping from core error kinds to HTTP statuses.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/agentsea/taskara/internal/auth"
	"github.com/agentsea/taskara/internal/benchmark"
	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/task"
	"github.com/agentsea/taskara/internal/types"
)

const profileKey = "principal"

// Server hosts the tracker API.
type Server struct {
	tasks      *task.Service
	benchmarks *benchmark.Service
	store      *store.Store
	verifier   auth.Verifier

	engine     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
}

// Config tunes the HTTP server.
type Config struct {
	Port  int
	Debug bool
}

// NewServer wires the API over the task and benchmark engines.
func NewServer(cfg Config, st *store.Store, tasks *task.Service, benchmarks *benchmark.Service, verifier auth.Verifier) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		tasks:      tasks,
		benchmarks: benchmarks,
		store:      st,
		verifier:   verifier,
		engine:     engine,
		logger:     logging.NewComponentLogger("Server"),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.setupRoutes()
	return s
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/v1")
	v1.Use(s.authMiddleware())

	tasks := v1.Group("/tasks")
	tasks.POST("", s.handleCreateTask)
	tasks.GET("", s.handleListTasks)
	tasks.POST("/search", s.handleSearchTasks)
	tasks.GET("/:id", s.handleGetTask)
	tasks.PUT("/:id", s.handleUpdateTask)
	tasks.DELETE("/:id", s.handleDeleteTask)
	tasks.PUT("/:id/review", s.handleReviewTask)
	tasks.GET("/:id/pending_reviewers", s.handlePendingReviewers)

	tasks.POST("/:id/msg", s.handlePostMessage)
	tasks.GET("/:id/threads", s.handleListThreads)
	tasks.POST("/:id/threads", s.handleCreateThread)
	tasks.DELETE("/:id/threads/:tid", s.handleRemoveThread)

	tasks.GET("/:id/prompts", s.handleListPrompts)
	tasks.POST("/:id/prompts", s.handleStorePrompt)
	tasks.POST("/:id/prompts/:pid/approve", s.handleApprovePrompt)
	tasks.POST("/:id/prompts/:pid/fail", s.handleFailPrompt)

	tasks.GET("/:id/episode", s.handleGetEpisode)
	tasks.GET("/:id/actions", s.handleListActions)
	tasks.POST("/:id/actions", s.handleRecordAction)
	tasks.DELETE("/:id/actions", s.handleDeleteAllActions)
	tasks.POST("/:id/actions/:aid/approve", s.handleApproveAction)
	tasks.POST("/:id/actions/:aid/fail", s.handleFailAction)
	tasks.POST("/:id/actions/:aid/approve_prior", s.handleApprovePrior)
	tasks.PUT("/:id/actions/:aid/hide", s.handleHideAction(true))
	tasks.PUT("/:id/actions/:aid/unhide", s.handleHideAction(false))
	tasks.POST("/:id/approve_actions", s.handleReviewAllActions(true))
	tasks.POST("/:id/fail_actions", s.handleReviewAllActions(false))
	tasks.POST("/:id/actions/:aid/annotations", s.handleAnnotateAction)

	v1.POST("/annotations/:aid/review", s.handleReviewAnnotation)
	v1.GET("/pending_reviews", s.handlePendingReviews)

	v1.POST("/benchmarks", s.handleCreateBenchmark)
	v1.GET("/benchmarks", s.handleListBenchmarks)
	v1.GET("/benchmarks/:id", s.handleGetBenchmark)
	v1.DELETE("/benchmarks/:id", s.handleDeleteBenchmark)
	v1.POST("/benchmarks/:id/eval", s.handleBenchmarkEval)

	v1.POST("/evals", s.handleCreateEval)
	v1.GET("/evals", s.handleListEvals)
	v1.GET("/evals/:id", s.handleGetEval)
	v1.DELETE("/evals/:id", s.handleDeleteEval)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Agent tasks"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authMiddleware resolves the bearer token to a principal and stashes it
// in the request context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		var token string
		if header != "" {
			const scheme = "Bearer "
			if !strings.HasPrefix(header, scheme) {
				s.respondError(c, errs.Unauthorized("authorization header must use the Bearer scheme"))
				c.Abort()
				return
			}
			token = strings.TrimSpace(strings.TrimPrefix(header, scheme))
		}
		profile, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			s.respondError(c, err)
			c.Abort()
			return
		}
		c.Set(profileKey, profile)
		c.Next()
	}
}

func principal(c *gin.Context) *types.V1UserProfile {
	v, _ := c.Get(profileKey)
	profile, _ := v.(*types.V1UserProfile)
	return profile
}

func owners(c *gin.Context, op auth.OpKind) []string {
	return auth.ResolveOwners(principal(c), op)
}

// respondError maps core error kinds onto HTTP statuses. Validation
// failures render the field error list shape.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindUnauthorized:
		status = http.StatusUnauthorized
	case errs.KindForbidden:
		status = http.StatusForbidden
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindValidation:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{
			{"field": "", "message": err.Error(), "type": "validation"},
		}})
		return
	case errs.KindPrecondition:
		status = http.StatusPreconditionFailed
	case errs.KindDependencyMissing:
		status = http.StatusFailedDependency
	case errs.KindRemoteFailure:
		status = http.StatusBadGateway
	case errs.KindTimeout:
		status = http.StatusGatewayTimeout
	case errs.KindTransient:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("unclassified error: %v", err)
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}

// bindJSON decodes the body, rendering binding failures as a 422 list of
// field errors.
func (s *Server) bindJSON(c *gin.Context, out any) bool {
	err := c.ShouldBindJSON(out)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]gin.H, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, gin.H{
				"field":   fe.Field(),
				"message": fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()),
				"type":    fe.Tag(),
			})
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": details})
		return false
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{
		{"field": "", "message": err.Error(), "type": "json_invalid"},
	}})
	return false
}
