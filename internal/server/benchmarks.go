package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentsea/taskara/internal/auth"
	"github.com/agentsea/taskara/internal/types"
)

func (s *Server) handleCreateBenchmark(c *gin.Context) {
	var body types.V1Benchmark
	if !s.bindJSON(c, &body) {
		return
	}
	created, err := s.benchmarks.Create(c.Request.Context(), principal(c).Email, body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) handleListBenchmarks(c *gin.Context) {
	found, err := s.benchmarks.Find(c.Request.Context(), owners(c, auth.OpRead), c.Query("name"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.V1Benchmarks{Benchmarks: found})
}

func (s *Server) handleGetBenchmark(c *gin.Context) {
	bench, err := s.benchmarks.Get(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bench)
}

func (s *Server) handleDeleteBenchmark(c *gin.Context) {
	err := s.benchmarks.Delete(c.Request.Context(), owners(c, auth.OpDelete), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Benchmark deleted successfully"})
}

func (s *Server) handleBenchmarkEval(c *gin.Context) {
	var body types.V1BenchmarkEval
	if !s.bindJSON(c, &body) {
		return
	}
	eval, err := s.benchmarks.Eval(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"), body, principal(c).Email)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) handleCreateEval(c *gin.Context) {
	var body types.V1Eval
	if !s.bindJSON(c, &body) {
		return
	}
	eval, err := s.benchmarks.CreateEval(c.Request.Context(), owners(c, auth.OpRead), principal(c).Email, body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) handleListEvals(c *gin.Context) {
	found, err := s.benchmarks.FindEvals(c.Request.Context(), owners(c, auth.OpRead))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.V1Evals{Evals: found})
}

func (s *Server) handleGetEval(c *gin.Context) {
	eval, err := s.benchmarks.GetEval(c.Request.Context(), owners(c, auth.OpRead), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) handleDeleteEval(c *gin.Context) {
	err := s.benchmarks.DeleteEval(c.Request.Context(), owners(c, auth.OpDelete), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Eval deleted successfully"})
}
