package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/types"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	return &Server{logger: logging.Nop()}
}

type tokenRecorder struct {
	token string
}

func (v *tokenRecorder) Verify(ctx context.Context, token string) (*types.V1UserProfile, error) {
	v.token = token
	return &types.V1UserProfile{Email: "tom@myspace.com"}, nil
}

func TestAuthMiddlewareRequiresBearerScheme(t *testing.T) {
	rec := &tokenRecorder{}
	s := newTestServer()
	s.verifier = rec
	r := gin.New()
	r.GET("/v1/ping", s.authMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	// A bare token with no scheme never reaches the verifier.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set("Authorization", "sometoken")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, rec.token)

	// The Bearer scheme passes the bare token through.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "abc123", rec.token)

	// No header at all still reaches the verifier, with an empty token.
	rec.token = "stale"
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, rec.token)
}

func TestRespondErrorStatusMapping(t *testing.T) {
	s := newTestServer()
	cases := []struct {
		err    error
		status int
	}{
		{errs.NotFound("task t1 not found"), http.StatusNotFound},
		{errs.Unauthorized("missing bearer token"), http.StatusUnauthorized},
		{errs.Forbidden("owner outside scope"), http.StatusForbidden},
		{errs.Conflict("benchmark exists"), http.StatusConflict},
		{errs.Precondition("task has no episode"), http.StatusPreconditionFailed},
		{errs.DependencyMissing("prompt p1 not found"), http.StatusFailedDependency},
		{errs.RemoteFailure(500, "remote blew up"), http.StatusBadGateway},
		{errs.Timeout("deadline"), http.StatusGatewayTimeout},
		{errs.Transient(errors.New("connection reset")), http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		s.respondError(c, tc.err)
		require.Equal(t, tc.status, w.Code, "error %v", tc.err)
	}
}

func TestRespondErrorValidationShape(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	s.respondError(c, errs.Validation("unknown task status %q", "done"))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Detail []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Detail, 1)
	require.Equal(t, `unknown task status "done"`, body.Detail[0].Message)
	require.Equal(t, "validation", body.Detail[0].Type)
}

func TestBindJSONMissingRequiredField(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/v1/tasks/t1/review", strings.NewReader(`{"reviewer": "tom@myspace.com"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var body types.V1CreateReview
	require.False(t, s.bindJSON(c, &body))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Detail []struct {
			Field string `json:"field"`
			Type  string `json:"type"`
		} `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Detail, 1)
	require.Equal(t, "Approved", resp.Detail[0].Field)
	require.Equal(t, "required", resp.Detail[0].Type)
}

func TestBindJSONMalformedBody(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(`{"description":`))
	c.Request.Header.Set("Content-Type", "application/json")

	var body types.V1Task
	require.False(t, s.bindJSON(c, &body))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Detail []struct {
			Type string `json:"type"`
		} `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Detail, 1)
	require.Equal(t, "json_invalid", resp.Detail[0].Type)
}

func TestBindJSONAcceptsValidBody(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/v1/tasks/t1/review", strings.NewReader(`{"approved": false, "reason": "missed the target"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var body types.V1CreateReview
	require.True(t, s.bindJSON(c, &body))
	require.NotNil(t, body.Approved)
	require.False(t, *body.Approved)
	require.Equal(t, "missed the target", body.Reason)
}
