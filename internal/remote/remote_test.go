package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/types"
)

func TestDoRoundTrip(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	var gotBody types.V1Task
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(types.V1Task{ID: "task-1", Description: gotBody.Description, Version: "abc"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "token123")
	var out types.V1Task
	err := c.Do(context.Background(), http.MethodPut, "/v1/tasks/task-1",
		types.V1Task{ID: "task-1", Description: "Search for french ducks"}, &out)
	require.NoError(t, err)

	require.Equal(t, "Bearer token123", gotAuth)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/v1/tasks/task-1", gotPath)
	require.Equal(t, "Search for french ducks", gotBody.Description)
	require.Equal(t, "abc", out.Version)
}

func TestDoNotFoundCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token123")
	err := c.Do(context.Background(), http.MethodGet, "/v1/tasks/missing", nil, nil)
	require.Error(t, err)
	require.True(t, errs.IsRemoteNotFound(err))
}

func TestDoServerErrorIsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token123")
	err := c.Do(context.Background(), http.MethodGet, "/v1/tasks/task-1", nil, nil)
	require.Equal(t, errs.KindRemoteFailure, errs.KindOf(err))
	require.False(t, errs.IsRemoteNotFound(err))
}

func TestDoUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "token123")
	err := c.Do(context.Background(), http.MethodGet, "/v1/tasks/task-1", nil, nil)
	require.Equal(t, errs.KindRemoteFailure, errs.KindOf(err))
}

func TestBaseURLTrimmed(t *testing.T) {
	c := NewClient("https://tracker.example.com/", "")
	require.Equal(t, "https://tracker.example.com", c.BaseURL())
}
