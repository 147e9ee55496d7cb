package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/types"
)

func TestResolveOwnersByOp(t *testing.T) {
	profile := &types.V1UserProfile{
		Email: "tom@myspace.com",
		Organizations: map[string]types.V1OrgRole{
			"org-a": {Role: "org:viewer"},
			"org-b": {Role: "org:member"},
			"org-c": {Role: "Admin"},
		},
	}

	read := ResolveOwners(profile, OpRead)
	require.ElementsMatch(t, []string{"tom@myspace.com", "org-a", "org-b", "org-c"}, read)

	mutate := ResolveOwners(profile, OpMutate)
	require.ElementsMatch(t, []string{"tom@myspace.com", "org-b", "org-c"}, mutate)

	del := ResolveOwners(profile, OpDelete)
	require.ElementsMatch(t, []string{"tom@myspace.com", "org-b", "org-c"}, del)
}

func TestResolveOwnersAgentRole(t *testing.T) {
	profile := &types.V1UserProfile{
		Email: "agent@agentsea.ai",
		Organizations: map[string]types.V1OrgRole{
			"org-a": {Role: "agent"},
		},
	}
	require.ElementsMatch(t, []string{"agent@agentsea.ai", "org-a"}, ResolveOwners(profile, OpMutate))
	require.Equal(t, []string{"agent@agentsea.ai"}, ResolveOwners(profile, OpDelete))
}

func TestResolveOwnersNoOrgs(t *testing.T) {
	profile := &types.V1UserProfile{Email: "tom@myspace.com"}
	require.Equal(t, []string{"tom@myspace.com"}, ResolveOwners(profile, OpRead))
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{
		"org:admin": "admin",
		"ADMIN":     "admin",
		" member ":  "member",
		"org:Agent": "agent",
	}
	for in, want := range cases {
		if got := normalizeRole(in); got != want {
			t.Errorf("normalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckOwnerScope(t *testing.T) {
	resolved := []string{"tom@myspace.com", "org-b"}
	require.NoError(t, CheckOwnerScope(nil, resolved))
	require.NoError(t, CheckOwnerScope([]string{"org-b"}, resolved))

	err := CheckOwnerScope([]string{"org-z"}, resolved)
	require.Error(t, err)
	require.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestHubVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/users/me", r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"email": "tom@myspace.com", "display_name": "Tom"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := NewHubVerifier(srv.URL)

	profile, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "tom@myspace.com", profile.Email)
	require.Equal(t, "good", profile.Token)

	_, err = v.Verify(context.Background(), "bad")
	require.Equal(t, errs.KindUnauthorized, errs.KindOf(err))

	_, err = v.Verify(context.Background(), "")
	require.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
}

func TestNoAuthVerifier(t *testing.T) {
	profile, err := NoAuthVerifier{}.Verify(context.Background(), "anything")
	require.NoError(t, err)
	require.Equal(t, "tom@myspace.com", profile.Email)
	require.Equal(t, "Tom", profile.DisplayName)
}
