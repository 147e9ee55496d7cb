// Package auth verifies bearer tokens against the hub and resolves the
// owner scopes a principal may act on.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/types"
)

// OpKind classifies an operation for role checks.
type OpKind int

const (
	OpRead OpKind = iota
	OpMutate
	OpDelete
)

var rolesByOp = map[OpKind]map[string]bool{
	OpRead:   {"admin": true, "member": true, "agent": true, "viewer": true},
	OpMutate: {"admin": true, "member": true, "agent": true},
	OpDelete: {"admin": true, "member": true},
}

// normalizeRole strips the optional provider prefix, so "org:admin" and
// "admin" compare equal.
func normalizeRole(role string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(role)), "org:")
}

// ResolveOwners returns the owner ids the principal may act on for the
// given operation kind: their own email plus every organization where
// their role permits the operation.
func ResolveOwners(profile *types.V1UserProfile, op OpKind) []string {
	owners := []string{profile.Email}
	allowed := rolesByOp[op]
	for orgID, orgRole := range profile.Organizations {
		if allowed[normalizeRole(orgRole.Role)] {
			owners = append(owners, orgID)
		}
	}
	return owners
}

// CheckOwnerScope validates an explicit owners filter against the
// principal's resolved set. An owner outside the set is forbidden.
func CheckOwnerScope(requested, resolved []string) error {
	allowed := make(map[string]bool, len(resolved))
	for _, o := range resolved {
		allowed[o] = true
	}
	for _, o := range requested {
		if !allowed[o] {
			return errs.Forbidden("owner %s is outside your scope", o)
		}
	}
	return nil
}

// Verifier resolves a bearer token to a user profile.
type Verifier interface {
	Verify(ctx context.Context, token string) (*types.V1UserProfile, error)
}

// HubVerifier checks tokens against the agentsea auth service.
type HubVerifier struct {
	authURL string
	client  *http.Client
	logger  logging.Logger
}

// NewHubVerifier builds a verifier against the given auth base URL.
func NewHubVerifier(authURL string) *HubVerifier {
	return &HubVerifier{
		authURL: strings.TrimRight(authURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logging.NewComponentLogger("Auth"),
	}
}

// Verify resolves a bearer token to the hub user profile.
func (v *HubVerifier) Verify(ctx context.Context, token string) (*types.V1UserProfile, error) {
	if token == "" {
		return nil, errs.Unauthorized("missing bearer token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.authURL+"/v1/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnauthorized, err, "auth service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Debug("token rejected by auth service: %d", resp.StatusCode)
		return nil, errs.Unauthorized("invalid token")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.Wrap(errs.KindUnauthorized, err, "read auth response")
	}
	var profile types.V1UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, errs.Wrap(errs.KindUnauthorized, err, "decode auth response")
	}
	if profile.Email == "" {
		return nil, errs.Unauthorized("auth response missing email")
	}
	profile.Token = token
	return &profile, nil
}

// NoAuthVerifier accepts every request as a fixed local user. Used when
// the server runs with auth disabled.
type NoAuthVerifier struct{}

// Verify returns the synthetic local user regardless of token.
func (NoAuthVerifier) Verify(ctx context.Context, token string) (*types.V1UserProfile, error) {
	return &types.V1UserProfile{
		Email:       "tom@myspace.com",
		DisplayName: "Tom",
		Handle:      "tom",
		Token:       token,
	}, nil
}
