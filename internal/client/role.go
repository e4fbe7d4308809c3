package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPRoleResolver answers whether a security role id exists directly on
// the target, used as the relationship processor's cross-tenant
// role-lookup fallback. It satisfies internal/relate.RoleResolver.
type HTTPRoleResolver struct {
	baseURL       string
	tokenProvider func(ctx context.Context) (string, error)
	httpClient    *http.Client
}

// NewHTTPRoleResolver builds a role resolver against baseURL.
func NewHTTPRoleResolver(baseURL string, tokenProvider func(ctx context.Context) (string, error)) *HTTPRoleResolver {
	return &HTTPRoleResolver{
		baseURL:       baseURL,
		tokenProvider: tokenProvider,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// RoleExists performs a lightweight existence check against
// baseURL + "/role/{id}".
func (r *HTTPRoleResolver) RoleExists(ctx context.Context, id string) (bool, error) {
	token, err := r.tokenProvider(ctx)
	if err != nil {
		return false, fmt.Errorf("authenticate for role lookup: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.baseURL+"/role/"+id, nil)
	if err != nil {
		return false, fmt.Errorf("build role lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("role lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("role lookup for %s: status %d", id, resp.StatusCode)
	}
}
