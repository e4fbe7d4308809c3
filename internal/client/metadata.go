package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dvmigrate/core/internal/record"
)

// HTTPMetadataSource fetches field-validity metadata from the same target
// endpoint HTTPClient writes to, reusing its token. It satisfies
// internal/schema.MetadataSource.
type HTTPMetadataSource struct {
	baseURL       string
	tokenProvider func(ctx context.Context) (string, error)
	httpClient    *http.Client
}

// NewHTTPMetadataSource builds a metadata source against baseURL, sharing
// the token provider the connection's HTTPSource was built with.
func NewHTTPMetadataSource(baseURL string, tokenProvider func(ctx context.Context) (string, error)) *HTTPMetadataSource {
	return &HTTPMetadataSource{
		baseURL:       baseURL,
		tokenProvider: tokenProvider,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

type wireFieldValidity struct {
	ValidForCreate bool `json:"validForCreate"`
	ValidForUpdate bool `json:"validForUpdate"`
}

type wireEntityMetadata struct {
	Found      bool                         `json:"found"`
	Attributes map[string]wireFieldValidity `json:"attributes"`
}

// FetchEntityMetadata requests one entity's attribute validity from
// baseURL + "/metadata/{entity}". A 404 is reported as ok=false rather
// than an error, matching MetadataSource's "no metadata, include
// everything" contract.
func (s *HTTPMetadataSource) FetchEntityMetadata(ctx context.Context, entity string) (record.EntityValidity, bool, error) {
	token, err := s.tokenProvider(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("authenticate for metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/metadata/"+entity, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("metadata request for %s: status %d", entity, resp.StatusCode)
	}

	var wm wireEntityMetadata
	if err := json.NewDecoder(resp.Body).Decode(&wm); err != nil {
		return nil, false, fmt.Errorf("parse metadata for %s: %w", entity, err)
	}
	if !wm.Found {
		return nil, false, nil
	}

	out := make(record.EntityValidity, len(wm.Attributes))
	for name, fv := range wm.Attributes {
		out[name] = record.FieldValidity{ValidForCreate: fv.ValidForCreate, ValidForUpdate: fv.ValidForUpdate}
	}
	return out, true, nil
}
