package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPStepSource queries and toggles plugin steps through the same target
// endpoint family as HTTPClient and HTTPMetadataSource. It satisfies
// internal/pluginsteps.StepSource.
type HTTPStepSource struct {
	baseURL       string
	tokenProvider func(ctx context.Context) (string, error)
	httpClient    *http.Client
}

// NewHTTPStepSource builds a step source against baseURL.
func NewHTTPStepSource(baseURL string, tokenProvider func(ctx context.Context) (string, error)) *HTTPStepSource {
	return &HTTPStepSource{
		baseURL:       baseURL,
		tokenProvider: tokenProvider,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

type wireStepList struct {
	StepIDs []string `json:"stepIds"`
}

// ActiveSteps lists active, non-hidden, customization-level-1 plugin
// steps registered on the given object type codes.
func (s *HTTPStepSource) ActiveSteps(ctx context.Context, objectTypeCodes []int) ([]string, error) {
	token, err := s.tokenProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate for plugin steps: %w", err)
	}

	codes := make([]string, len(objectTypeCodes))
	for i, c := range objectTypeCodes {
		codes[i] = strconv.Itoa(c)
	}
	u := s.baseURL + "/pluginsteps?objectTypeCodes=" + url.QueryEscape(strings.Join(codes, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build plugin step request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plugin step request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plugin step request: status %d", resp.StatusCode)
	}

	var wl wireStepList
	if err := json.NewDecoder(resp.Body).Decode(&wl); err != nil {
		return nil, fmt.Errorf("parse plugin step list: %w", err)
	}
	return wl.StepIDs, nil
}

type wireStepStateUpdate struct {
	StepIDs []string `json:"stepIds"`
	Enabled bool     `json:"enabled"`
}

// SetState toggles the given plugin steps on or off.
func (s *HTTPStepSource) SetState(ctx context.Context, stepIDs []string, enabled bool) error {
	if len(stepIDs) == 0 {
		return nil
	}
	token, err := s.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("authenticate for plugin steps: %w", err)
	}

	payload, err := json.Marshal(wireStepStateUpdate{StepIDs: stepIDs, Enabled: enabled})
	if err != nil {
		return fmt.Errorf("marshal plugin step update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/pluginsteps/state", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build plugin step update: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plugin step update failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("plugin step update: status %d", resp.StatusCode)
	}
	return nil
}
