package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvmigrate/core/internal/record"
)

// defaultRetryAfter is used when a throttle signal carries no explicit
// interval.
const defaultRetryAfter = 30 * time.Second

// HTTPSource is the default ConnectionSource: it authenticates once per
// Connect call and hands back an HTTPClient that speaks the bulk protocol
// over net/http. Its Retry-After parsing is not CRM-specific. Each
// Execute sends one request; retries and backoff are left to the caller.
type HTTPSource struct {
	connectionName string
	baseURL        string
	tokenProvider  func(ctx context.Context) (string, error)
	httpClient     *http.Client

	invalidated bool
}

// NewHTTPSource builds a ConnectionSource for one named connection.
func NewHTTPSource(name, baseURL string, tokenProvider func(ctx context.Context) (string, error)) *HTTPSource {
	return &HTTPSource{
		connectionName: name,
		baseURL:        baseURL,
		tokenProvider:  tokenProvider,
		httpClient:     &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *HTTPSource) Name() string { return s.connectionName }

// InvalidateAuth marks the source as invalidated. It does not clear the
// token provider's cache, so the next Connect uses whatever token the
// provider returns.
func (s *HTTPSource) InvalidateAuth() { s.invalidated = true }

func (s *HTTPSource) Connect(ctx context.Context) (Client, error) {
	token, err := s.tokenProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate %s: %w", s.connectionName, err)
	}
	s.invalidated = false
	return &HTTPClient{
		connectionName: s.connectionName,
		baseURL:        s.baseURL,
		token:          token,
		httpClient:     s.httpClient,
	}, nil
}

// HTTPClient is a live, authenticated connection produced by HTTPSource.
type HTTPClient struct {
	connectionName string
	baseURL        string
	token          string
	httpClient     *http.Client

	// RecommendedParallelism holds a per-connection parallelism hint.
	// Connect leaves it at zero and nothing in this package updates it
	// from server responses; internal/pool does not read it.
	RecommendedParallelism int
}

// wireRequest/wireResponse are the JSON envelopes exchanged with the
// target's bulk endpoint. The shape is intentionally generic — this spec
// never assumes a specific vendor's OData dialect, only that requests
// carry records+bypass flags and responses carry per-record outcomes or a
// fault.
type wireRequest struct {
	Operation string         `json:"operation"`
	Entity    string         `json:"entity"`
	Records   []wireRecord   `json:"records,omitempty"`
	IDs       []string       `json:"ids,omitempty"`
	Associate *wireAssociate `json:"associate,omitempty"`
	Bypass    wireBypass     `json:"bypass"`
}

type wireRecord struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

type wireAssociate struct {
	SourceEntity string   `json:"sourceEntity"`
	SourceID     string   `json:"sourceId"`
	Relationship string   `json:"relationship"`
	TargetEntity string   `json:"targetEntity"`
	TargetIDs    []string `json:"targetIds"`
}

// wireBypass is emitted with the server's own parameter names, not this
// package's internal ones: BypassBusinessLogicExecution is the
// comma-joined form of the CustomSync/CustomAsync tokens, required
// verbatim for the target to honour the bypass.
type wireBypass struct {
	BypassBusinessLogicExecution            string `json:"BypassBusinessLogicExecution,omitempty"`
	SuppressCallbackRegistrationExpanderJob bool   `json:"SuppressCallbackRegistrationExpanderJob,omitempty"`
	SuppressDuplicateDetection              bool   `json:"SuppressDuplicateDetection,omitempty"`
	Tag                                     string `json:"tag,omitempty"`
}

// bypassBusinessLogicString renders a BypassFlag bitmap as the
// comma-joined CustomSync/CustomAsync token list the target expects.
func bypassBusinessLogicString(f BypassFlag) string {
	var tokens []string
	if f&BypassSync != 0 {
		tokens = append(tokens, "CustomSync")
	}
	if f&BypassAsync != 0 {
		tokens = append(tokens, "CustomAsync")
	}
	return strings.Join(tokens, ",")
}

type wireResponse struct {
	Successes  []RecordOutcome `json:"successes"`
	Failures   []RecordOutcome `json:"failures"`
	CreatedID  string          `json:"createdId"`
	RetryAfter any             `json:"retryAfter"` // interval, int seconds, or float seconds
	ErrorCode  string          `json:"errorCode"`
	Fault      *wireFault      `json:"fault"`
}

type wireFault struct {
	Message    string         `json:"message"`
	Code       string         `json:"code"`
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details"`
}

func (c *HTTPClient) Execute(ctx context.Context, req Request) (Response, error) {
	body := toWireRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bulk", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 529 {
		return Response{Throttle: &ThrottleSignal{RetryAfter: retryAfterFrom(resp.Header.Get("Retry-After")), ErrorCode: "throttle"}}, nil
	}

	var wr wireResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &wr); err != nil {
			return Response{}, fmt.Errorf("parse response: %w", err)
		}
	}

	out := Response{
		Successes: wr.Successes,
		Failures:  wr.Failures,
		CreatedID: wr.CreatedID,
	}
	if wr.Fault != nil {
		out.Fault = &Fault{
			Message:    wr.Fault.Message,
			Code:       wr.Fault.Code,
			StatusCode: wr.Fault.StatusCode,
			Details:    wr.Fault.Details,
		}
	}
	if retryAfter, ok := parseRetryAfterPayload(wr.RetryAfter); ok {
		out.Throttle = &ThrottleSignal{RetryAfter: retryAfter, ErrorCode: wr.ErrorCode}
	}
	return out, nil
}

func retryAfterFrom(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

// parseRetryAfterPayload accepts three payload shapes: a string holding
// either a Go duration ("3s", "1m30s") or a decimal seconds count, an
// integer seconds count, or a floating seconds count.
func parseRetryAfterPayload(v any) (time.Duration, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return time.Duration(t * float64(time.Second)), true
	case int:
		return time.Duration(t) * time.Second, true
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d, true
		}
		if secs, err := strconv.ParseFloat(t, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}

func toWireRequest(req Request) wireRequest {
	w := wireRequest{
		Operation: req.Operation.String(),
		Entity:    req.Entity,
		IDs:       req.IDs,
		Bypass: wireBypass{
			BypassBusinessLogicExecution:            bypassBusinessLogicString(req.Bypass.CustomLogic),
			SuppressCallbackRegistrationExpanderJob: req.Bypass.SuppressPowerAutomateFlows,
			SuppressDuplicateDetection:              req.Bypass.SuppressDuplicateDetection,
			Tag:                                     req.Bypass.Tag,
		},
	}
	for _, r := range req.Records {
		wr := wireRecord{ID: r.ID, Attributes: make(map[string]any, r.Len())}
		r.Each(func(name string, v record.Value) {
			wr.Attributes[name] = wireValue(v)
		})
		w.Records = append(w.Records, wr)
	}
	if req.Associate != nil {
		var targetEntity string
		targetIDs := make([]string, 0, len(req.Associate.Targets))
		for _, t := range req.Associate.Targets {
			targetEntity = t.Entity
			targetIDs = append(targetIDs, t.ID)
		}
		w.Associate = &wireAssociate{
			SourceEntity: req.Associate.Source.Entity,
			SourceID:     req.Associate.Source.ID,
			Relationship: req.Associate.Relationship,
			TargetEntity: targetEntity,
			TargetIDs:    targetIDs,
		}
	}
	return w
}

// wireValue reduces a tagged record.Value into a plain JSON-able value.
func wireValue(v record.Value) any {
	switch v.Kind {
	case record.KindString, record.KindInstant:
		return v.Str
	case record.KindNumber, record.KindDecimal, record.KindMoney:
		return v.Num
	case record.KindBool:
		return v.Bool
	case record.KindOptionCode:
		return v.Code
	case record.KindReference:
		return map[string]string{"entity": v.Ref.Entity, "id": v.Ref.ID}
	default:
		return nil
	}
}
