// Package client defines the wire-level contract between the migration
// engine and the target tenant's service: the polymorphic request/response
// shapes, the bypass flags every bulk call must carry, and the
// ConnectionSource abstraction the connection pool (internal/pool) uses to
// mint authenticated clients. Authentication itself — including
// interactive/device-code flows — is outside this package's scope;
// ConnectionSource only promises a fresh, already-authenticated Client.
package client

import (
	"context"
	"time"

	"github.com/dvmigrate/core/internal/record"
)

// Operation names the bulk verb a Request performs.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
	OpUpsert
	OpDelete
	OpAssociate
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "Create"
	case OpUpdate:
		return "Update"
	case OpUpsert:
		return "Upsert"
	case OpDelete:
		return "Delete"
	case OpAssociate:
		return "Associate"
	default:
		return "Unknown"
	}
}

// BypassFlag is a bitmap of custom-logic bypass targets, matching the
// server's `BypassBusinessLogicExecution` comma-joined parameter.
type BypassFlag int

const (
	BypassNone BypassFlag = 0
	BypassSync BypassFlag = 1 << iota
	BypassAsync
)

const BypassAll = BypassSync | BypassAsync

// BypassOptions carries the per-request bypass/diagnostic flags that must
// be emitted verbatim on every batch request.
type BypassOptions struct {
	CustomLogic                BypassFlag
	SuppressPowerAutomateFlows bool
	SuppressDuplicateDetection bool
	Tag                        string
}

// ParamKind tags a ParamValue's variant.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
	ParamBool
	ParamReference
	ParamRecordList
	ParamRefList
)

// ParamValue is one entry of a Request's extensible parameter bag.
type ParamValue struct {
	Kind    ParamKind
	Str     string
	Int     int
	Bool    bool
	Ref     record.Reference
	Records []*record.Record
	Refs    []record.Reference
}

// Request is one unit of work sent to the target tenant: either a batch of
// records (create/update/upsert), a batch of identifiers (delete), or a
// single association (associate).
type Request struct {
	Operation Operation
	Entity    string
	Records   []*record.Record
	IDs       []string
	Associate *AssociateRequest
	Bypass    BypassOptions
	Params    map[string]ParamValue
}

// AssociateRequest materialises one many-to-many link.
type AssociateRequest struct {
	Source       record.Reference
	Relationship string
	Targets      []record.Reference
}

// RecordOutcome is the per-record result of a batch call.
type RecordOutcome struct {
	Index      int    `json:"requestIndex"`
	ID         string `json:"id,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ThrottleSignal is the server's "slow down" response.
type ThrottleSignal struct {
	RetryAfter time.Duration
	ErrorCode  string
}

// Fault is a whole-batch error payload. Elastic entities may carry
// per-record detail inside Details under the
// "Plugin.BulkApiErrorDetails" key.
type Fault struct {
	Message    string
	Code       string
	StatusCode int
	Details    map[string]any
}

// Response is the result of executing a Request.
type Response struct {
	Successes []RecordOutcome
	Failures  []RecordOutcome
	CreatedID string // set for single-record creates
	Fault     *Fault
	Throttle  *ThrottleSignal
}

// Client is a single authenticated connection to the target tenant.
type Client interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// ConnectionSource mints a fresh authenticated Client on demand. Token
// refresh and interactive auth are the source's responsibility.
type ConnectionSource interface {
	Name() string
	Connect(ctx context.Context) (Client, error)
	// InvalidateAuth discards any cached authentication seed, forcing the
	// next Connect to re-authenticate from scratch. Used when the bulk
	// executor detects a token failure.
	InvalidateAuth()
}
