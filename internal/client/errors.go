package client

import (
	"errors"
	"strings"
)

// ErrorKind classifies a server-side failure into a retry policy. It is
// produced by Classify by inspecting the error text and any structured
// fault the transport attached, never by type-asserting on a concrete
// exception type.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindThrottle
	KindAuthToken
	KindAuthPrivilege
	KindConnection
	KindBulkInfraRace
	KindDeadlock
	KindDuplicateKey
	KindCancelled
)

// Recognised server error codes.
const (
	codeAuthPrivilege1 = "-2147180286"
	codeAuthPrivilege2 = "-2147204720"
	codeAuthPrivilege3 = "-2147180285"
	codeSQLWrapper     = "0x80044150"
	codeDuplicateKey   = "0x80040237"
)

var sqlWrapperSubcodes = []string{"3732", "2766", "2812", "1205"}

// DataverseConnectionError is surfaced after a bounded auth or connection
// retry is exhausted.
type DataverseConnectionError struct {
	ConnectionName string
	Cause          error
}

func (e *DataverseConnectionError) Error() string {
	return "connection " + e.ConnectionName + " failed: " + e.Cause.Error()
}

func (e *DataverseConnectionError) Unwrap() error { return e.Cause }

// Classify inspects a Fault (if any) and the raw error text to decide
// which retry policy applies.
func Classify(err error, fault *Fault) ErrorKind {
	if errors.Is(err, errCancelled) {
		return KindCancelled
	}

	var msg, code string
	if fault != nil {
		msg = fault.Message
		code = fault.Code
	} else if err != nil {
		msg = err.Error()
	}
	lower := strings.ToLower(msg)

	switch code {
	case codeAuthPrivilege1, codeAuthPrivilege2, codeAuthPrivilege3:
		return KindAuthPrivilege
	case codeDuplicateKey:
		return KindDuplicateKey
	case codeSQLWrapper:
		for _, sub := range sqlWrapperSubcodes {
			if strings.Contains(msg, sub) {
				return KindBulkInfraRace
			}
		}
	}

	if strings.Contains(lower, "duplicate key") {
		return KindDuplicateKey
	}
	if strings.Contains(lower, "deadlock") {
		return KindDeadlock
	}
	if strings.Contains(lower, "token") && (strings.Contains(lower, "expired") || strings.Contains(lower, "invalid")) {
		return KindAuthToken
	}
	if strings.Contains(lower, "unauthorized") || strings.Contains(lower, "unauthenticated") {
		return KindAuthToken
	}
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "i/o timeout") {
		return KindConnection
	}
	return KindUnknown
}

var errCancelled = errors.New("migration: cancelled")

// IsBulkNotSupported reports whether msg is the server's "this entity does
// not accept the multi-record API" signal.
func IsBulkNotSupported(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "is not enabled on the entity") ||
		strings.Contains(lower, "does not support entities of type")
}
