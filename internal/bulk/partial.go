package bulk

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/diagnose"
	"github.com/dvmigrate/core/internal/pool"
	"github.com/dvmigrate/core/internal/record"
)

const bulkApiErrorDetailsKey = "Plugin.BulkApiErrorDetails"

// buildRequest assembles the wire-level request for one batch.
func buildRequest(op client.Operation, entity string, batch []*record.Record, bypass client.BypassOptions) client.Request {
	req := client.Request{
		Operation: op,
		Entity:    entity,
		Bypass:    bypass,
	}
	if op == client.OpDelete {
		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		req.IDs = ids
		return req
	}
	req.Records = batch
	return req
}

// allFailed builds a terminal BulkResult marking every record in batch as
// failed with the same message, used whenever a whole batch is rejected
// before or without a per-record breakdown from the server. Every failure
// this produces is non-retryable from the executor's point of view, so it
// runs the reference post-mortem and attaches any findings to the record
// they implicate.
func allFailed(entity string, batch []*record.Record, message string) *BulkResult {
	diagnosis := diagnoseByIndex(batch, message)
	errs := make([]*record.MigrationError, len(batch))
	for i, r := range batch {
		errs[i] = &record.MigrationError{Entity: entity, RecordID: r.ID, Message: message, Diagnosis: diagnosis[i]}
	}
	return &BulkResult{Failure: len(batch), Errors: errs}
}

// diagnoseByIndex runs the reference post-mortem over batch against
// errMsg and groups the resulting suggestions by the record index each
// finding implicates.
func diagnoseByIndex(batch []*record.Record, errMsg string) map[int][]string {
	findings := diagnose.Diagnose(batch, errMsg)
	if len(findings) == 0 {
		return nil
	}
	byIndex := make(map[int][]string, len(findings))
	for _, f := range findings {
		byIndex[f.RecordIndex] = append(byIndex[f.RecordIndex], f.Suggestion)
	}
	return byIndex
}

// decodeResponse turns a successful transport response into a BulkResult.
// Elastic entities may carry a mixed per-record breakdown inside
// Fault.Details even on a response the transport did not treat as an
// error; non-elastic entities treat any fault as a whole-batch failure.
func (e *Executor) decodeResponse(entity string, batch []*record.Record, resp client.Response) *BulkResult {
	result := &BulkResult{}

	if resp.Fault != nil {
		if e.Elastic[entity] {
			if details, ok := resp.Fault.Details[bulkApiErrorDetailsKey]; ok {
				return decodeElasticDetails(entity, batch, details)
			}
		}
		return allFailed(entity, batch, resp.Fault.Message)
	}

	result.Success += len(resp.Successes)
	for _, s := range resp.Successes {
		if s.ID != "" {
			result.CreatedIDs = append(result.CreatedIDs, s.ID)
			result.CreatedCount++
		}
	}
	for _, f := range resp.Failures {
		result.Failure++
		entry := &record.MigrationError{Entity: entity, Message: f.Message, StatusCode: f.StatusCode}
		if f.Index >= 0 && f.Index < len(batch) {
			entry.RecordID = batch[f.Index].ID
		} else {
			entry.RecordID = f.ID
		}
		result.Errors = append(result.Errors, entry)
	}
	return result
}

// elasticDetail is one decoded entry of a Plugin.BulkApiErrorDetails
// payload: {requestIndex, id?, statusCode, message}.
type elasticDetail struct {
	id         string
	statusCode int
	message    string
}

// decodeElasticDetails decodes the Plugin.BulkApiErrorDetails payload into
// a mixed success/failure BulkResult, attributing every batch record not
// named as a failure to success.
func decodeElasticDetails(entity string, batch []*record.Record, details any) *BulkResult {
	failedIdx := make(map[int]elasticDetail)

	switch v := details.(type) {
	case []any:
		for _, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			idx, _ := m["requestIndex"].(float64)
			failedIdx[int(idx)] = elasticDetailFromMap(m)
		}
	case map[string]any:
		for k, raw := range v {
			var idx int
			if _, err := fmt.Sscanf(k, "%d", &idx); err != nil {
				continue
			}
			switch rv := raw.(type) {
			case string:
				failedIdx[idx] = elasticDetail{message: rv}
			case map[string]any:
				failedIdx[idx] = elasticDetailFromMap(rv)
			}
		}
	}

	result := &BulkResult{}
	for i, r := range batch {
		if d, failed := failedIdx[i]; failed {
			result.Failure++
			recordID := r.ID
			if d.id != "" {
				recordID = d.id
			}
			result.Errors = append(result.Errors, &record.MigrationError{
				Entity: entity, RecordID: recordID, Message: d.message, StatusCode: d.statusCode,
			})
			continue
		}
		result.Success++
		result.CreatedIDs = append(result.CreatedIDs, r.ID)
		result.CreatedCount++
	}
	return result
}

// elasticDetailFromMap decodes one {requestIndex, id?, statusCode,
// message} entry. requestIndex is read by the caller before this runs.
func elasticDetailFromMap(m map[string]any) elasticDetail {
	id, _ := m["id"].(string)
	statusCode, _ := m["statusCode"].(float64)
	message, _ := m["message"].(string)
	return elasticDetail{id: id, statusCode: int(statusCode), message: message}
}

// responseFault returns resp's fault, or nil if it has none.
func responseFault(resp client.Response) *client.Fault { return resp.Fault }

// faultOrErrMessage prefers the structured fault's message, falling back
// to the raw transport error's text.
func faultOrErrMessage(execErr error, fault *client.Fault) string {
	if fault != nil && fault.Message != "" {
		return fault.Message
	}
	if execErr != nil {
		return execErr.Error()
	}
	return "unknown error"
}

// isPoolExhaustedSignal reports whether execErr is (or wraps) a pool
// exhaustion error raised by a nested acquire, e.g. during per-record
// fallback.
func isPoolExhaustedSignal(execErr error) bool {
	var exhausted *pool.ExhaustedError
	return errors.As(execErr, &exhausted)
}

// isBulkNotSupportedFault reports whether fault is the server's signal
// that an entity does not accept the multi-record API.
func isBulkNotSupportedFault(fault *client.Fault) bool {
	if fault == nil {
		return false
	}
	return client.IsBulkNotSupported(fault.Message)
}

// runPerRecord executes batch one record at a time against a single pool
// handle, used once an entity has been detected as not accepting the
// multi-record API.
func (e *Executor) runPerRecord(ctx context.Context, entity string, op client.Operation, batch []*record.Record, bypass client.BypassOptions) *BulkResult {
	result := &BulkResult{}
	for _, r := range batch {
		single := []*record.Record{r}
		slot, err := e.Coordinator.Acquire(ctx)
		if err != nil {
			result.merge(allFailed(entity, single, err.Error()))
			continue
		}
		handle, err := e.Pool.Acquire(ctx)
		if err != nil {
			slot.Release()
			result.merge(allFailed(entity, single, err.Error()))
			continue
		}

		req := buildRequest(op, entity, single, bypass)
		resp, execErr := handle.Execute(ctx, req)
		handle.Release()
		slot.Release()

		if execErr != nil {
			result.merge(allFailed(entity, single, execErr.Error()))
			continue
		}
		result.merge(e.decodeResponse(entity, single, resp))
	}
	return result
}
