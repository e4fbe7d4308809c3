// Package bulk batches record lists, dispatches batches under the batch
// coordinator, decodes partial-success faults, and implements the error
// retry taxonomy in retry.go.
package bulk

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/coordinator"
	"github.com/dvmigrate/core/internal/pool"
	"github.com/dvmigrate/core/internal/record"
)

// DefaultBatchSize is the number of records per bulk request when the
// caller doesn't specify one.
const DefaultBatchSize = 100

// Executor batches bulk requests, coordinates their dispatch, and falls
// back to per-record execution for entities the target doesn't accept in
// bulk. One Executor is scoped to a single import.
type Executor struct {
	Pool        *pool.Pool
	Coordinator *coordinator.Coordinator
	BatchSize   int
	Elastic     map[string]bool // entities that decode Plugin.BulkApiErrorDetails

	mu           sync.Mutex
	notSupported map[string]bool
}

// NewExecutor builds an executor. batchSize <= 0 uses DefaultBatchSize.
func NewExecutor(p *pool.Pool, c *coordinator.Coordinator, batchSize int) *Executor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Executor{
		Pool:         p,
		Coordinator:  c,
		BatchSize:    batchSize,
		Elastic:      make(map[string]bool),
		notSupported: make(map[string]bool),
	}
}

// BulkResult is the outcome of one bulk operation.
type BulkResult struct {
	Success      int
	Failure      int
	Errors       []*record.MigrationError
	CreatedIDs   []string
	CreatedCount int
	UpdatedCount int
	Duration     time.Duration
}

func (r *BulkResult) merge(other *BulkResult) {
	r.Success += other.Success
	r.Failure += other.Failure
	r.Errors = append(r.Errors, other.Errors...)
	r.CreatedIDs = append(r.CreatedIDs, other.CreatedIDs...)
	r.CreatedCount += other.CreatedCount
	r.UpdatedCount += other.UpdatedCount
}

// IsBulkNotSupported reports whether entity was previously detected as
// not accepting the multi-record API.
func (e *Executor) IsBulkNotSupported(entity string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notSupported[entity]
}

func (e *Executor) markNotSupported(entity string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notSupported[entity] = true
}

// ForcePerRecord permanently routes entity through the per-record path,
// used when a caller disables bulk APIs outright rather than waiting for
// the executor to probe and detect it.
func (e *Executor) ForcePerRecord(entity string) {
	e.markNotSupported(entity)
}

// CreateMultiple creates every record in records, batched and retried.
func (e *Executor) CreateMultiple(ctx context.Context, entity string, records []*record.Record, bypass client.BypassOptions) (*BulkResult, error) {
	return e.run(ctx, entity, client.OpCreate, records, nil, bypass)
}

// UpdateMultiple updates every record in records, batched and retried.
func (e *Executor) UpdateMultiple(ctx context.Context, entity string, records []*record.Record, bypass client.BypassOptions) (*BulkResult, error) {
	return e.run(ctx, entity, client.OpUpdate, records, nil, bypass)
}

// UpsertMultiple upserts every record in records, batched and retried.
func (e *Executor) UpsertMultiple(ctx context.Context, entity string, records []*record.Record, bypass client.BypassOptions) (*BulkResult, error) {
	return e.run(ctx, entity, client.OpUpsert, records, nil, bypass)
}

// DeleteMultiple deletes the records named by ids, batched and retried.
func (e *Executor) DeleteMultiple(ctx context.Context, entity string, ids []string, bypass client.BypassOptions) (*BulkResult, error) {
	records := make([]*record.Record, len(ids))
	for i, id := range ids {
		records[i] = record.NewRecord(entity, id)
	}
	return e.run(ctx, entity, client.OpDelete, records, ids, bypass)
}

// effectiveParallelism caps batch concurrency at min(cpuCount*4,
// pool.RecommendedTotalParallelism()), floored at 1.
func (e *Executor) effectiveParallelism() int {
	fromPool := e.Pool.RecommendedTotalParallelism()
	if fromPool < 1 {
		fromPool = 1
	}
	cap := runtime.NumCPU() * 4
	if fromPool < cap {
		return fromPool
	}
	return cap
}

func (e *Executor) run(ctx context.Context, entity string, op client.Operation, records []*record.Record, ids []string, bypass client.BypassOptions) (*BulkResult, error) {
	start := time.Now()
	if e.IsBulkNotSupported(entity) {
		res := e.runPerRecord(ctx, entity, op, records, bypass)
		res.Duration = time.Since(start)
		return res, nil
	}

	batches := chunkRecords(records, e.BatchSize)
	parallelism := e.effectiveParallelism()

	var result BulkResult
	if len(batches) <= 1 || parallelism <= 1 {
		for _, b := range batches {
			r := e.executeBatchInstrumented(ctx, entity, op, b, bypass)
			result.merge(r)
		}
	} else {
		result = e.runBatchesParallel(ctx, entity, op, batches, bypass, parallelism)
	}

	result.Duration = time.Since(start)
	return &result, nil
}

// runBatchesParallel fans batches out across up to parallelism concurrent
// goroutines. A batch never fails the group — executeBatchWithThrottleHandling
// already turns every terminal outcome into a BulkResult rather than an
// error — so the errgroup here is just a bounded, wait-all fan-out, not a
// fail-fast one.
func (e *Executor) runBatchesParallel(ctx context.Context, entity string, op client.Operation, batches [][]*record.Record, bypass client.BypassOptions, parallelism int) BulkResult {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var mu sync.Mutex
	var result BulkResult

	for _, b := range batches {
		b := b
		g.Go(func() error {
			r := e.executeBatchInstrumented(gctx, entity, op, b, bypass)
			mu.Lock()
			result.merge(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// executeBatchInstrumented runs one batch and records its duration and
// succeeded/failed outcome against the package's OTel instruments.
func (e *Executor) executeBatchInstrumented(ctx context.Context, entity string, op client.Operation, batch []*record.Record, bypass client.BypassOptions) *BulkResult {
	start := time.Now()
	r := e.executeBatchWithThrottleHandling(ctx, entity, op, batch, bypass)
	bulkMetrics.batchDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if r.Failure == 0 {
		bulkMetrics.batchSucceeded.Add(ctx, 1)
	} else {
		bulkMetrics.batchFailed.Add(ctx, 1)
	}
	return r
}

func chunkRecords(records []*record.Record, size int) [][]*record.Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return record.Chunk(records, size)
}
