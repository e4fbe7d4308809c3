package bulk

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/pool"
	"github.com/dvmigrate/core/internal/record"
)

const (
	maxThrottlePreflightAttempts = 10
	maxHandleRetries             = 3
	poolExhaustedBackoffCap      = 32 * time.Second
)

// boundedBackoff returns a fresh exponential backoff capped at
// maxHandleRetries retries, for the bounded retry classes (auth token,
// connection, bulk-infra-race, deadlock). Pool exhaustion and throttle
// are unbounded and use the hand-rolled poolExhaustedDelay/wait below
// instead, since backoff.Retry has no "retry forever but observe ctx"
// primitive cleaner than a manual select.
func boundedBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 4 * time.Second
	return backoff.WithMaxRetries(bo, maxHandleRetries)
}

// executeBatchWithThrottleHandling runs one batch end to end: draw a
// coordinator slot and a pool handle, pre-flight the handle's connection
// for an active throttle, execute, and route the outcome through the
// error taxonomy below. It is the only retry loop in the package; every
// branch either returns a terminal BulkResult or loops back to the top
// after its own wait.
func (e *Executor) executeBatchWithThrottleHandling(ctx context.Context, entity string, op client.Operation, batch []*record.Record, bypass client.BypassOptions) *BulkResult {
	poolExhaustedAttempt := 0
	authConnBackoff := boundedBackoff()
	infraBackoff := boundedBackoff()

	for {
		if ctx.Err() != nil {
			return &BulkResult{}
		}

		slot, err := e.Coordinator.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return &BulkResult{}
			}
			return allFailed(entity, batch, err.Error())
		}

		handle, err := e.Pool.Acquire(ctx)
		if err != nil {
			slot.Release()
			if ctx.Err() != nil {
				return &BulkResult{}
			}
			wait(ctx, poolExhaustedDelay(poolExhaustedAttempt))
			poolExhaustedAttempt++
			recordRetry(ctx)
			continue
		}

		handle, err = e.preflightThrottleGuard(ctx, handle)
		if err != nil {
			slot.Release()
			if ctx.Err() != nil {
				return &BulkResult{}
			}
			wait(ctx, poolExhaustedDelay(poolExhaustedAttempt))
			poolExhaustedAttempt++
			recordRetry(ctx)
			continue
		}

		req := buildRequest(op, entity, batch, bypass)
		resp, execErr := handle.Execute(ctx, req)

		if execErr == nil && resp.Throttle == nil {
			handle.Release()
			slot.Release()
			if isBulkNotSupportedFault(resp.Fault) {
				e.markNotSupported(entity)
				return e.runPerRecord(ctx, entity, op, batch, bypass)
			}
			return e.decodeResponse(entity, batch, resp)
		}

		if resp.Throttle != nil {
			handle.Release()
			slot.Release()
			wait(ctx, resp.Throttle.RetryAfter)
			recordRetry(ctx)
			continue
		}

		fault := responseFault(resp)
		kind := client.Classify(execErr, fault)

		switch kind {
		case client.KindAuthToken:
			handle.MarkInvalid("auth token failure")
			handle.InvalidateSourceAuth()
			handle.Release()
			slot.Release()
			d := authConnBackoff.NextBackOff()
			if d == backoff.Stop {
				return allFailed(entity, batch, (&client.DataverseConnectionError{
					ConnectionName: handle.ConnectionName(), Cause: execErr,
				}).Error())
			}
			wait(ctx, d)
			recordRetry(ctx)
			continue

		case client.KindAuthPrivilege:
			handle.Release()
			slot.Release()
			return allFailed(entity, batch, faultOrErrMessage(execErr, fault))

		case client.KindConnection:
			handle.MarkInvalid("connection failure")
			handle.Release()
			slot.Release()
			d := authConnBackoff.NextBackOff()
			if d == backoff.Stop {
				return allFailed(entity, batch, (&client.DataverseConnectionError{
					ConnectionName: handle.ConnectionName(), Cause: execErr,
				}).Error())
			}
			wait(ctx, d)
			recordRetry(ctx)
			continue

		case client.KindBulkInfraRace, client.KindDeadlock:
			handle.Release()
			slot.Release()
			d := infraBackoff.NextBackOff()
			if d == backoff.Stop {
				return allFailed(entity, batch, faultOrErrMessage(execErr, fault))
			}
			wait(ctx, d)
			recordRetry(ctx)
			continue

		case client.KindCancelled:
			handle.Release()
			slot.Release()
			return &BulkResult{}

		default:
			if isPoolExhaustedSignal(execErr) {
				handle.Release()
				slot.Release()
				wait(ctx, poolExhaustedDelay(poolExhaustedAttempt))
				poolExhaustedAttempt++
				recordRetry(ctx)
				continue
			}
			if isBulkNotSupportedFault(fault) {
				handle.Release()
				slot.Release()
				e.markNotSupported(entity)
				return e.runPerRecord(ctx, entity, op, batch, bypass)
			}
			handle.Release()
			slot.Release()
			return allFailed(entity, batch, faultOrErrMessage(execErr, fault))
		}
	}
}

// preflightThrottleGuard gives the batch a bounded number of chances to
// land on a connection that isn't currently throttled: if handle's
// connection is throttled, release it and draw a fresh one from the pool,
// which may round-robin onto a different connection. It gives up after
// maxThrottlePreflightAttempts and returns whatever handle it last drew,
// still throttled or not, so the batch proceeds anyway — a mid-flight
// throttle signal from the call itself is still handled by the caller.
func (e *Executor) preflightThrottleGuard(ctx context.Context, handle *pool.Handle) (*pool.Handle, error) {
	for attempt := 0; attempt < maxThrottlePreflightAttempts; attempt++ {
		if !e.Pool.Throttle().IsThrottled(handle.ConnectionName()) {
			return handle, nil
		}
		if ctx.Err() != nil {
			return handle, nil
		}
		handle.Release()
		wait(ctx, 200*time.Millisecond)
		next, err := e.Pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		handle = next
	}
	return handle, nil
}

func poolExhaustedDelay(attempt int) time.Duration {
	d := time.Duration(float64(time.Second) * math.Pow(2, float64(attempt)))
	if d > poolExhaustedBackoffCap {
		d = poolExhaustedBackoffCap
	}
	return d
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
