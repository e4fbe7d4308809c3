package pool

import (
	"context"

	"github.com/dvmigrate/core/internal/client"
)

// Handle is a scoped, single-acquirer lease on one authenticated
// connection. Callers must Release it on
// every exit path — returned to the idle set if still valid, discarded
// otherwise.
type Handle struct {
	connectionName string
	displayName    string
	client         client.Client
	source         client.ConnectionSource
	pool           *Pool
	parallelism    int
	invalid        bool
	invalidReason  string
}

// ConnectionName identifies which underlying connection this handle uses.
func (h *Handle) ConnectionName() string { return h.connectionName }

// DisplayName is a human-facing label for logs.
func (h *Handle) DisplayName() string { return h.displayName }

// MarkInvalid flags the handle so Release discards it instead of
// returning it to the idle set.
func (h *Handle) MarkInvalid(reason string) {
	h.invalid = true
	h.invalidReason = reason
}

// Invalid reports whether MarkInvalid was called.
func (h *Handle) Invalid() bool { return h.invalid }

// InvalidateSourceAuth discards the cached authentication seed on this
// handle's underlying connection source, forcing the next Connect to
// re-authenticate from scratch. Used after a token-expiry failure so a
// retried acquire doesn't immediately fail the same way.
func (h *Handle) InvalidateSourceAuth() {
	h.source.InvalidateAuth()
}

// Release returns the handle to its pool. Every Acquire must be matched
// by exactly one Release.
func (h *Handle) Release() {
	h.pool.release(h)
}

// Execute forwards request to the underlying client, then reports the
// outcome to the pool's throttle tracker: a throttle signal
// records a new notBefore for this connection; its absence clears any
// stale entry.
func (h *Handle) Execute(ctx context.Context, req client.Request) (client.Response, error) {
	resp, err := h.client.Execute(ctx, req)
	if err != nil {
		return resp, err
	}
	if resp.Throttle != nil {
		h.pool.throttle.Record(h.connectionName, resp.Throttle.RetryAfter)
	} else {
		h.pool.throttle.Clear(h.connectionName)
	}
	return resp, nil
}
