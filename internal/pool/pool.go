// Package pool owns a set of authenticated client handles, hands them out
// under a semaphore, and publishes a recommended total parallelism that
// tracks unthrottled capacity.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/throttle"
)

// Config holds pool construction options.
type Config struct {
	MaxPoolSize      int
	AffinityDisabled bool
	MaxRetries       int
	AcquireTimeout   time.Duration
}

// DefaultConfig returns the pool's default settings.
func DefaultConfig() Config {
	return Config{
		MaxPoolSize:      52,
		AffinityDisabled: true,
		MaxRetries:       3,
		AcquireTimeout:   30 * time.Second,
	}
}

// Pool owns N authenticated client handles drawn round-robin from a fixed
// list of connection sources.
type Pool struct {
	sources  []client.ConnectionSource
	cfg      Config
	throttle *throttle.Tracker

	admission *semaphore.Weighted // capacity gate, weighted cfg.MaxPoolSize

	mu         sync.Mutex
	idle       []*Handle
	nextSource int
	active     int
}

// New builds a pool over the given connection sources. cfg.MaxPoolSize
// zero uses DefaultConfig's value.
func New(sources []client.ConnectionSource, cfg Config, tracker *throttle.Tracker) *Pool {
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = DefaultConfig().MaxPoolSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultConfig().AcquireTimeout
	}
	if tracker == nil {
		tracker = throttle.NewTracker()
	}
	return &Pool{
		sources:   sources,
		cfg:       cfg,
		throttle:  tracker,
		admission: semaphore.NewWeighted(int64(cfg.MaxPoolSize)),
	}
}

// Throttle exposes the pool's throttle tracker so the bulk executor can
// consult it for pre-flight gating.
func (p *Pool) Throttle() *throttle.Tracker { return p.throttle }

// Acquire waits until a handle is available or ctx is cancelled or the
// acquire timeout expires.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	if err := p.admission.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.mu.Lock()
		active := p.active
		p.mu.Unlock()
		return nil, &ExhaustedError{Active: active, Max: p.cfg.MaxPoolSize}
	}

	h, err := p.takeOrCreate(ctx)
	if err != nil {
		p.admission.Release(1)
		return nil, err
	}

	p.mu.Lock()
	p.active++
	p.mu.Unlock()
	return h, nil
}

func (p *Pool) takeOrCreate(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if len(p.idle) > 0 {
		h := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()
		return h, nil
	}
	if len(p.sources) == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool: no connection sources configured")
	}
	source := p.sources[p.nextSource%len(p.sources)]
	p.nextSource++
	p.mu.Unlock()

	var lastErr error
	retries := p.cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		c, err := source.Connect(ctx)
		if err == nil {
			return &Handle{
				connectionName: source.Name(),
				displayName:    source.Name(),
				client:         c,
				source:         source,
				pool:           p,
				parallelism:    1,
			}, nil
		}
		lastErr = err
	}
	return nil, &AuthFailedError{ConnectionName: source.Name(), Cause: lastErr}
}

// release returns h to the idle set unless it is flagged invalid, in
// which case the underlying client is discarded.
func (p *Pool) release(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	if !h.invalid {
		p.idle = append(p.idle, h)
	}
	p.admission.Release(1)
}

// RecommendedTotalParallelism sums a per-connection parallelism hint over
// the pool's connections, floored at 1; connections currently throttled
// contribute 0. Every handle's hint is fixed at 1 when it is created and a
// source with no idle handle also counts as 1, so the result is the
// number of unthrottled connections; no server-advertised hint is read.
func (p *Pool) RecommendedTotalParallelism() int {
	p.mu.Lock()
	handles := make([]*Handle, len(p.idle))
	copy(handles, p.idle)
	p.mu.Unlock()

	total := 0
	seen := make(map[string]bool)
	for _, h := range handles {
		if seen[h.connectionName] {
			continue
		}
		seen[h.connectionName] = true
		if p.throttle.IsThrottled(h.connectionName) {
			continue
		}
		hint := h.parallelism
		if hint < 1 {
			hint = 1
		}
		total += hint
	}
	for _, s := range p.sources {
		if seen[s.Name()] {
			continue
		}
		seen[s.Name()] = true
		if p.throttle.IsThrottled(s.Name()) {
			continue
		}
		total++
	}
	if total < 1 {
		total = 1
	}
	return total
}
