package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/throttle"
)

type stubClient struct{}

func (stubClient) Execute(ctx context.Context, req client.Request) (client.Response, error) {
	return client.Response{}, nil
}

type stubSource struct {
	name        string
	connectErr  error
	invalidated int
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Connect(ctx context.Context) (client.Client, error) {
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	return stubClient{}, nil
}
func (s *stubSource) InvalidateAuth() { s.invalidated++ }

func TestAcquireRoundRobinsAcrossSources(t *testing.T) {
	a := &stubSource{name: "a"}
	b := &stubSource{name: "b"}
	p := New([]client.ConnectionSource{a, b}, Config{MaxPoolSize: 4}, nil)

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, h1.ConnectionName(), h2.ConnectionName())
	h1.Release()
	h2.Release()
}

func TestAcquireReturnsAuthFailedAfterRetries(t *testing.T) {
	boom := errors.New("boom")
	a := &stubSource{name: "a", connectErr: boom}
	p := New([]client.ConnectionSource{a}, Config{MaxPoolSize: 1, MaxRetries: 2}, nil)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	var authErr *AuthFailedError
	assert.ErrorAs(t, err, &authErr)
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	a := &stubSource{name: "a"}
	p := New([]client.ConnectionSource{a}, Config{MaxPoolSize: 1, AcquireTimeout: 30 * time.Millisecond}, nil)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)

	h.Release()
}

func TestReleaseReturnsHandleToIdleForReuse(t *testing.T) {
	a := &stubSource{name: "a"}
	p := New([]client.ConnectionSource{a}, Config{MaxPoolSize: 1}, nil)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.Release()

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", h2.ConnectionName())
}

func TestMarkInvalidDiscardsHandleOnRelease(t *testing.T) {
	a := &stubSource{name: "a"}
	p := New([]client.ConnectionSource{a}, Config{MaxPoolSize: 1}, nil)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.MarkInvalid("bad token")
	h.Release()

	assert.Empty(t, p.idle)
}

func TestInvalidateSourceAuthDelegatesToSource(t *testing.T) {
	a := &stubSource{name: "a"}
	p := New([]client.ConnectionSource{a}, Config{MaxPoolSize: 1}, nil)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.InvalidateSourceAuth()
	assert.Equal(t, 1, a.invalidated)
	h.Release()
}

func TestRecommendedTotalParallelismFloorsAtOneAndSkipsThrottled(t *testing.T) {
	tracker := throttle.NewTracker()
	a := &stubSource{name: "a"}
	p := New([]client.ConnectionSource{a}, Config{MaxPoolSize: 1}, tracker)

	assert.Equal(t, 1, p.RecommendedTotalParallelism())

	tracker.Record("a", time.Minute)
	assert.Equal(t, 1, p.RecommendedTotalParallelism(), "still floors at 1 even fully throttled")
}
