package pluginsteps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStepSource struct {
	active      []string
	activeErr   error
	setStateErr error
	lastSetIDs  []string
	lastEnabled bool
	setCalls    int
}

func (f *fakeStepSource) ActiveSteps(ctx context.Context, objectTypeCodes []int) ([]string, error) {
	return f.active, f.activeErr
}

func (f *fakeStepSource) SetState(ctx context.Context, stepIDs []string, enabled bool) error {
	f.setCalls++
	f.lastSetIDs = stepIDs
	f.lastEnabled = enabled
	return f.setStateErr
}

func TestDisableSkipsEmptyObjectTypeCodes(t *testing.T) {
	src := &fakeStepSource{}
	m := NewManager(src)
	require.NoError(t, m.Disable(context.Background(), nil))
	assert.Equal(t, 0, src.setCalls)
}

func TestDisableSkipsWhenNoActiveSteps(t *testing.T) {
	src := &fakeStepSource{active: nil}
	m := NewManager(src)
	require.NoError(t, m.Disable(context.Background(), []int{1}))
	assert.Equal(t, 0, src.setCalls)
}

func TestDisableTurnsOffActiveStepsAndRemembersThem(t *testing.T) {
	src := &fakeStepSource{active: []string{"S1", "S2"}}
	m := NewManager(src)

	require.NoError(t, m.Disable(context.Background(), []int{1}))
	assert.Equal(t, 1, src.setCalls)
	assert.Equal(t, []string{"S1", "S2"}, src.lastSetIDs)
	assert.False(t, src.lastEnabled)
}

func TestDisablePropagatesListError(t *testing.T) {
	src := &fakeStepSource{activeErr: errors.New("boom")}
	m := NewManager(src)
	assert.Error(t, m.Disable(context.Background(), []int{1}))
}

func TestDisablePropagatesSetStateError(t *testing.T) {
	src := &fakeStepSource{active: []string{"S1"}, setStateErr: errors.New("boom")}
	m := NewManager(src)
	assert.Error(t, m.Disable(context.Background(), []int{1}))
}

func TestEnableRestoresPreviouslyDisabledSteps(t *testing.T) {
	src := &fakeStepSource{active: []string{"S1", "S2"}}
	m := NewManager(src)
	require.NoError(t, m.Disable(context.Background(), []int{1}))

	require.NoError(t, m.Enable(context.Background()))
	assert.Equal(t, 2, src.setCalls)
	assert.Equal(t, []string{"S1", "S2"}, src.lastSetIDs)
	assert.True(t, src.lastEnabled)
}

func TestEnableIsNoOpWhenNothingWasDisabled(t *testing.T) {
	src := &fakeStepSource{}
	m := NewManager(src)
	require.NoError(t, m.Enable(context.Background()))
	assert.Equal(t, 0, src.setCalls)
}

func TestEnableIsIdempotentAfterFirstCall(t *testing.T) {
	src := &fakeStepSource{active: []string{"S1"}}
	m := NewManager(src)
	require.NoError(t, m.Disable(context.Background(), []int{1}))
	require.NoError(t, m.Enable(context.Background()))

	src.setCalls = 0
	require.NoError(t, m.Enable(context.Background()))
	assert.Equal(t, 0, src.setCalls, "a second Enable must not resend steps already restored")
}
