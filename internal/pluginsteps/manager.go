// Package pluginsteps optionally disables server-side automation on
// nominated entity types for the lifetime of an import, re-enabling it on
// exit.
package pluginsteps

import (
	"context"
	"fmt"
)

// StepSource queries and toggles active, non-hidden, customization-level-1
// plugin steps on the target.
type StepSource interface {
	ActiveSteps(ctx context.Context, objectTypeCodes []int) ([]string, error)
	SetState(ctx context.Context, stepIDs []string, enabled bool) error
}

// Manager disables a set of steps for the duration of an import and
// remembers which ones so Enable can restore them.
type Manager struct {
	Source StepSource

	disabled []string
}

// NewManager builds a manager over source.
func NewManager(source StepSource) *Manager {
	return &Manager{Source: source}
}

// Disable looks up every active step on the given object type codes and
// turns them off. A disable failure propagates — the import has not begun
// and there is nothing to clean up yet.
func (m *Manager) Disable(ctx context.Context, objectTypeCodes []int) error {
	if len(objectTypeCodes) == 0 {
		return nil
	}
	ids, err := m.Source.ActiveSteps(ctx, objectTypeCodes)
	if err != nil {
		return fmt.Errorf("pluginsteps: list active steps: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := m.Source.SetState(ctx, ids, false); err != nil {
		return fmt.Errorf("pluginsteps: disable steps: %w", err)
	}
	m.disabled = ids
	return nil
}

// Enable restores every step this Manager disabled. It uses an
// uncancellable context (the caller should pass context.Background, not
// the import's own token) so the re-enable pass still runs after
// cancellation. A failure here is returned for the caller to log, not to
// fail the import — the import's own result is already decided.
func (m *Manager) Enable(ctx context.Context) error {
	if len(m.disabled) == 0 {
		return nil
	}
	ids := m.disabled
	m.disabled = nil
	if err := m.Source.SetState(ctx, ids, true); err != nil {
		return fmt.Errorf("pluginsteps: re-enable steps: %w", err)
	}
	return nil
}
