package entity

import "context"

// Phase is a lifecycle point reported by the data context.
type Phase string

const (
	AddPreCommit    Phase = "add.pre_commit"
	AddCommitted    Phase = "add.committed"
	UpdatePreCommit Phase = "update.pre_commit"
	UpdateCommitted Phase = "update.committed"
	DeletePreCommit Phase = "delete.pre_commit"
	DeleteCommitted Phase = "delete.committed"
)

// Hook is a function that runs at a specific lifecycle point.
type Hook func(ctx context.Context) error

// Hooks stores lifecycle hooks for one aggregate instance.
// A nil *Hooks runs nothing.
type Hooks struct {
	hooks map[Phase][]Hook
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[Phase][]Hook)}
}

// On registers a hook for the specified phase.
func (h *Hooks) On(phase Phase, hook Hook) {
	h.hooks[phase] = append(h.hooks[phase], hook)
}

// Run executes all hooks for the phase, stopping at the first error.
func (h *Hooks) Run(ctx context.Context, phase Phase) error {
	if h == nil {
		return nil
	}
	for _, hook := range h.hooks[phase] {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}
