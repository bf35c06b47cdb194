package hotswap

import "context"

// LifecycleHookEvent identifies the hook point being dispatched. Will/did
// pairs bracket each transition: the will event fires before the state
// mutates, the did event after.
type LifecycleHookEvent string

const (
	HookWillInitialize LifecycleHookEvent = "willInitialize"
	HookDidInitialize  LifecycleHookEvent = "didInitialize"
	HookWillStart      LifecycleHookEvent = "willStart"
	HookDidStart       LifecycleHookEvent = "didStart"
	HookWillPause      LifecycleHookEvent = "willPause"
	HookDidPause       LifecycleHookEvent = "didPause"
	HookWillResume     LifecycleHookEvent = "willResume"
	HookDidResume      LifecycleHookEvent = "didResume"
	HookWillStop       LifecycleHookEvent = "willStop"
	HookDidStop        LifecycleHookEvent = "didStop"
	HookWillDestroy    LifecycleHookEvent = "willDestroy"
	HookDidDestroy     LifecycleHookEvent = "didDestroy"
	HookDidFail        LifecycleHookEvent = "didFail"
)

// LifecycleHook is implemented by observers of lifecycle transitions:
// logging, metrics, dashboards. Hook errors are caught and logged by the
// manager and never fail the transition that triggered them.
type LifecycleHook interface {
	// OnLifecycleEvent is called for every hook point on every module.
	// Implementations should return quickly; the whole hook chain for a
	// transition shares one bounded wait.
	OnLifecycleEvent(ctx context.Context, event LifecycleHookEvent, moduleID string) error

	// HookID returns a unique identifier for this hook, used for
	// unregistration and log attribution.
	HookID() string
}

// FunctionalHook adapts a function to the LifecycleHook interface for quick
// hook creation without defining a struct.
type FunctionalHook struct {
	id      string
	handler func(ctx context.Context, event LifecycleHookEvent, moduleID string) error
}

// NewFunctionalHook creates a LifecycleHook backed by the provided function.
func NewFunctionalHook(id string, handler func(ctx context.Context, event LifecycleHookEvent, moduleID string) error) *FunctionalHook {
	return &FunctionalHook{id: id, handler: handler}
}

// OnLifecycleEvent implements LifecycleHook by calling the handler.
func (h *FunctionalHook) OnLifecycleEvent(ctx context.Context, event LifecycleHookEvent, moduleID string) error {
	if h.handler != nil {
		return h.handler(ctx, event, moduleID)
	}
	return nil
}

// HookID implements LifecycleHook.
func (h *FunctionalHook) HookID() string {
	return h.id
}
