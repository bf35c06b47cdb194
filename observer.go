package hotswap

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// HotSwapEventListener receives every HotSwapEvent the orchestrator emits.
// Fan-out is best effort: listener errors and panics are logged by the
// orchestrator and never propagated to the caller that triggered the swap.
// Phase events for one operation arrive strictly in protocol order;
// no ordering is guaranteed across different modules' operations.
type HotSwapEventListener interface {
	// OnHotSwapEvent is called once per phase of every swap operation.
	// Implementations should return quickly to avoid delaying the protocol.
	OnHotSwapEvent(ctx context.Context, event HotSwapEvent) error

	// ListenerID returns a unique identifier for this listener, used for
	// unregistration and log attribution.
	ListenerID() string
}

// FunctionalListener adapts a function to the HotSwapEventListener interface.
type FunctionalListener struct {
	id      string
	handler func(ctx context.Context, event HotSwapEvent) error
}

// NewFunctionalListener creates a listener backed by the provided function.
func NewFunctionalListener(id string, handler func(ctx context.Context, event HotSwapEvent) error) *FunctionalListener {
	return &FunctionalListener{id: id, handler: handler}
}

// OnHotSwapEvent implements HotSwapEventListener by calling the handler.
func (l *FunctionalListener) OnHotSwapEvent(ctx context.Context, event HotSwapEvent) error {
	if l.handler != nil {
		return l.handler(ctx, event)
	}
	return nil
}

// ListenerID implements HotSwapEventListener.
func (l *FunctionalListener) ListenerID() string {
	return l.id
}

// Observer is the CloudEvents-facing observer interface, for sinks that
// consume standardized events (event buses, audit logs, external systems).
type Observer interface {
	// OnEvent is called with the CloudEvents representation of an event.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// ObserverBridge adapts a CloudEvents Observer into a HotSwapEventListener,
// converting each HotSwapEvent before forwarding.
type ObserverBridge struct {
	observer Observer
}

// NewObserverBridge wraps a CloudEvents Observer so it can be registered with
// the orchestrator.
func NewObserverBridge(observer Observer) *ObserverBridge {
	return &ObserverBridge{observer: observer}
}

// OnHotSwapEvent implements HotSwapEventListener.
func (b *ObserverBridge) OnHotSwapEvent(ctx context.Context, event HotSwapEvent) error {
	return b.observer.OnEvent(ctx, event.CloudEvent())
}

// ListenerID implements HotSwapEventListener by delegating to the wrapped
// observer's ID.
func (b *ObserverBridge) ListenerID() string {
	return b.observer.ObserverID()
}
