// Package hotswap manages the runtime life of independently loadable modules
// and supports replacing a running module's implementation with a new version
// without stopping the host process.
//
// The package provides two long-lived services that are constructed explicitly
// and passed by reference (no global state):
//
//   - LifecycleManager tracks per-module lifecycle state and enforces legal
//     transitions, dispatching hooks so observers can follow along.
//   - HotSwapOrchestrator holds registrations of swappable modules and drives
//     the multi-phase swap protocol: validate, prepare, snapshot, swap,
//     complete. Every successful non-dry-run swap retains a rollback point
//     that can later be restored.
//
// Basic usage:
//
//	orch := hotswap.NewHotSwapOrchestrator(logger)
//	if err := orch.RegisterModule(myModule); err != nil {
//		log.Fatal(err)
//	}
//	result := orch.PerformHotSwap(ctx, "cache", targetVersion, "ops", false)
//	if !result.Success() {
//		log.Fatal(result.Err)
//	}
package hotswap

import (
	"context"
	"fmt"
	"time"
)

// HotSwappableModule is the capability contract a module must expose to
// participate in hot swapping. The orchestrator holds these as polymorphic
// handles; the concrete business logic behind them is entirely the module's
// concern.
//
// All methods that may perform I/O receive a context. The orchestrator bounds
// each call with its configured capability timeout, so implementations should
// honor cancellation.
type HotSwappableModule interface {
	// Version reports the module's current build identity.
	Version() ModuleVersion

	// ValidateCompatibility checks whether the module can be swapped to the
	// candidate version. Returning an error (conventionally wrapping
	// ErrIncompatibleVersion) aborts the swap before any mutation.
	ValidateCompatibility(ctx context.Context, target ModuleVersion) error

	// PrepareForSwap quiesces the module ahead of a swap: draining in-flight
	// work, flushing buffers, whatever the module needs before its state is
	// captured.
	PrepareForSwap(ctx context.Context, swapCtx SwapContext) error

	// CreateSnapshot serializes the module's state into an opaque byte
	// sequence. The format is entirely the module's responsibility; the core
	// only stores and returns it.
	CreateSnapshot(ctx context.Context) ([]byte, error)

	// RestoreFromSnapshot rehydrates the module from a previously captured
	// snapshot during a rollback.
	RestoreFromSnapshot(ctx context.Context, snapshot []byte) error

	// CompleteSwap finalizes a swap after the advertised version has been
	// updated: restoring state into the new implementation, resuming work.
	CompleteSwap(ctx context.Context, swapCtx SwapContext) error
}

// SwapContext carries the parameters of an in-flight swap to the module's
// capability calls.
type SwapContext struct {
	// ModuleID is the identifier of the module being swapped.
	ModuleID string

	// CurrentVersion is the version registered before the swap.
	CurrentVersion ModuleVersion

	// TargetVersion is the version being swapped to.
	TargetVersion ModuleVersion

	// InitiatedBy records who or what requested the swap.
	InitiatedBy string

	// DryRun is true when the operation stops after validation.
	DryRun bool

	// StartedAt is when the swap operation began.
	StartedAt time.Time
}

// AsHotSwappable probes an arbitrary module handle for the hot-swap
// capability. Hosts that hold modules behind broader interfaces use this to
// decide whether a module can be registered with the orchestrator.
func AsHotSwappable(module any) (HotSwappableModule, error) {
	swappable, ok := module.(HotSwappableModule)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrModuleNotSwappable, module)
	}
	return swappable, nil
}
