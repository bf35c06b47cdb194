package hotswap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SwapOperationType classifies an active operation.
type SwapOperationType string

const (
	// SwapOperationValidate is a dry run: validation only, no mutation.
	SwapOperationValidate SwapOperationType = "validate"

	// SwapOperationReplace is a full swap to a new version.
	SwapOperationReplace SwapOperationType = "replace"

	// SwapOperationRollback restores a retained rollback point.
	SwapOperationRollback SwapOperationType = "rollback"
)

// SwapOperation is the live record of an in-flight swap or rollback. It is
// created when the operation begins, updated as each phase starts, and
// removed when the operation ends.
type SwapOperation struct {
	// ModuleID is the module the operation targets.
	ModuleID string `json:"moduleId"`

	// TargetVersion is the version being swapped to (or restored to).
	TargetVersion ModuleVersion `json:"targetVersion"`

	// Operation classifies the in-flight work.
	Operation SwapOperationType `json:"operation"`

	// InitiatedBy records who or what requested the operation.
	InitiatedBy string `json:"initiatedBy"`

	// StartedAt is when the operation began.
	StartedAt time.Time `json:"startedAt"`

	// Phase is the protocol step currently executing.
	Phase SwapPhase `json:"phase"`
}

// SwapOutcome tags the result of a swap or rollback operation.
type SwapOutcome string

const (
	// SwapSuccess means the operation completed.
	SwapSuccess SwapOutcome = "success"

	// SwapFailure means a lookup or capability call failed. For failures
	// before the swapping phase the advertised version is untouched.
	SwapFailure SwapOutcome = "failure"

	// SwapValidationFailed means the module rejected the target version.
	// Nothing was mutated.
	SwapValidationFailed SwapOutcome = "validation_failed"
)

// SwapResult is the tagged result of PerformHotSwap or Rollback. Err wraps a
// package sentinel (ErrModuleNotFound, ErrIncompatibleVersion, ...) so
// callers can branch with errors.Is.
type SwapResult struct {
	ModuleID  string
	Operation SwapOperationType
	Outcome   SwapOutcome
	Err       error
}

// Success reports whether the operation completed.
func (r SwapResult) Success() bool { return r.Outcome == SwapSuccess }

// ValidationFailed reports whether the module rejected the target version.
func (r SwapResult) ValidationFailed() bool { return r.Outcome == SwapValidationFailed }

func swapSuccess(moduleID string, op SwapOperationType) SwapResult {
	return SwapResult{ModuleID: moduleID, Operation: op, Outcome: SwapSuccess}
}

func swapFailure(moduleID string, op SwapOperationType, err error) SwapResult {
	return SwapResult{ModuleID: moduleID, Operation: op, Outcome: SwapFailure, Err: err}
}

func swapValidationFailed(moduleID string, op SwapOperationType, err error) SwapResult {
	return SwapResult{ModuleID: moduleID, Operation: op, Outcome: SwapValidationFailed, Err: err}
}

// ModuleRegistrationInfo is the caller-visible view of a registration.
type ModuleRegistrationInfo struct {
	ModuleID       string        `json:"moduleId"`
	CurrentVersion ModuleVersion `json:"currentVersion"`
	RegisteredAt   time.Time     `json:"registeredAt"`
	SwapCount      int           `json:"swapCount"`
	LastSwappedAt  time.Time     `json:"lastSwappedAt,omitempty"`
}

// moduleRegistration is the internal mutable registration record.
type moduleRegistration struct {
	module         HotSwappableModule
	currentVersion ModuleVersion
	registeredAt   time.Time
	swapCount      int
	lastSwappedAt  time.Time
}

// HotSwapOrchestratorConfig provides configuration for the orchestrator.
type HotSwapOrchestratorConfig struct {
	// CapabilityTimeout bounds each module-supplied capability call
	// (validate, prepare, snapshot, restore, complete). Default: 30 seconds.
	CapabilityTimeout time.Duration

	// MaxRollbackPointsPerModule bounds retention per module; inserting
	// beyond the bound drops the oldest point. Zero means unbounded.
	// Default: 10.
	MaxRollbackPointsPerModule int

	// Logger receives structured logs. Defaults to a no-op logger.
	Logger Logger
}

// HotSwapOrchestrator is the registry of swappable modules and the driver of
// the swap protocol: validating → preparing → snapshotting → swapping →
// completing, with one event per phase and a rollback point retained per
// successful non-dry-run swap.
//
// The orchestrator is safe for concurrent use. Operations for the same module
// id are serialized by a per-module lock so two swaps never interleave
// phases; operations for different ids proceed concurrently. The registry
// lock is never held across module-supplied capability calls.
type HotSwapOrchestrator struct {
	mu            sync.RWMutex
	registrations map[string]*moduleRegistration
	activeOps     map[string]*SwapOperation
	moduleLocks   map[string]*sync.Mutex

	listenerMu    sync.RWMutex
	listeners     map[string]HotSwapEventListener
	listenerOrder []string

	rollbacks         *RollbackStore
	capabilityTimeout time.Duration
	logger            Logger
}

// NewHotSwapOrchestrator creates an orchestrator with default configuration.
func NewHotSwapOrchestrator(logger Logger) *HotSwapOrchestrator {
	return NewHotSwapOrchestratorWithConfig(HotSwapOrchestratorConfig{Logger: logger})
}

// NewHotSwapOrchestratorWithConfig creates an orchestrator with custom
// configuration.
func NewHotSwapOrchestratorWithConfig(config HotSwapOrchestratorConfig) *HotSwapOrchestrator {
	if config.CapabilityTimeout <= 0 {
		config.CapabilityTimeout = 30 * time.Second
	}
	if config.MaxRollbackPointsPerModule == 0 {
		config.MaxRollbackPointsPerModule = 10
	}
	if config.MaxRollbackPointsPerModule < 0 {
		config.MaxRollbackPointsPerModule = 0 // unbounded
	}

	return &HotSwapOrchestrator{
		registrations:     make(map[string]*moduleRegistration),
		activeOps:         make(map[string]*SwapOperation),
		moduleLocks:       make(map[string]*sync.Mutex),
		listeners:         make(map[string]HotSwapEventListener),
		rollbacks:         NewRollbackStore(config.MaxRollbackPointsPerModule),
		capabilityTimeout: config.CapabilityTimeout,
		logger:            ensureLogger(config.Logger),
	}
}

// RegisterModule stores a module's registration keyed by its version
// identifier, overwriting any previous registration for the same id. An
// empty identifier is rejected with ErrInvalidModule.
func (o *HotSwapOrchestrator) RegisterModule(module HotSwappableModule) error {
	if module == nil {
		return fmt.Errorf("%w: module cannot be nil", ErrInvalidModule)
	}

	version := module.Version()
	if err := version.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	o.registrations[version.Identifier] = &moduleRegistration{
		module:         module,
		currentVersion: version,
		registeredAt:   time.Now(),
	}
	o.mu.Unlock()

	o.logger.Info("Module registered for hot swapping", "module", version.Identifier, "version", version.Version)
	return nil
}

// UnregisterModule removes a module's registration. It is idempotent.
// Retained rollback points are kept until explicitly pruned.
func (o *HotSwapOrchestrator) UnregisterModule(moduleID string) {
	o.mu.Lock()
	_, existed := o.registrations[moduleID]
	delete(o.registrations, moduleID)
	o.mu.Unlock()

	if existed {
		o.logger.Info("Module unregistered", "module", moduleID)
	}
}

// SupportsHotSwap reports whether a module is registered under the id.
func (o *HotSwapOrchestrator) SupportsHotSwap(moduleID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	_, exists := o.registrations[moduleID]
	return exists
}

// CurrentVersion returns the advertised version for a registered module.
func (o *HotSwapOrchestrator) CurrentVersion(moduleID string) (ModuleVersion, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	reg, exists := o.registrations[moduleID]
	if !exists {
		return ModuleVersion{}, false
	}
	return reg.currentVersion, true
}

// GetRegistration returns the caller-visible view of a registration, or nil
// if the module is not registered.
func (o *HotSwapOrchestrator) GetRegistration(moduleID string) *ModuleRegistrationInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	reg, exists := o.registrations[moduleID]
	if !exists {
		return nil
	}
	return &ModuleRegistrationInfo{
		ModuleID:       moduleID,
		CurrentVersion: reg.currentVersion,
		RegisteredAt:   reg.registeredAt,
		SwapCount:      reg.swapCount,
		LastSwappedAt:  reg.lastSwappedAt,
	}
}

// RegisteredModules lists registered module ids, sorted.
func (o *HotSwapOrchestrator) RegisteredModules() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.registrations))
	for id := range o.registrations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegisterEventListener subscribes a listener to every HotSwapEvent.
// Registering a listener with an ID already in use replaces it.
func (o *HotSwapOrchestrator) RegisterEventListener(listener HotSwapEventListener) {
	o.listenerMu.Lock()
	defer o.listenerMu.Unlock()

	if _, exists := o.listeners[listener.ListenerID()]; !exists {
		o.listenerOrder = append(o.listenerOrder, listener.ListenerID())
	}
	o.listeners[listener.ListenerID()] = listener
	o.logger.Debug("Hot-swap event listener registered", "listenerID", listener.ListenerID())
}

// UnregisterEventListener removes a listener. It is idempotent.
func (o *HotSwapOrchestrator) UnregisterEventListener(listenerID string) {
	o.listenerMu.Lock()
	defer o.listenerMu.Unlock()

	if _, exists := o.listeners[listenerID]; !exists {
		return
	}
	delete(o.listeners, listenerID)
	for i, id := range o.listenerOrder {
		if id == listenerID {
			o.listenerOrder = append(o.listenerOrder[:i], o.listenerOrder[i+1:]...)
			break
		}
	}
}

// PerformHotSwap replaces a registered module's version with targetVersion,
// driving the full swap protocol. With dryRun set, the operation stops after
// validation: no preparation, no snapshot, no version change.
//
// The advertised version mutates only at the swapping phase; any error before
// then leaves it untouched. A failure during the completing phase keeps the
// new version, since the module has already absorbed the new code path.
func (o *HotSwapOrchestrator) PerformHotSwap(ctx context.Context, moduleID string, targetVersion ModuleVersion, initiatedBy string, dryRun bool) SwapResult {
	opType := SwapOperationReplace
	if dryRun {
		opType = SwapOperationValidate
	}

	// Serialize operations per module id.
	moduleLock := o.moduleLock(moduleID)
	moduleLock.Lock()
	defer moduleLock.Unlock()

	o.mu.RLock()
	reg, exists := o.registrations[moduleID]
	o.mu.RUnlock()
	if !exists {
		return swapFailure(moduleID, opType, fmt.Errorf("%w: no module registered with id %q", ErrModuleNotFound, moduleID))
	}
	if targetVersion.Identifier != moduleID {
		return swapFailure(moduleID, opType, fmt.Errorf("%w: target identifier %q does not match module %q", ErrModuleNotFound, targetVersion.Identifier, moduleID))
	}

	startedAt := time.Now()
	swapCtx := SwapContext{
		ModuleID:       moduleID,
		CurrentVersion: reg.currentVersion,
		TargetVersion:  targetVersion,
		InitiatedBy:    initiatedBy,
		DryRun:         dryRun,
		StartedAt:      startedAt,
	}

	o.beginOperation(&SwapOperation{
		ModuleID:      moduleID,
		TargetVersion: targetVersion,
		Operation:     opType,
		InitiatedBy:   initiatedBy,
		StartedAt:     startedAt,
		Phase:         PhaseValidating,
	})
	defer o.endOperation(moduleID)

	o.emitPhase(ctx, swapCtx, PhaseValidating, "")

	if err := o.guardCapability(ctx, "validate compatibility", func(c context.Context) error {
		return reg.module.ValidateCompatibility(c, targetVersion)
	}); err != nil {
		if !errors.Is(err, ErrIncompatibleVersion) {
			err = fmt.Errorf("%w: %v", ErrIncompatibleVersion, err)
		}
		o.logger.Warn("Hot swap validation failed", "module", moduleID, "target", targetVersion.Version, "error", err)
		return swapValidationFailed(moduleID, opType, err)
	}

	if dryRun {
		o.logger.Info("Hot swap dry run validated", "module", moduleID, "target", targetVersion.Version)
		return swapSuccess(moduleID, SwapOperationValidate)
	}

	o.setPhase(moduleID, PhasePreparing)
	o.emitPhase(ctx, swapCtx, PhasePreparing, "")
	if err := o.guardCapability(ctx, "prepare for swap", func(c context.Context) error {
		return reg.module.PrepareForSwap(c, swapCtx)
	}); err != nil {
		return swapFailure(moduleID, opType, fmt.Errorf("%w: %v", ErrSwapPrepareFailed, err))
	}

	o.setPhase(moduleID, PhaseSnapshotting)
	o.emitPhase(ctx, swapCtx, PhaseSnapshotting, "")
	var snapshot []byte
	if err := o.guardCapability(ctx, "create snapshot", func(c context.Context) error {
		var err error
		snapshot, err = reg.module.CreateSnapshot(c)
		return err
	}); err != nil {
		return swapFailure(moduleID, opType, fmt.Errorf("%w: %v", ErrSnapshotFailed, err))
	}

	point := RollbackPoint{
		ID:             newRollbackPointID(),
		ModuleID:       moduleID,
		PreSwapVersion: reg.currentVersion,
		Snapshot:       snapshot,
		CreatedAt:      time.Now(),
	}
	o.rollbacks.Add(point)

	o.setPhase(moduleID, PhaseSwapping)
	o.emitPhase(ctx, swapCtx, PhaseSwapping, "")

	// The single point where the advertised version changes.
	o.mu.Lock()
	reg.currentVersion = targetVersion
	reg.swapCount++
	reg.lastSwappedAt = time.Now()
	o.mu.Unlock()

	o.setPhase(moduleID, PhaseCompleting)
	o.emitPhase(ctx, swapCtx, PhaseCompleting, "")
	if err := o.guardCapability(ctx, "complete swap", func(c context.Context) error {
		return reg.module.CompleteSwap(c, swapCtx)
	}); err != nil {
		return swapFailure(moduleID, opType, fmt.Errorf("%w: %v", ErrSwapCompletionFailed, err))
	}

	o.logger.Info("Hot swap completed", "module", moduleID,
		"from", swapCtx.CurrentVersion.Version, "to", targetVersion.Version,
		"initiatedBy", initiatedBy, "rollbackPoint", point.ID)
	return swapSuccess(moduleID, SwapOperationReplace)
}

// Rollback restores the snapshot of a retained rollback point, invoking the
// module's RestoreFromSnapshot exactly once, and reverts the advertised
// version to the point's pre-swap version so the version never disagrees
// with the state the module is running.
func (o *HotSwapOrchestrator) Rollback(ctx context.Context, moduleID, rollbackPointID string) SwapResult {
	moduleLock := o.moduleLock(moduleID)
	moduleLock.Lock()
	defer moduleLock.Unlock()

	o.mu.RLock()
	reg, exists := o.registrations[moduleID]
	o.mu.RUnlock()
	if !exists {
		return swapFailure(moduleID, SwapOperationRollback, fmt.Errorf("%w: no module registered with id %q", ErrModuleNotFound, moduleID))
	}

	point, found := o.rollbacks.Get(moduleID, rollbackPointID)
	if !found {
		return swapFailure(moduleID, SwapOperationRollback, fmt.Errorf("%w: %q", ErrRollbackPointNotFound, rollbackPointID))
	}

	o.beginOperation(&SwapOperation{
		ModuleID:      moduleID,
		TargetVersion: point.PreSwapVersion,
		Operation:     SwapOperationRollback,
		InitiatedBy:   "rollback",
		StartedAt:     time.Now(),
	})
	defer o.endOperation(moduleID)

	if err := o.guardCapability(ctx, "restore from snapshot", func(c context.Context) error {
		return reg.module.RestoreFromSnapshot(c, point.Snapshot)
	}); err != nil {
		return swapFailure(moduleID, SwapOperationRollback, fmt.Errorf("%w: %v", ErrRestoreFailed, err))
	}

	o.mu.Lock()
	reg.currentVersion = point.PreSwapVersion
	o.mu.Unlock()

	o.logger.Info("Module rolled back", "module", moduleID, "rollbackPoint", rollbackPointID, "version", point.PreSwapVersion.Version)
	return swapSuccess(moduleID, SwapOperationRollback)
}

// AvailableRollbackPoints lists the retained rollback point ids for a module,
// oldest first.
func (o *HotSwapOrchestrator) AvailableRollbackPoints(moduleID string) []string {
	return o.rollbacks.IDs(moduleID)
}

// RollbackPoints returns the retained rollback points for a module, oldest
// first, without snapshot payloads exposed in serialized form.
func (o *HotSwapOrchestrator) RollbackPoints(moduleID string) []RollbackPoint {
	return o.rollbacks.Points(moduleID)
}

// RollbackStore exposes the underlying store so callers can run explicit
// retention pruning; the core never prunes silently beyond the configured
// per-module bound.
func (o *HotSwapOrchestrator) RollbackStore() *RollbackStore {
	return o.rollbacks
}

// ActiveOperations returns a snapshot of all in-flight operations. The view
// is updated within the same critical section as each protocol step, so a
// concurrent reader sees the operation's current phase, not only its entry
// and exit.
func (o *HotSwapOrchestrator) ActiveOperations() []SwapOperation {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ops := make([]SwapOperation, 0, len(o.activeOps))
	for _, op := range o.activeOps {
		ops = append(ops, *op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ModuleID < ops[j].ModuleID })
	return ops
}

// moduleLock returns the per-module operation lock, creating it on first use.
// Lock entries are retained for the orchestrator's lifetime; they are small
// and module id sets are not expected to churn.
func (o *HotSwapOrchestrator) moduleLock(moduleID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, exists := o.moduleLocks[moduleID]
	if !exists {
		lock = &sync.Mutex{}
		o.moduleLocks[moduleID] = lock
	}
	return lock
}

func (o *HotSwapOrchestrator) beginOperation(op *SwapOperation) {
	o.mu.Lock()
	o.activeOps[op.ModuleID] = op
	o.mu.Unlock()
}

func (o *HotSwapOrchestrator) setPhase(moduleID string, phase SwapPhase) {
	o.mu.Lock()
	if op, exists := o.activeOps[moduleID]; exists {
		op.Phase = phase
	}
	o.mu.Unlock()
}

func (o *HotSwapOrchestrator) endOperation(moduleID string) {
	o.mu.Lock()
	delete(o.activeOps, moduleID)
	o.mu.Unlock()
}

// emitPhase fans a phase event out to every listener, in registration order,
// synchronously so per-operation phase ordering is preserved. Listener errors
// and panics are logged and never propagated.
func (o *HotSwapOrchestrator) emitPhase(ctx context.Context, swapCtx SwapContext, phase SwapPhase, detail string) {
	o.listenerMu.RLock()
	listeners := make([]HotSwapEventListener, 0, len(o.listenerOrder))
	for _, id := range o.listenerOrder {
		listeners = append(listeners, o.listeners[id])
	}
	o.listenerMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	event := HotSwapEvent{
		Phase:         phase,
		ModuleID:      swapCtx.ModuleID,
		TargetVersion: swapCtx.TargetVersion,
		InitiatedBy:   swapCtx.InitiatedBy,
		DryRun:        swapCtx.DryRun,
		Timestamp:     time.Now(),
		Detail:        detail,
	}

	for _, listener := range listeners {
		o.notifyListener(ctx, listener, event)
	}
}

func (o *HotSwapOrchestrator) notifyListener(ctx context.Context, listener HotSwapEventListener, event HotSwapEvent) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Hot-swap listener panicked", "listenerID", listener.ListenerID(), "phase", event.Phase, "panic", r)
		}
	}()

	if err := listener.OnHotSwapEvent(ctx, event); err != nil {
		o.logger.Error("Hot-swap listener error", "listenerID", listener.ListenerID(), "phase", event.Phase, "error", err)
	}
}

// guardCapability runs a module-supplied call under the capability timeout.
// The call runs in its own goroutine so a module that ignores its context
// cannot stall the protocol past the bound; panics become errors.
func (o *HotSwapOrchestrator) guardCapability(ctx context.Context, name string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, o.capabilityTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return fmt.Errorf("%s: %w", name, callCtx.Err())
	}
}
