package hotswap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ModuleState represents a module's position in its lifecycle.
type ModuleState string

const (
	StateInitialized ModuleState = "initialized"
	StateStarting    ModuleState = "starting"
	StateActive      ModuleState = "active"
	StatePaused      ModuleState = "paused"
	StateStopping    ModuleState = "stopping"
	StateStopped     ModuleState = "stopped"
	StateDestroyed   ModuleState = "destroyed"
	StateFailed      ModuleState = "failed"
)

// legalEdges is the directed-edge table of allowed transitions. StateFailed
// is reachable from every state and checked separately.
var legalEdges = map[ModuleState][]ModuleState{
	StateInitialized: {StateStarting},
	StateStarting:    {StateActive},
	StateActive:      {StatePaused, StateStopping},
	StatePaused:      {StateActive, StateStopping},
	StateStopping:    {StateStopped},
	StateStopped:     {StateDestroyed},
	StateDestroyed:   {},
	StateFailed:      {},
}

// stateEdgeAllowed reports whether from→to is a legal edge.
func stateEdgeAllowed(from, to ModuleState) bool {
	if to == StateFailed {
		return true
	}
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionOutcome tags the result of a lifecycle operation.
type TransitionOutcome string

const (
	// TransitionSuccess means the transition was applied.
	TransitionSuccess TransitionOutcome = "success"

	// TransitionFailure means an infrastructure error occurred.
	TransitionFailure TransitionOutcome = "failure"

	// TransitionBlocked means the requested edge is illegal from the current
	// state. Nothing was mutated; callers can pre-check with CanTransition.
	TransitionBlocked TransitionOutcome = "blocked"

	// TransitionTimeout means the hook chain exceeded the bounded wait.
	TransitionTimeout TransitionOutcome = "timeout"
)

// TransitionResult is the tagged result of a lifecycle operation.
type TransitionResult struct {
	Outcome TransitionOutcome
	Reason  string
	Err     error
}

// Success reports whether the transition was applied.
func (r TransitionResult) Success() bool { return r.Outcome == TransitionSuccess }

// Blocked reports whether the transition was rejected as an illegal edge.
func (r TransitionResult) Blocked() bool { return r.Outcome == TransitionBlocked }

// TimedOut reports whether the hook chain exceeded its bounded wait.
func (r TransitionResult) TimedOut() bool { return r.Outcome == TransitionTimeout }

func transitionSuccess() TransitionResult {
	return TransitionResult{Outcome: TransitionSuccess}
}

func transitionBlocked(reason string) TransitionResult {
	return TransitionResult{Outcome: TransitionBlocked, Reason: reason}
}

func transitionTimeout(err error) TransitionResult {
	return TransitionResult{Outcome: TransitionTimeout, Reason: err.Error(), Err: err}
}

// LifecycleRecord is the caller-visible view of a module's lifecycle state.
type LifecycleRecord struct {
	// CurrentState is the module's current lifecycle state.
	CurrentState ModuleState `json:"currentState"`

	// InitializedAt is when the lifecycle record was created.
	InitializedAt time.Time `json:"initializedAt"`

	// TotalUptime accumulates time spent in StateActive, updated on every
	// edge leaving active.
	TotalUptime time.Duration `json:"totalUptime"`

	// FailureCount is how many times the module entered StateFailed.
	FailureCount int `json:"failureCount"`

	// LastError is the error passed to the most recent MarkModuleFailed.
	LastError error `json:"-"`
}

// lifecycleRecord is the internal mutable record.
type lifecycleRecord struct {
	state         ModuleState
	initializedAt time.Time
	totalUptime   time.Duration
	failureCount  int
	lastError     error
	activeSince   time.Time // zero unless state == StateActive
}

func (r *lifecycleRecord) view() *LifecycleRecord {
	return &LifecycleRecord{
		CurrentState:  r.state,
		InitializedAt: r.initializedAt,
		TotalUptime:   r.totalUptime,
		FailureCount:  r.failureCount,
		LastError:     r.lastError,
	}
}

// leaveActive accumulates uptime when departing StateActive. Must be called
// with the manager lock held, before the state mutates.
func (r *lifecycleRecord) leaveActive(now time.Time) {
	if r.state == StateActive && !r.activeSince.IsZero() {
		r.totalUptime += now.Sub(r.activeSince)
		r.activeSince = time.Time{}
	}
}

// LifecycleManagerConfig provides configuration for a LifecycleManager.
type LifecycleManagerConfig struct {
	// HookTimeout bounds the wait for one transition's hook chain.
	// Default: 5 seconds.
	HookTimeout time.Duration

	// Logger receives structured logs. Defaults to a no-op logger.
	Logger Logger
}

// LifecycleManager tracks per-module lifecycle state, enforces the legal-edge
// table, and dispatches hooks around every transition.
//
// The manager is safe for concurrent use. Its internal lock is never held
// across hook invocations; hooks run under a bounded wait so a stalled hook
// chain yields a timeout result instead of hanging the caller.
type LifecycleManager struct {
	mu      sync.RWMutex
	records map[string]*lifecycleRecord

	hookMu      sync.RWMutex
	hooks       map[string]LifecycleHook
	hookOrder   []string
	hookTimeout time.Duration

	logger Logger
}

// NewLifecycleManager creates a lifecycle manager with default configuration.
func NewLifecycleManager(logger Logger) *LifecycleManager {
	return NewLifecycleManagerWithConfig(LifecycleManagerConfig{Logger: logger})
}

// NewLifecycleManagerWithConfig creates a lifecycle manager with custom
// configuration.
func NewLifecycleManagerWithConfig(config LifecycleManagerConfig) *LifecycleManager {
	if config.HookTimeout <= 0 {
		config.HookTimeout = 5 * time.Second
	}

	return &LifecycleManager{
		records:     make(map[string]*lifecycleRecord),
		hooks:       make(map[string]LifecycleHook),
		hookTimeout: config.HookTimeout,
		logger:      ensureLogger(config.Logger),
	}
}

// RegisterHook subscribes a hook to every lifecycle event. Registering a hook
// with an ID already in use replaces the previous hook.
func (m *LifecycleManager) RegisterHook(hook LifecycleHook) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()

	if _, exists := m.hooks[hook.HookID()]; !exists {
		m.hookOrder = append(m.hookOrder, hook.HookID())
	}
	m.hooks[hook.HookID()] = hook
	m.logger.Debug("Lifecycle hook registered", "hookID", hook.HookID())
}

// UnregisterHook removes a hook. It is idempotent.
func (m *LifecycleManager) UnregisterHook(hookID string) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()

	if _, exists := m.hooks[hookID]; !exists {
		return
	}
	delete(m.hooks, hookID)
	for i, id := range m.hookOrder {
		if id == hookID {
			m.hookOrder = append(m.hookOrder[:i], m.hookOrder[i+1:]...)
			break
		}
	}
}

// InitializeModule creates the lifecycle record for a module and places it in
// StateInitialized, firing willInitialize then didInitialize. A module that
// already has a live record is blocked; destroy it first.
func (m *LifecycleManager) InitializeModule(ctx context.Context, moduleID string) TransitionResult {
	m.mu.RLock()
	_, exists := m.records[moduleID]
	m.mu.RUnlock()
	if exists {
		return transitionBlocked(fmt.Sprintf("module %q already has a lifecycle record", moduleID))
	}

	if err := m.dispatchHooks(ctx, HookWillInitialize, moduleID); err != nil {
		return transitionTimeout(err)
	}

	m.mu.Lock()
	if _, exists := m.records[moduleID]; exists {
		m.mu.Unlock()
		return transitionBlocked(fmt.Sprintf("module %q already has a lifecycle record", moduleID))
	}
	m.records[moduleID] = &lifecycleRecord{
		state:         StateInitialized,
		initializedAt: time.Now(),
	}
	m.mu.Unlock()

	m.logger.Debug("Module initialized", "module", moduleID)

	if err := m.dispatchHooks(ctx, HookDidInitialize, moduleID); err != nil {
		return transitionTimeout(err)
	}
	return transitionSuccess()
}

// StartModule moves a module from initialized through starting to active.
func (m *LifecycleManager) StartModule(ctx context.Context, moduleID string) TransitionResult {
	if blocked := m.checkEdge(moduleID, StateStarting); blocked != nil {
		return *blocked
	}

	if err := m.dispatchHooks(ctx, HookWillStart, moduleID); err != nil {
		return transitionTimeout(err)
	}

	m.mu.Lock()
	rec, exists := m.records[moduleID]
	if !exists || !stateEdgeAllowed(rec.state, StateStarting) {
		m.mu.Unlock()
		return m.blockedResult(moduleID, StateStarting, rec, exists)
	}
	rec.state = StateActive
	rec.activeSince = time.Now()
	m.mu.Unlock()

	m.logger.Info("Module started", "module", moduleID)

	if err := m.dispatchHooks(ctx, HookDidStart, moduleID); err != nil {
		return transitionTimeout(err)
	}
	return transitionSuccess()
}

// PauseModule moves a module from active to paused, accumulating uptime.
func (m *LifecycleManager) PauseModule(ctx context.Context, moduleID string) TransitionResult {
	return m.transition(ctx, moduleID, StatePaused, HookWillPause, HookDidPause)
}

// ResumeModule moves a module from paused back to active.
func (m *LifecycleManager) ResumeModule(ctx context.Context, moduleID string) TransitionResult {
	return m.transition(ctx, moduleID, StateActive, HookWillResume, HookDidResume)
}

// StopModule moves a module from active or paused through stopping to
// stopped, accumulating uptime when leaving active.
func (m *LifecycleManager) StopModule(ctx context.Context, moduleID string) TransitionResult {
	if blocked := m.checkEdge(moduleID, StateStopping); blocked != nil {
		return *blocked
	}

	if err := m.dispatchHooks(ctx, HookWillStop, moduleID); err != nil {
		return transitionTimeout(err)
	}

	m.mu.Lock()
	rec, exists := m.records[moduleID]
	if !exists || !stateEdgeAllowed(rec.state, StateStopping) {
		m.mu.Unlock()
		return m.blockedResult(moduleID, StateStopping, rec, exists)
	}
	rec.leaveActive(time.Now())
	rec.state = StateStopped
	m.mu.Unlock()

	m.logger.Info("Module stopped", "module", moduleID)

	if err := m.dispatchHooks(ctx, HookDidStop, moduleID); err != nil {
		return transitionTimeout(err)
	}
	return transitionSuccess()
}

// DestroyModule moves a stopped module to destroyed and removes its record.
// After a successful destroy, GetLifecycleInfo returns nil and the module id
// can be initialized again.
func (m *LifecycleManager) DestroyModule(ctx context.Context, moduleID string) TransitionResult {
	if blocked := m.checkEdge(moduleID, StateDestroyed); blocked != nil {
		return *blocked
	}

	if err := m.dispatchHooks(ctx, HookWillDestroy, moduleID); err != nil {
		return transitionTimeout(err)
	}

	m.mu.Lock()
	rec, exists := m.records[moduleID]
	if !exists || !stateEdgeAllowed(rec.state, StateDestroyed) {
		m.mu.Unlock()
		return m.blockedResult(moduleID, StateDestroyed, rec, exists)
	}
	delete(m.records, moduleID)
	m.mu.Unlock()

	m.logger.Info("Module destroyed", "module", moduleID)

	if err := m.dispatchHooks(ctx, HookDidDestroy, moduleID); err != nil {
		return transitionTimeout(err)
	}
	return transitionSuccess()
}

// MarkModuleFailed unconditionally transitions a module to failed from any
// state, creating a record if none exists, and increments its failure count.
func (m *LifecycleManager) MarkModuleFailed(ctx context.Context, moduleID string, cause error) TransitionResult {
	m.mu.Lock()
	rec, exists := m.records[moduleID]
	if !exists {
		rec = &lifecycleRecord{initializedAt: time.Now()}
		m.records[moduleID] = rec
	}
	rec.leaveActive(time.Now())
	rec.state = StateFailed
	rec.failureCount++
	rec.lastError = cause
	m.mu.Unlock()

	m.logger.Error("Module marked failed", "module", moduleID, "error", cause)

	if err := m.dispatchHooks(ctx, HookDidFail, moduleID); err != nil {
		return transitionTimeout(err)
	}
	return transitionSuccess()
}

// CanTransition reports whether the module can legally move to the target
// state from its current state. It is a pure predicate with no side effects;
// a module without a lifecycle record cannot transition anywhere.
func (m *LifecycleManager) CanTransition(moduleID string, to ModuleState) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[moduleID]
	if !exists {
		return false
	}
	return stateEdgeAllowed(rec.state, to)
}

// GetLifecycleInfo returns a copy of the module's lifecycle record, or nil if
// no record exists (never initialized, or destroyed).
func (m *LifecycleManager) GetLifecycleInfo(moduleID string) *LifecycleRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[moduleID]
	if !exists {
		return nil
	}
	return rec.view()
}

// ModulesInState lists the ids of modules currently in the given state,
// sorted for deterministic output.
func (m *LifecycleManager) ModulesInState(state ModuleState) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0)
	for id, rec := range m.records {
		if rec.state == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// transition performs a single-edge transition with will/did hooks around the
// mutation. The manager lock is not held across hook dispatch, so the edge is
// re-verified before mutating.
func (m *LifecycleManager) transition(ctx context.Context, moduleID string, to ModuleState, will, did LifecycleHookEvent) TransitionResult {
	if blocked := m.checkEdge(moduleID, to); blocked != nil {
		return *blocked
	}

	if err := m.dispatchHooks(ctx, will, moduleID); err != nil {
		return transitionTimeout(err)
	}

	now := time.Now()
	m.mu.Lock()
	rec, exists := m.records[moduleID]
	if !exists || !stateEdgeAllowed(rec.state, to) {
		m.mu.Unlock()
		return m.blockedResult(moduleID, to, rec, exists)
	}
	rec.leaveActive(now)
	rec.state = to
	if to == StateActive {
		rec.activeSince = now
	}
	m.mu.Unlock()

	m.logger.Debug("Module transitioned", "module", moduleID, "state", to)

	if err := m.dispatchHooks(ctx, did, moduleID); err != nil {
		return transitionTimeout(err)
	}
	return transitionSuccess()
}

// checkEdge returns a blocked result when the module cannot legally move to
// the target state, or nil when the transition may proceed.
func (m *LifecycleManager) checkEdge(moduleID string, to ModuleState) *TransitionResult {
	m.mu.RLock()
	rec, exists := m.records[moduleID]
	m.mu.RUnlock()

	if !exists || !stateEdgeAllowed(rec.state, to) {
		result := m.blockedResult(moduleID, to, rec, exists)
		return &result
	}
	return nil
}

func (m *LifecycleManager) blockedResult(moduleID string, to ModuleState, rec *lifecycleRecord, exists bool) TransitionResult {
	var err error
	if !exists {
		err = fmt.Errorf("%w: module %q has no lifecycle record, cannot move to %s", ErrInvalidStateTransition, moduleID, to)
	} else {
		err = fmt.Errorf("%w: module %q cannot move from %s to %s", ErrInvalidStateTransition, moduleID, rec.state, to)
	}
	result := transitionBlocked(err.Error())
	result.Err = err
	return result
}

// dispatchHooks runs the hook chain sequentially under a bounded wait. Hook
// errors and panics are logged and swallowed; only exceeding the bound is
// reported, as ErrHookTimeout.
func (m *LifecycleManager) dispatchHooks(ctx context.Context, event LifecycleHookEvent, moduleID string) error {
	m.hookMu.RLock()
	hooks := make([]LifecycleHook, 0, len(m.hookOrder))
	for _, id := range m.hookOrder {
		hooks = append(hooks, m.hooks[id])
	}
	m.hookMu.RUnlock()

	if len(hooks) == 0 {
		return nil
	}

	hookCtx, cancel := context.WithTimeout(ctx, m.hookTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, hook := range hooks {
			m.invokeHook(hookCtx, hook, event, moduleID)
		}
	}()

	select {
	case <-done:
		return nil
	case <-hookCtx.Done():
		return fmt.Errorf("%w: %s hooks for module %q exceeded %v", ErrHookTimeout, event, moduleID, m.hookTimeout)
	}
}

// invokeHook calls a single hook, recovering panics so one misbehaving hook
// cannot take down the transition.
func (m *LifecycleManager) invokeHook(ctx context.Context, hook LifecycleHook, event LifecycleHookEvent, moduleID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Lifecycle hook panicked", "hookID", hook.HookID(), "event", event, "module", moduleID, "panic", r)
		}
	}()

	if err := hook.OnLifecycleEvent(ctx, event, moduleID); err != nil {
		m.logger.Error("Lifecycle hook error", "hookID", hook.HookID(), "event", event, "module", moduleID, "error", err)
	}
}
