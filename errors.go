package hotswap

import (
	"errors"
)

// Package errors. Callers branch on these programmatically with errors.Is;
// every error returned from the public API wraps one of them.
var (
	// Registration errors
	ErrInvalidModule      = errors.New("invalid module")
	ErrModuleNotFound     = errors.New("module not found")
	ErrModuleNotSwappable = errors.New("module does not support hot swapping")

	// Swap protocol errors
	ErrIncompatibleVersion   = errors.New("incompatible target version")
	ErrSwapPrepareFailed     = errors.New("module failed to prepare for swap")
	ErrSnapshotFailed        = errors.New("module failed to create snapshot")
	ErrSwapCompletionFailed  = errors.New("module failed to complete swap")
	ErrRollbackPointNotFound = errors.New("rollback point not found")
	ErrRestoreFailed         = errors.New("module failed to restore from snapshot")

	// Lifecycle errors
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrHookTimeout            = errors.New("lifecycle hook chain timed out")

	// Configuration errors
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")
	ErrConfigNotStruct         = errors.New("config must be a pointer to a struct")

	// Manifest watcher errors
	ErrWatcherAlreadyStarted = errors.New("manifest watcher already started")
	ErrWatcherNotStarted     = errors.New("manifest watcher not started")
	ErrManifestPathEmpty     = errors.New("manifest path cannot be empty")

	// Retention janitor errors
	ErrJanitorAlreadyStarted = errors.New("retention janitor already started")
)
