package hotswap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// SwapManifest is the declarative file format the ManifestWatcher consumes:
// a list of desired module versions. The watcher compares each entry against
// the registered version and initiates a hot swap when they differ.
type SwapManifest struct {
	Modules []ManifestEntry `yaml:"modules"`
}

// ManifestEntry describes the desired version for one module.
type ManifestEntry struct {
	Module               string `yaml:"module"`
	Version              string `yaml:"version"`
	BuildNumber          string `yaml:"buildNumber"`
	Checksum             string `yaml:"checksum"`
	CompatibilityVersion string `yaml:"compatibilityVersion"`
	InitiatedBy          string `yaml:"initiatedBy"`
	DryRun               bool   `yaml:"dryRun"`
}

// targetVersion builds the ModuleVersion a manifest entry asks for.
func (e ManifestEntry) targetVersion() ModuleVersion {
	return ModuleVersion{
		Identifier:           e.Module,
		Version:              e.Version,
		BuildNumber:          e.BuildNumber,
		Checksum:             e.Checksum,
		CompatibilityVersion: e.CompatibilityVersion,
	}
}

// ManifestWatcher watches a YAML swap manifest and initiates hot swaps when
// the file changes, turning a config-style edit into a reload trigger. Swap
// failures are logged and do not stop the watcher; retry policy belongs to
// whoever edits the manifest.
type ManifestWatcher struct {
	orchestrator *HotSwapOrchestrator
	path         string
	logger       Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// NewManifestWatcher creates a watcher for the manifest at path. Start must
// be called before any swaps are triggered.
func NewManifestWatcher(orchestrator *HotSwapOrchestrator, path string, logger Logger) (*ManifestWatcher, error) {
	if path == "" {
		return nil, ErrManifestPathEmpty
	}
	return &ManifestWatcher{
		orchestrator: orchestrator,
		path:         filepath.Clean(path),
		logger:       ensureLogger(logger),
	}, nil
}

// Start applies the manifest once, then begins watching its directory for
// changes. Watching the directory rather than the file keeps the watch alive
// across atomic rename-based saves.
func (w *ManifestWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return ErrWatcherAlreadyStarted
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch manifest directory: %w", err)
	}

	w.watcher = watcher
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	if err := w.Apply(ctx); err != nil {
		w.logger.Warn("Initial manifest apply failed", "path", w.path, "error", err)
	}

	go w.run(ctx, watcher)

	w.logger.Info("Manifest watcher started", "path", w.path)
	return nil
}

// Stop shuts the watcher down and waits for its loop to exit.
func (w *ManifestWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return ErrWatcherNotStarted
	}
	watcher := w.watcher
	stop := w.stop
	done := w.done
	w.watcher = nil
	w.mu.Unlock()

	close(stop)
	err := watcher.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// run is the watch loop. It reacts to writes, creates, and renames touching
// the manifest path.
func (w *ManifestWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Manifest changed", "path", w.path, "op", event.Op.String())
			if err := w.Apply(ctx); err != nil {
				w.logger.Error("Manifest apply failed", "path", w.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Manifest watcher error", "path", w.path, "error", err)
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Apply reads the manifest and initiates a hot swap for every registered
// module whose advertised version differs from the manifest's desired
// version. Entries for unregistered modules are skipped with a warning.
// It returns the first parse error; individual swap failures are logged and
// do not abort the remaining entries.
func (w *ManifestWatcher) Apply(ctx context.Context) error {
	manifest, err := w.loadManifest()
	if err != nil {
		return err
	}

	for _, entry := range manifest.Modules {
		if entry.Module == "" {
			continue
		}

		current, registered := w.orchestrator.CurrentVersion(entry.Module)
		if !registered {
			w.logger.Warn("Manifest names unregistered module", "module", entry.Module)
			continue
		}
		if current.Version == entry.Version && current.BuildNumber == entry.BuildNumber {
			continue
		}

		initiatedBy := entry.InitiatedBy
		if initiatedBy == "" {
			initiatedBy = "manifest:" + filepath.Base(w.path)
		}

		result := w.orchestrator.PerformHotSwap(ctx, entry.Module, entry.targetVersion(), initiatedBy, entry.DryRun)
		if !result.Success() {
			w.logger.Error("Manifest-triggered swap failed", "module", entry.Module,
				"target", entry.Version, "outcome", result.Outcome, "error", result.Err)
		}
	}
	return nil
}

func (w *ManifestWatcher) loadManifest() (*SwapManifest, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	manifest := &SwapManifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return manifest, nil
}
