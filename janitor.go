package hotswap

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// RetentionJanitor prunes rollback points on a cron schedule, bounding the
// otherwise monotonic growth of the store. Pruning stays an explicit,
// configured action: the janitor only runs when the caller starts it with a
// schedule.
type RetentionJanitor struct {
	store  *RollbackStore
	keep   int
	logger Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewRetentionJanitor creates a janitor that keeps the newest keep rollback
// points per module on every run.
func NewRetentionJanitor(store *RollbackStore, keep int, logger Logger) *RetentionJanitor {
	return &RetentionJanitor{
		store:  store,
		keep:   keep,
		logger: ensureLogger(logger),
	}
}

// Start schedules pruning runs on the given cron spec (standard 5-field
// format, e.g. "*/10 * * * *").
func (j *RetentionJanitor) Start(schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return ErrJanitorAlreadyStarted
	}

	c := cron.New()
	entryID, err := c.AddFunc(schedule, j.runOnce)
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	j.cron = c
	j.entryID = entryID
	c.Start()

	j.logger.Info("Retention janitor started", "schedule", schedule, "keep", j.keep)
	return nil
}

// Stop halts scheduled pruning, waiting for an in-progress run to finish or
// the context to expire. It is idempotent.
func (j *RetentionJanitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return nil
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes immediately, outside the schedule, and returns how many
// points were removed.
func (j *RetentionJanitor) RunOnce() int {
	removed := j.store.PruneAll(j.keep)
	if removed > 0 {
		j.logger.Info("Pruned rollback points", "removed", removed, "keep", j.keep)
	}
	return removed
}

func (j *RetentionJanitor) runOnce() {
	j.RunOnce()
}
