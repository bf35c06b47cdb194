package hotswap

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RollbackPoint is a retained (version, snapshot) pair captured during the
// snapshotting phase of a successful non-dry-run swap. Restoring it reverses
// the swap that created it.
type RollbackPoint struct {
	// ID is the generated identifier callers pass to Rollback.
	ID string `json:"id"`

	// ModuleID is the module the snapshot belongs to.
	ModuleID string `json:"moduleId"`

	// PreSwapVersion is the version that was advertised before the swap.
	PreSwapVersion ModuleVersion `json:"preSwapVersion"`

	// Snapshot is the opaque state captured by the module. Not serialized
	// in API responses.
	Snapshot []byte `json:"-"`

	// CreatedAt is when the snapshot was captured.
	CreatedAt time.Time `json:"createdAt"`
}

// RollbackStore retains rollback points in memory, ordered oldest-first per
// module. Retention is bounded: when maxPerModule is positive, inserting
// beyond the bound drops the oldest point. Points never survive a process
// restart; persistence is out of scope.
type RollbackStore struct {
	mu           sync.RWMutex
	points       map[string][]RollbackPoint
	maxPerModule int
}

// NewRollbackStore creates a store keeping at most maxPerModule points per
// module. Zero or negative means unbounded; callers then own pruning.
func NewRollbackStore(maxPerModule int) *RollbackStore {
	return &RollbackStore{
		points:       make(map[string][]RollbackPoint),
		maxPerModule: maxPerModule,
	}
}

// Add appends a rollback point for its module, enforcing the per-module
// bound by dropping the oldest points.
func (s *RollbackStore) Add(point RollbackPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.points[point.ModuleID], point)
	if s.maxPerModule > 0 && len(list) > s.maxPerModule {
		list = list[len(list)-s.maxPerModule:]
	}
	s.points[point.ModuleID] = list
}

// Get returns the rollback point with the given id for the module.
func (s *RollbackStore) Get(moduleID, pointID string) (RollbackPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, point := range s.points[moduleID] {
		if point.ID == pointID {
			return point, true
		}
	}
	return RollbackPoint{}, false
}

// IDs lists the retained point ids for a module, oldest first.
func (s *RollbackStore) IDs(moduleID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.points[moduleID]
	ids := make([]string, 0, len(list))
	for _, point := range list {
		ids = append(ids, point.ID)
	}
	return ids
}

// Points returns copies of the retained points for a module, oldest first.
func (s *RollbackStore) Points(moduleID string) []RollbackPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.points[moduleID]
	out := make([]RollbackPoint, len(list))
	copy(out, list)
	return out
}

// ModuleIDs lists all modules with retained points, sorted.
func (s *RollbackStore) ModuleIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.points))
	for id := range s.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Prune drops all but the newest keep points for a module and returns how
// many were removed. keep <= 0 removes every point for the module.
func (s *RollbackStore) Prune(moduleID string, keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pruneLocked(moduleID, keep)
}

// PruneAll applies Prune to every module and returns the total removed.
func (s *RollbackStore) PruneAll(keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for moduleID := range s.points {
		total += s.pruneLocked(moduleID, keep)
	}
	return total
}

func (s *RollbackStore) pruneLocked(moduleID string, keep int) int {
	list := s.points[moduleID]
	if keep < 0 {
		keep = 0
	}
	if len(list) <= keep {
		return 0
	}

	removed := len(list) - keep
	if keep == 0 {
		delete(s.points, moduleID)
		return removed
	}
	s.points[moduleID] = list[removed:]
	return removed
}

// newRollbackPointID generates a rollback point identifier using UUIDv7 for
// time-ordered uniqueness, falling back to v4.
func newRollbackPointID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
