package hotswap

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// SwapPhase identifies a step of the hot-swap protocol. Phases for one
// operation are emitted strictly in the order declared here; a dry run stops
// after PhaseValidating.
type SwapPhase string

const (
	PhaseValidating   SwapPhase = "validating"
	PhasePreparing    SwapPhase = "preparing"
	PhaseSnapshotting SwapPhase = "snapshotting"
	PhaseSwapping     SwapPhase = "swapping"
	PhaseCompleting   SwapPhase = "completing"
)

// CloudEvent type constants for hot-swap phases, using reverse domain
// notation per the CloudEvents specification.
const (
	EventTypeSwapValidating   = "com.hotswap.swap.validating"
	EventTypeSwapPreparing    = "com.hotswap.swap.preparing"
	EventTypeSwapSnapshotting = "com.hotswap.swap.snapshotting"
	EventTypeSwapSwapping     = "com.hotswap.swap.swapping"
	EventTypeSwapCompleting   = "com.hotswap.swap.completing"
)

// HotSwapEvent describes one phase of one swap operation. Events are
// transient: the core publishes them to listeners and does not retain them.
type HotSwapEvent struct {
	// Phase is the protocol step this event marks the start of.
	Phase SwapPhase `json:"phase"`

	// ModuleID is the module being swapped.
	ModuleID string `json:"moduleId"`

	// TargetVersion is the version being swapped to.
	TargetVersion ModuleVersion `json:"targetVersion"`

	// InitiatedBy records who or what requested the swap.
	InitiatedBy string `json:"initiatedBy"`

	// DryRun is true when the operation stops after validation.
	DryRun bool `json:"dryRun"`

	// Timestamp is when the phase began.
	Timestamp time.Time `json:"timestamp"`

	// Detail carries optional human-readable context.
	Detail string `json:"detail,omitempty"`
}

// CloudEvent converts the event to a CloudEvents representation for
// forwarding to external sinks.
func (e HotSwapEvent) CloudEvent() cloudevents.Event {
	return NewCloudEvent("com.hotswap.swap."+string(e.Phase), "hotswap-orchestrator", e, map[string]interface{}{
		"moduleid": e.ModuleID,
		"dryrun":   e.DryRun,
	})
}

// NewCloudEvent creates a CloudEvent with the required attributes populated.
// This is a convenience for constructing properly formed events to hand to
// CloudEvents-aware observers.
func NewCloudEvent(eventType, source string, data interface{}, metadata map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	for key, value := range metadata {
		event.SetExtension(key, value)
	}

	return event
}

// generateEventID generates a unique identifier using UUIDv7, which embeds
// timestamp information for time-ordered uniqueness.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails for any reason
		id = uuid.New()
	}
	return id.String()
}
