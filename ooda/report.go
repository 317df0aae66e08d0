package ooda

import (
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
)

// CycleReport summarises one executed cycle.
type CycleReport struct {
	CycleID   string
	VehicleID string
	Sequence  uint64
	StartedAt time.Time

	Duration           time.Duration
	ObservationLatency time.Duration
	ActuationLatency   time.Duration

	Threat               model.ThreatLevel
	ObservedEnvironment  string
	PredictedEnvironment string
	Decision             Decision
	CacheHit             bool
	// Fallbacks lists the stages whose topology lookups missed.
	Fallbacks []string

	RadarContacts    int
	OperatorMessages int
}
