package ooda

import (
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/comms"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
)

// Comms is the communication collaborator. *comms.Hub implements it.
type Comms interface {
	RadarContacts() []model.RadarContact
	ActiveOperators(window time.Duration) int
	AdjustLinks(p comms.Priority)
	SetPrimaryLink(lt model.LinkType)
	Topology() *physical.Topology
	SetTopology(t *physical.Topology)
}

// Payload is the payload collaborator. *payload.Manager implements it.
type Payload interface {
	Status() (powerW float64, operational bool)
	ToggleOperational()
	Activate()
}

// FlightControl is the flight-control collaborator.
// *flightcontrol.Controller implements it.
type FlightControl interface {
	AdjustAltitude(delta float64)
}

// Fusion classifies a snapshot. *sensorfusion.SensorFusion implements it.
type Fusion interface {
	Analyze(data model.SensorData) model.Situation
}

// GPSReceiver supplies the current fix, or nil without one.
type GPSReceiver interface {
	Fix() *model.GPSPosition
}

// MetricsRecorder receives per-cycle measurements.
type MetricsRecorder interface {
	RecordCycle(vehicle, decision string, duration time.Duration, cacheHit bool)
	RecordLatencyFallback(vehicle, stage string)
	SetEnvironmentState(vehicle string, state int)
}

type noopMetrics struct{}

func (noopMetrics) RecordCycle(string, string, time.Duration, bool) {}
func (noopMetrics) RecordLatencyFallback(string, string)            {}
func (noopMetrics) SetEnvironmentState(string, int)                 {}
