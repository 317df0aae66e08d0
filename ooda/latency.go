package ooda

import (
	"math"
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
)

// Fixed latencies used when no topology is configured or a topology lookup
// misses a connection. Only misses against a configured topology count as
// fallbacks.
const (
	DefaultObservationLatency = 50 * time.Microsecond
	SensorPathFallback        = 25 * time.Microsecond
	AltitudeFallback          = 200 * time.Microsecond
	PayloadFallback           = 100 * time.Microsecond
	CommsFallback             = 150 * time.Microsecond
	MeshFallback              = 300 * time.Microsecond

	// mechanicalNsPerUnit is the actuator response added per unit of
	// altitude change.
	mechanicalNsPerUnit = 10.0
)

// Stage labels reported to the metrics recorder on fallback.
const (
	StageObserve = "observe"
	StageAct     = "act"
)

var (
	imuPath     = []physical.ComponentID{physical.IMU, physical.SensorHub, physical.MainProcessor}
	gpsPath     = []physical.ComponentID{physical.GPS, physical.SensorHub, physical.MainProcessor}
	payloadPath = []physical.ComponentID{physical.MainProcessor, physical.SensorHub, physical.Camera}
	radioPath   = []physical.ComponentID{physical.MainProcessor, physical.CommunicationHub, physical.RadioLink}
)

func nanos(ns float64) time.Duration {
	return time.Duration(math.Round(ns))
}

// observationLatency sums the sensor-to-processor paths exercised by data.
// The second result reports whether any path fell back.
func observationLatency(topo *physical.Topology, data model.SensorData) (time.Duration, bool) {
	if topo == nil {
		return DefaultObservationLatency, false
	}

	paths := [][]physical.ComponentID{imuPath}
	if data.HasGPSFix() {
		paths = append(paths, gpsPath)
	}

	total := 0.0
	fellBack := false
	for _, p := range paths {
		ns, err := topo.PathLatency(p)
		if err != nil {
			ns = float64(SensorPathFallback)
			fellBack = true
		}
		total += ns
	}
	return nanos(total), fellBack
}

// altitudeLatency is the slowest flight-controller to motor hop plus the
// mechanical response for delta.
func altitudeLatency(topo *physical.Topology, delta float64) (time.Duration, bool) {
	if topo == nil {
		return AltitudeFallback, false
	}
	worst := -1.0
	for i := 0; i < physical.MotorCount; i++ {
		ns, err := topo.PathLatency([]physical.ComponentID{physical.FlightController, physical.MotorController(i)})
		if err != nil {
			continue
		}
		worst = math.Max(worst, ns)
	}
	if worst < 0 {
		return AltitudeFallback, true
	}
	return nanos(worst + math.Abs(delta)*mechanicalNsPerUnit), false
}

// pathOr returns the latency of path scaled by factor, or fallback.
func pathOr(topo *physical.Topology, path []physical.ComponentID, factor float64, fallback time.Duration) (time.Duration, bool) {
	if topo == nil {
		return fallback, false
	}
	ns, err := topo.PathLatency(path)
	if err != nil {
		return fallback, true
	}
	return nanos(ns * factor), false
}
