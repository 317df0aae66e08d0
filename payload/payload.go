// Package payload models the mission payload carried by a UAV.
package payload

import (
	"fmt"
	"sync"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
)

// Type is a mounted payload. The set is closed: SurveillanceCamera,
// LidarScanner and CargoContainer.
type Type interface {
	// ActivePowerW is the draw while operational.
	ActivePowerW() float64
	fmt.Stringer
	isPayload()
}

type SurveillanceCamera struct {
	ResolutionMpx  float64
	ZoomLevel      uint8
	ThermalCapable bool
}

func (SurveillanceCamera) ActivePowerW() float64 { return 45.5 }
func (c SurveillanceCamera) String() string {
	return fmt.Sprintf("camera %.0fMP x%d", c.ResolutionMpx, c.ZoomLevel)
}
func (SurveillanceCamera) isPayload() {}

type LidarScanner struct {
	RangeM            float64
	PointCloudDensity uint32
}

func (LidarScanner) ActivePowerW() float64 { return 120 }
func (l LidarScanner) String() string      { return fmt.Sprintf("lidar %.0fm", l.RangeM) }
func (LidarScanner) isPayload()            {}

type CargoContainer struct {
	MaxWeightKg   float64
	SecureLocking bool
}

func (CargoContainer) ActivePowerW() float64 { return 5 }
func (c CargoContainer) String() string      { return fmt.Sprintf("cargo %.1fkg", c.MaxWeightKg) }
func (CargoContainer) isPayload()            {}

const (
	// standbyFactor is the fraction of draw kept in standby.
	standbyFactor = 0.3
	// highAlertFactor boosts camera draw for continuous high-rate capture.
	highAlertFactor = 1.5
	// lowThreatPowerCeilingW is the draw above which a low-threat situation
	// sends the payload to standby.
	lowThreatPowerCeilingW = 50.0
)

// Manager owns the payload's power state.
type Manager struct {
	mu          sync.Mutex
	payload     Type
	powerW      float64
	operational bool
	highAlert   bool
}

// NewManager returns a manager for p, which may be nil for an empty bay.
// The payload starts powered off.
func NewManager(p Type) *Manager {
	return &Manager{payload: p}
}

// Payload returns the mounted payload, or nil.
func (m *Manager) Payload() Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payload
}

// Activate powers the payload to its active draw. It is a no-op for an
// empty bay.
func (m *Manager) Activate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activateLocked()
}

func (m *Manager) activateLocked() {
	if m.payload == nil {
		return
	}
	m.powerW = m.payload.ActivePowerW()
	m.operational = true
	m.highAlert = false
}

// Standby drops the payload to a reduced draw and marks it not operational.
func (m *Manager) Standby() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerW *= standbyFactor
	m.operational = false
	m.highAlert = false
}

// ToggleOperational switches the payload fully off if it is operational and
// activates it otherwise.
func (m *Manager) ToggleOperational() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.operational {
		m.powerW = 0
		m.operational = false
		m.highAlert = false
		return
	}
	m.activateLocked()
}

// Status reports power draw in watts and whether the payload is operational.
func (m *Manager) Status() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powerW, m.operational
}

// HighAlert reports whether high-alert mode is on.
func (m *Manager) HighAlert() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highAlert
}

// SetHighAlert turns continuous high-rate capture on or off. Only cameras
// support it; other payloads are left unchanged.
func (m *Manager) SetHighAlert(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payload.(SurveillanceCamera); !ok {
		return
	}
	if on {
		m.activateLocked()
		m.powerW = m.payload.ActivePowerW() * highAlertFactor
		m.highAlert = true
		return
	}
	if m.highAlert {
		m.powerW = m.payload.ActivePowerW()
		m.highAlert = false
	}
}

// Configure adapts the payload to the current situation: cameras go to high
// alert under high threat, any payload activates under medium threat, and a
// power-hungry payload stands by under low threat.
func (m *Manager) Configure(s model.Situation) {
	switch s.ThreatLevel {
	case model.ThreatHigh:
		m.SetHighAlert(true)
	case model.ThreatMedium:
		m.Activate()
	case model.ThreatLow:
		if p, _ := m.Status(); p > lowThreatPowerCeilingW {
			m.Standby()
		}
	}
}
