// Package flightcontrol is the flight-control collaborator of the OODA
// loop. It tracks commanded altitude and flight mode; attitude control is
// not modelled.
package flightcontrol

import (
	"context"
	"sync"

	"github.com/signalsfoundry/uav-ooda-simulator/internal/logging"
)

// Mode is the autopilot mode.
type Mode int

const (
	Manual Mode = iota
	GPSHold
	Autonomous
	EmergencyLand
)

func (m Mode) String() string {
	switch m {
	case Manual:
		return "manual"
	case GPSHold:
		return "gps_hold"
	case Autonomous:
		return "autonomous"
	case EmergencyLand:
		return "emergency_land"
	default:
		return "unknown"
	}
}

// DefaultStabilityThreshold is the attitude error, in degrees, beyond which
// the airframe is considered unstable.
const DefaultStabilityThreshold = 2.5

type Controller struct {
	mu                 sync.Mutex
	mode               Mode
	targetAltitudeM    float64
	stabilityThreshold float64
	adjustments        int
	log                logging.Logger
}

// New returns a controller in Manual mode at altitude zero.
func New(log logging.Logger) *Controller {
	if log == nil {
		log = logging.Noop()
	}
	return &Controller{
		mode:               Manual,
		stabilityThreshold: DefaultStabilityThreshold,
		log:                log,
	}
}

// AdjustAltitude changes the commanded altitude by delta metres. The target
// never goes below ground level.
func (c *Controller) AdjustAltitude(delta float64) {
	c.mu.Lock()
	c.targetAltitudeM += delta
	if c.targetAltitudeM < 0 {
		c.targetAltitudeM = 0
	}
	c.adjustments++
	target := c.targetAltitudeM
	c.mu.Unlock()

	c.log.Debug(context.Background(), "altitude adjusted",
		logging.Float64("delta_m", delta),
		logging.Float64("target_m", target),
	)
}

func (c *Controller) TargetAltitude() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetAltitudeM
}

// Adjustments counts AdjustAltitude calls.
func (c *Controller) Adjustments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adjustments
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

func (c *Controller) StabilityThreshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stabilityThreshold
}
