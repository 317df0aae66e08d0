package scenario

import (
	"fmt"

	"github.com/signalsfoundry/uav-ooda-simulator/comms"
	"github.com/signalsfoundry/uav-ooda-simulator/markov"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/payload"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
)

// BuildTopology assembles the airframe. A preset is built first and any
// listed components and connections are applied on top of it.
func (s *Scenario) BuildTopology() (*physical.Topology, error) {
	var t *physical.Topology
	if s.Topology.Preset == PresetQuadcopter {
		var err error
		if t, err = physical.QuadcopterLayout(); err != nil {
			return nil, err
		}
	} else {
		t = physical.NewTopology()
	}

	for _, c := range s.Topology.Components {
		t.AddComponent(physical.Component{
			ID:       physical.ComponentID(c.ID),
			Position: physical.Position{X: c.Position.X, Y: c.Position.Y, Z: c.Position.Z},
			WeightG:  c.WeightG,
			PowerMW:  c.PowerMW,
			HeatC:    c.HeatC,
		})
	}
	for i, c := range s.Topology.Connections {
		if err := t.Connect(physical.ComponentID(c.From), physical.ComponentID(c.To), c.connectionType()); err != nil {
			return nil, fmt.Errorf("%w: topology.connections[%d]: %w", ErrInvalidScenario, i, err)
		}
	}
	return t, nil
}

func (c ConnectionSpec) connectionType() physical.ConnectionType {
	switch c.Type {
	case "copper":
		return physical.Copper(c.Gauge, c.Wires, c.Shielded)
	case "fiber":
		return physical.FiberOptic(c.SingleMode, c.BandwidthGbps)
	case "pcb":
		return physical.PcbTrace(c.WidthMils, c.Layers)
	default:
		return physical.Wireless(c.FrequencyMHz, c.TxPowerMW)
	}
}

// BuildEMC returns the emission profile, or nil when the scenario has none.
func (s *Scenario) BuildEMC() *physical.EmcProfile {
	if s.EMC == nil {
		return nil
	}
	p := physical.NewEmcProfile()
	if s.EMC.Preset == PresetQuadcopter {
		p = physical.QuadcopterEMCProfile()
	}
	for _, src := range s.EMC.Sources {
		p.AddSource(physical.EmissionSource{
			Component:   physical.ComponentID(src.Component),
			Type:        emissionType(src.Emission, src.FrequencyMHz),
			Strength:    src.Strength,
			FalloffRate: src.Falloff,
		})
	}
	for _, sus := range s.EMC.Susceptibility {
		p.SetSusceptibility(physical.ComponentID(sus.Component), emissionType(sus.Emission, sus.FrequencyMHz), sus.Factor)
	}
	return p
}

func emissionType(kind string, mhz uint32) physical.EmissionType {
	switch kind {
	case "magnetic":
		return physical.Magnetic
	case "electrical":
		return physical.Electrical
	default:
		return physical.RadioFrequency(mhz)
	}
}

// BuildEnvironmentModel builds the configured Markov model, or the default
// seven-state model when none is configured. A configured seed takes
// precedence over opts.
func (s *Scenario) BuildEnvironmentModel(opts ...markov.Option) (*markov.EnvironmentModel, error) {
	env := s.Environment
	if env == nil {
		return markov.New(markov.DefaultEnvironmentStates(), markov.DefaultTransitionMatrix(), 0, opts...)
	}

	initial := 0
	if env.Initial != "" {
		found := false
		for i, st := range env.States {
			if st == env.Initial {
				initial, found = i, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: environment.initial %q is not a listed state", ErrInvalidScenario, env.Initial)
		}
	}
	if env.Seed != nil {
		opts = append(opts, markov.WithSeed(*env.Seed))
	}

	m, err := markov.New(env.States, env.Transitions, initial, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrInvalidScenario, err)
	}
	return m, nil
}

// BuildHub builds the comms hub with its operators and initial radar
// picture. Online operators are heartbeated against the hub clock.
func (s *Scenario) BuildHub(opts ...comms.Option) (*comms.Hub, error) {
	primary := model.MAVLink(2, 1000)
	if s.Comms.Primary != nil {
		primary = s.Comms.Primary.linkType()
	}

	h := comms.NewHub(primary, s.Comms.Encrypted, opts...)
	for _, b := range s.Comms.Backups {
		h.AddBackupLink(b.linkType(), s.Comms.Encrypted)
	}
	for _, op := range s.Comms.Operators {
		links := make([]model.LinkType, 0, len(op.Links))
		for _, l := range op.Links {
			links = append(links, l.linkType())
		}
		h.AddOperator(op.ID, op.Clearance, links)
		if op.Online {
			if err := h.Heartbeat(op.ID); err != nil {
				return nil, fmt.Errorf("%w: operator %q: %w", ErrInvalidScenario, op.ID, err)
			}
		}
	}

	contacts := make([]model.RadarContact, 0, len(s.Comms.RadarContacts))
	for _, c := range s.Comms.RadarContacts {
		contacts = append(contacts, model.RadarContact{
			DistanceM:        c.DistanceM,
			BearingDeg:       c.BearingDeg,
			RelativeSpeedMps: c.RelativeSpeedMps,
			ViaLink:          primary,
		})
	}
	h.SetRadarContacts(contacts)
	return h, nil
}

func (l LinkSpec) linkType() model.LinkType {
	switch l.Kind {
	case "lora":
		return model.LoRa(l.FrequencyMHz, l.SpreadingFactor)
	case "wifi_direct":
		return model.WiFiDirect(l.BandwidthMbps, l.Channel)
	case "military":
		return model.MilitaryEncrypted(l.KeyRotationMinutes, l.CipherSuite)
	default:
		return model.MAVLink(l.Version, l.HeartbeatMs)
	}
}

// BuildPayload returns the mounted payload, or nil for an empty bay. The
// default is a 12MP camera.
func (s *Scenario) BuildPayload() payload.Type {
	p := s.Payload
	if p == nil {
		return payload.SurveillanceCamera{ResolutionMpx: 12, ZoomLevel: 4}
	}
	switch p.Kind {
	case "camera":
		return payload.SurveillanceCamera{ResolutionMpx: p.ResolutionMpx, ZoomLevel: p.ZoomLevel, ThermalCapable: p.ThermalCapable}
	case "lidar":
		return payload.LidarScanner{RangeM: p.RangeM, PointCloudDensity: p.PointCloudDensity}
	case "cargo":
		return payload.CargoContainer{MaxWeightKg: p.MaxWeightKg, SecureLocking: p.SecureLocking}
	default:
		return nil
	}
}

// GPSFix returns the configured fix, or nil when the scenario flies without
// GPS.
func (s *Scenario) GPSFix() *model.GPSPosition {
	if s.GPS == nil {
		return nil
	}
	return &model.GPSPosition{
		Latitude:  s.GPS.Latitude,
		Longitude: s.GPS.Longitude,
		AltitudeM: s.GPS.AltitudeM,
		AccuracyM: s.GPS.AccuracyM,
	}
}

// Default is the built-in scenario: one reference quadcopter with its EMC
// profile and the default environment model.
func Default() *Scenario {
	return &Scenario{
		Name:     "quadcopter",
		Vehicles: 1,
		Topology: TopologySpec{Preset: PresetQuadcopter},
		EMC:      &EMCSpec{Preset: PresetQuadcopter},
		Comms:    CommsSpec{Encrypted: true},
	}
}
