// Package scenario loads simulator scenarios from YAML: the airframe
// topology, its EMC profile, the environment model and the comms setup.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario wraps every schema and semantic validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

var validate = validator.New()

// PresetQuadcopter selects the built-in reference airframe.
const PresetQuadcopter = "quadcopter"

// Scenario is the root of a scenario file.
type Scenario struct {
	Name     string `yaml:"name" validate:"required,max=64"`
	Vehicles int    `yaml:"vehicles" validate:"omitempty,min=1,max=256"`

	Topology    TopologySpec     `yaml:"topology"`
	EMC         *EMCSpec         `yaml:"emc" validate:"omitempty"`
	Environment *EnvironmentSpec `yaml:"environment" validate:"omitempty"`
	Comms       CommsSpec        `yaml:"comms"`
	GPS         *GPSSpec         `yaml:"gps" validate:"omitempty"`
	Payload     *PayloadSpec     `yaml:"payload" validate:"omitempty"`
}

type TopologySpec struct {
	Preset      string           `yaml:"preset" validate:"omitempty,oneof=quadcopter"`
	Components  []ComponentSpec  `yaml:"components" validate:"required_without=Preset,dive"`
	Connections []ConnectionSpec `yaml:"connections" validate:"dive"`
}

type PositionSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type ComponentSpec struct {
	ID       string       `yaml:"id" validate:"required"`
	Position PositionSpec `yaml:"position"`
	WeightG  float64      `yaml:"weight_g" validate:"gte=0"`
	PowerMW  float64      `yaml:"power_mw" validate:"gte=0"`
	HeatC    float64      `yaml:"heat_c"`
}

// ConnectionSpec names a medium and its parameters. Only the fields of the
// chosen type are read.
type ConnectionSpec struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required,nefield=From"`
	Type string `yaml:"type" validate:"required,oneof=copper fiber pcb wireless"`

	Gauge    int  `yaml:"gauge"`
	Wires    int  `yaml:"wires" validate:"gte=0"`
	Shielded bool `yaml:"shielded"`

	SingleMode    bool    `yaml:"single_mode"`
	BandwidthGbps float64 `yaml:"bandwidth_gbps" validate:"gte=0"`

	WidthMils int `yaml:"width_mils" validate:"gte=0"`
	Layers    int `yaml:"layers" validate:"gte=0"`

	FrequencyMHz float64 `yaml:"frequency_mhz" validate:"gte=0"`
	TxPowerMW    float64 `yaml:"tx_power_mw" validate:"gte=0"`
}

type EMCSpec struct {
	Preset         string               `yaml:"preset" validate:"omitempty,oneof=quadcopter"`
	Sources        []EmissionSpec       `yaml:"sources" validate:"dive"`
	Susceptibility []SusceptibilitySpec `yaml:"susceptibility" validate:"dive"`
}

type EmissionSpec struct {
	Component    string  `yaml:"component" validate:"required"`
	Emission     string  `yaml:"emission" validate:"required,oneof=magnetic electrical rf"`
	FrequencyMHz uint32  `yaml:"frequency_mhz" validate:"required_if=Emission rf"`
	Strength     float64 `yaml:"strength" validate:"gte=0"`
	Falloff      float64 `yaml:"falloff" validate:"gte=0"`
}

type SusceptibilitySpec struct {
	Component    string  `yaml:"component" validate:"required"`
	Emission     string  `yaml:"emission" validate:"required,oneof=magnetic electrical rf"`
	FrequencyMHz uint32  `yaml:"frequency_mhz" validate:"required_if=Emission rf"`
	Factor       float64 `yaml:"factor" validate:"gte=0"`
}

// EnvironmentSpec defines a Markov environment model. Row sums and shape
// are checked by the model constructor.
type EnvironmentSpec struct {
	States      []string    `yaml:"states" validate:"required,min=1,dive,required"`
	Transitions [][]float64 `yaml:"transitions" validate:"required"`
	Initial     string      `yaml:"initial"`
	Seed        *uint64     `yaml:"seed"`
}

type CommsSpec struct {
	Primary       *LinkSpec      `yaml:"primary" validate:"omitempty"`
	Encrypted     bool           `yaml:"encrypted"`
	Backups       []LinkSpec     `yaml:"backups" validate:"dive"`
	Operators     []OperatorSpec `yaml:"operators" validate:"dive"`
	RadarContacts []ContactSpec  `yaml:"radar_contacts" validate:"dive"`
}

type LinkSpec struct {
	Kind string `yaml:"kind" validate:"required,oneof=mavlink lora wifi_direct military"`

	Version     uint8  `yaml:"version"`
	HeartbeatMs uint32 `yaml:"heartbeat_ms"`

	FrequencyMHz    uint32 `yaml:"frequency_mhz"`
	SpreadingFactor uint8  `yaml:"spreading_factor" validate:"omitempty,min=7,max=12"`

	BandwidthMbps uint32 `yaml:"bandwidth_mbps"`
	Channel       uint8  `yaml:"channel"`

	KeyRotationMinutes uint32 `yaml:"key_rotation_minutes"`
	CipherSuite        string `yaml:"cipher_suite"`
}

type OperatorSpec struct {
	ID        string     `yaml:"id" validate:"required"`
	Clearance uint8      `yaml:"clearance" validate:"max=5"`
	Links     []LinkSpec `yaml:"links" validate:"dive"`
	// Online operators send a heartbeat when the hub is built.
	Online bool `yaml:"online"`
}

type ContactSpec struct {
	DistanceM        float64 `yaml:"distance_m" validate:"gte=0"`
	BearingDeg       float64 `yaml:"bearing_deg" validate:"gte=0,lt=360"`
	RelativeSpeedMps float64 `yaml:"relative_speed_mps"`
}

type GPSSpec struct {
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	AltitudeM float64 `yaml:"altitude_m"`
	AccuracyM float64 `yaml:"accuracy_m" validate:"gte=0"`
}

type PayloadSpec struct {
	Kind string `yaml:"kind" validate:"required,oneof=camera lidar cargo none"`

	ResolutionMpx  float64 `yaml:"resolution_mpx" validate:"gte=0"`
	ZoomLevel      uint8   `yaml:"zoom_level"`
	ThermalCapable bool    `yaml:"thermal_capable"`

	RangeM            float64 `yaml:"range_m" validate:"gte=0"`
	PointCloudDensity uint32  `yaml:"point_cloud_density"`

	MaxWeightKg   float64 `yaml:"max_weight_kg" validate:"gte=0"`
	SecureLocking bool    `yaml:"secure_locking"`
}

// Load decodes and validates a scenario. Unknown keys are rejected.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScenario)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads a scenario from path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks struct tags. Domain constraints such as connection
// parameters and matrix row sums are checked when the parts are built.
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, formatValidationError(err))
	}
	return nil
}

// VehicleCount is the configured fleet size, defaulting to one.
func (s *Scenario) VehicleCount() int {
	if s.Vehicles <= 0 {
		return 1
	}
	return s.Vehicles
}

// formatValidationError reports the first failing field in a readable form.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	e := verrs[0]
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "required_without":
		return fmt.Errorf("%s: required when %s is not set", field, e.Param())
	case "required_if":
		return fmt.Errorf("%s: required when %s", field, e.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s], got %v", field, e.Param(), e.Value())
	case "min", "gte":
		return fmt.Errorf("%s: must be at least %s", field, e.Param())
	case "max", "lte", "lt":
		return fmt.Errorf("%s: must not exceed %s", field, e.Param())
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}
