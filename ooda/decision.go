package ooda

import (
	"fmt"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
)

// DecisionKind enumerates the actions the loop can take.
type DecisionKind int

const (
	ChangeAltitude DecisionKind = iota
	SwitchPayloadMode
	EnhanceCommsReliability
	PrepareMeshNetworking

	numDecisionKinds
)

func (k DecisionKind) String() string {
	switch k {
	case ChangeAltitude:
		return "change_altitude"
	case SwitchPayloadMode:
		return "switch_payload_mode"
	case EnhanceCommsReliability:
		return "enhance_comms_reliability"
	case PrepareMeshNetworking:
		return "prepare_mesh_networking"
	default:
		return "unknown"
	}
}

// Decision is the output of the decide stage. Magnitude is the altitude
// delta in metres for ChangeAltitude and zero otherwise.
type Decision struct {
	Kind      DecisionKind
	Magnitude float64
}

// NewChangeAltitude returns a ChangeAltitude decision for delta metres.
func NewChangeAltitude(delta float64) Decision {
	return Decision{Kind: ChangeAltitude, Magnitude: delta}
}

func NewSwitchPayloadMode() Decision       { return Decision{Kind: SwitchPayloadMode} }
func NewEnhanceCommsReliability() Decision { return Decision{Kind: EnhanceCommsReliability} }
func NewPrepareMeshNetworking() Decision   { return Decision{Kind: PrepareMeshNetworking} }

func (d Decision) String() string {
	if d.Kind == ChangeAltitude {
		return fmt.Sprintf("%s(%g)", d.Kind, d.Magnitude)
	}
	return d.Kind.String()
}

// reuseTable says whether a cached decision of a kind may be reused at a
// threat level.
//
// Known limitation: predictive decisions (comms reliability, mesh
// networking) are reusable at every threat level and the key ignores the
// predicted environment that produced them. While the threat level stays
// put, a loop keeps returning such a decision after the prediction that
// justified it has changed. This is kept deliberately until the reuse key
// is agreed on.
var reuseTable = [numDecisionKinds][3]bool{
	ChangeAltitude:          {model.ThreatHigh: true},
	SwitchPayloadMode:       {model.ThreatLow: true, model.ThreatMedium: true},
	EnhanceCommsReliability: {true, true, true},
	PrepareMeshNetworking:   {true, true, true},
}

// Compatible reports whether d may be reused at threat level t.
func (d Decision) Compatible(t model.ThreatLevel) bool {
	if d.Kind < 0 || d.Kind >= numDecisionKinds || t < model.ThreatLow || t > model.ThreatHigh {
		return false
	}
	return reuseTable[d.Kind][t]
}
