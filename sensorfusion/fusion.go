// Package sensorfusion turns observation snapshots into a threat assessment
// and a fused position estimate.
package sensorfusion

import "github.com/signalsfoundry/uav-ooda-simulator/model"

// Contact counts above which the situation escalates.
const highThreatContacts = 2

// SensorFusion classifies the threat level of a snapshot.
type SensorFusion struct{}

// New returns a SensorFusion.
func New() *SensorFusion { return &SensorFusion{} }

// Analyze returns High when more than two radar contacts are present,
// Medium when any operator message arrived, and Low otherwise.
func (f *SensorFusion) Analyze(data model.SensorData) model.Situation {
	switch {
	case len(data.RadarContacts) > highThreatContacts:
		return model.Situation{ThreatLevel: model.ThreatHigh}
	case data.OperatorMessages > 0:
		return model.Situation{ThreatLevel: model.ThreatMedium}
	default:
		return model.Situation{ThreatLevel: model.ThreatLow}
	}
}
