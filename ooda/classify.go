package ooda

import (
	"github.com/signalsfoundry/uav-ooda-simulator/markov"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
)

// Default-model indices produced by the classifier. They are clamped to the
// configured state count, so smaller models still receive a valid index.
const (
	envClear       = 0
	envLightRain   = 1
	envHeavyRain   = 2
	envFog         = 3
	envUrbanCanyon = 4
	envForest      = 5
	envMountainous = 6
)

// fastContactMps is the relative speed above which a single contact suggests
// mountainous terrain.
const fastContactMps = 30.0

// ClassifyEnvironment maps the situation and raw sensor data to an
// environment index. The first matching rule wins.
func (l *Loop) ClassifyEnvironment(s model.Situation, data model.SensorData) int {
	n := len(data.RadarContacts)
	var idx int
	switch {
	case n > 3 && !data.HasGPSFix():
		idx = envUrbanCanyon
	case n > 1 && n <= 3 && data.HasGPSFix():
		idx = envForest
	case anyFaster(data.RadarContacts, fastContactMps):
		idx = envMountainous
	default:
		switch s.ThreatLevel {
		case model.ThreatHigh:
			idx = envHeavyRain
		case model.ThreatMedium:
			if n == 0 {
				idx = envFog
			} else {
				idx = envLightRain
			}
		default:
			idx = envClear
		}
	}
	return min(idx, l.env.NumStates()-1)
}

func anyFaster(contacts []model.RadarContact, mps float64) bool {
	for _, c := range contacts {
		if c.RelativeSpeedMps > mps {
			return true
		}
	}
	return false
}

// baselineDecision is the situation-only decision.
func baselineDecision(s model.Situation) Decision {
	if s.ThreatLevel == model.ThreatHigh {
		return NewChangeAltitude(100)
	}
	return NewSwitchPayloadMode()
}

// adjustForPrediction substitutes a communications decision when the
// predicted environment degrades the radio link.
func adjustForPrediction(base Decision, predicted string) Decision {
	switch predicted {
	case markov.StateHeavyRain, markov.StateFog:
		return NewEnhanceCommsReliability()
	case markov.StateUrbanCanyon:
		return NewPrepareMeshNetworking()
	default:
		return base
	}
}

// DecideWithPrediction returns the decision for s given the predicted
// environment label, and whether it came from the cache. A compatible
// cached decision is returned unchanged. Otherwise the prediction may
// override the baseline only at low threat, and the result is cached.
func (l *Loop) DecideWithPrediction(s model.Situation, predicted string) (Decision, bool) {
	if l.cached != nil && l.cached.Compatible(s.ThreatLevel) {
		return *l.cached, true
	}

	chosen := baselineDecision(s)
	if adjusted := adjustForPrediction(chosen, predicted); adjusted != chosen && s.ThreatLevel == model.ThreatLow {
		chosen = adjusted
	}
	l.cached = &chosen
	return chosen, false
}
