package model

// ThreatLevel is the orient-stage classification of the current situation.
type ThreatLevel int

const (
	ThreatLow ThreatLevel = iota
	ThreatMedium
	ThreatHigh
)

// ThreatLevels lists every level in ascending order.
var ThreatLevels = []ThreatLevel{ThreatLow, ThreatMedium, ThreatHigh}

func (t ThreatLevel) String() string {
	switch t {
	case ThreatLow:
		return "low"
	case ThreatMedium:
		return "medium"
	case ThreatHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Situation is the result of orienting on a SensorData snapshot.
type Situation struct {
	ThreatLevel ThreatLevel
}
