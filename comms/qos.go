package comms

import "time"

// ReliabilityKind is the DDS delivery guarantee.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// DurabilityKind controls whether late joiners receive earlier samples.
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Persistent
)

// History is the sample retention policy. KeepAll ignores Depth.
type History struct {
	KeepAll bool
	Depth   int
}

// QoSProfile is a DDS-style quality-of-service profile for a topic.
type QoSProfile struct {
	Name            string
	Reliability     ReliabilityKind
	Durability      DurabilityKind
	History         History
	Deadline        time.Duration
	LivelinessLease time.Duration
}

// DefaultQoS suits general command traffic.
func DefaultQoS() QoSProfile {
	return QoSProfile{
		Name:            "default",
		Reliability:     Reliable,
		Durability:      Volatile,
		History:         History{Depth: 10},
		Deadline:        100 * time.Millisecond,
		LivelinessLease: time.Second,
	}
}

// CriticalControlQoS suits flight-critical control loops.
func CriticalControlQoS() QoSProfile {
	return QoSProfile{
		Name:            "critical_control",
		Reliability:     Reliable,
		Durability:      TransientLocal,
		History:         History{KeepAll: true},
		Deadline:        5 * time.Millisecond,
		LivelinessLease: 100 * time.Millisecond,
	}
}

// TelemetryQoS suits periodic, loss-tolerant telemetry.
func TelemetryQoS() QoSProfile {
	return QoSProfile{
		Name:            "telemetry",
		Reliability:     BestEffort,
		Durability:      Volatile,
		History:         History{Depth: 5},
		Deadline:        time.Second,
		LivelinessLease: 5 * time.Second,
	}
}

// QoSForPriority maps a link priority to the profile the hub publishes with.
func QoSForPriority(p Priority) QoSProfile {
	switch p {
	case PriorityHigh:
		return CriticalControlQoS()
	case PriorityMedium:
		return DefaultQoS()
	default:
		return TelemetryQoS()
	}
}

// QoS returns the profile for the hub's current priority.
func (h *Hub) QoS() QoSProfile {
	return QoSForPriority(h.Priority())
}
