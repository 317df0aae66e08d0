package model

import "time"

// RadarContact is an object detected by the airframe's radar or reported
// over a link.
type RadarContact struct {
	DistanceM        float64
	BearingDeg       float64
	RelativeSpeedMps float64
	// ViaLink is the link that delivered the contact.
	ViaLink LinkType
}

// Operator is a ground operator bound to one or more links.
type Operator struct {
	ID             string
	ClearanceLevel uint8
	AssignedLinks  []LinkType
	// LastHeartbeat is zero if the operator has never been heard from.
	LastHeartbeat time.Time
}

// Active reports whether the operator's last heartbeat is younger than
// window at now.
func (o Operator) Active(now time.Time, window time.Duration) bool {
	if o.LastHeartbeat.IsZero() {
		return false
	}
	return now.Sub(o.LastHeartbeat) < window
}

// NavigationBeacon is a ground beacon fix received over a link.
type NavigationBeacon struct {
	ID             string
	Position       [2]float64
	SignalStrength float64
	LinkUsed       LinkType
	ReceivedAt     time.Time
}
