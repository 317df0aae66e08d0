// Package comms models the airframe's communication hub: link
// configuration, ground operators, radar contacts and the latency a message
// incurs crossing the physical topology to the radio.
package comms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/internal/logging"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
	"github.com/signalsfoundry/uav-ooda-simulator/timectrl"
)

var ErrUnknownOperator = errors.New("unknown operator")

// Priority is the bandwidth class the hub should configure for.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Cycle-time thresholds used by ProcessCycle.
const (
	highPriorityCycle   = 100 * time.Millisecond
	mediumPriorityCycle = 500 * time.Millisecond
)

// Link is a configured link and its activity state.
type Link struct {
	Type       model.LinkType
	Encrypted  bool
	LastActive time.Time
}

// Hub is the communication collaborator of the OODA loop. Each simulated
// UAV owns one; methods are safe for concurrent use so that telemetry
// readers can inspect a hub while its loop runs.
type Hub struct {
	mu sync.RWMutex

	primary  Link
	backups  []Link
	priority Priority

	operators []model.Operator
	contacts  []model.RadarContact
	beacons   []model.NavigationBeacon

	topology *physical.Topology

	clock timectrl.SimClock
	log   logging.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock sets the clock used for heartbeats and activity stamps.
func WithClock(c timectrl.SimClock) Option {
	return func(h *Hub) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithTopology attaches the airframe topology up front.
func WithTopology(t *physical.Topology) Option {
	return func(h *Hub) { h.topology = t }
}

// NewHub returns a hub whose primary link is primary.
func NewHub(primary model.LinkType, encrypted bool, opts ...Option) *Hub {
	h := &Hub{
		primary:  Link{Type: primary, Encrypted: encrypted},
		priority: PriorityMedium,
		clock:    timectrl.WallClock{},
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PrimaryLink returns the current primary link.
func (h *Hub) PrimaryLink() Link {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary
}

// SetPrimaryLink reconfigures the primary link, keeping its encryption flag.
func (h *Hub) SetPrimaryLink(lt model.LinkType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setPrimaryLocked(lt)
}

func (h *Hub) setPrimaryLocked(lt model.LinkType) {
	if h.primary.Type == lt {
		return
	}
	h.log.Debug(context.Background(), "primary link reconfigured",
		logging.String("from", h.primary.Type.String()),
		logging.String("to", lt.String()),
	)
	h.primary.Type = lt
	h.primary.LastActive = h.clock.Now()
}

// AddBackupLink registers a fallback link.
func (h *Hub) AddBackupLink(lt model.LinkType, encrypted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backups = append(h.backups, Link{Type: lt, Encrypted: encrypted})
}

// BackupLinks returns a copy of the fallback links.
func (h *Hub) BackupLinks() []Link {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Link(nil), h.backups...)
}

// Priority is the priority most recently applied by AdjustLinks.
func (h *Hub) Priority() Priority {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.priority
}

// AdjustLinks reconfigures the primary link for the given priority: high
// bandwidth WiFi Direct, reliable MAVLink, or long-range LoRa.
func (h *Hub) AdjustLinks(p Priority) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.priority = p
	switch p {
	case PriorityHigh:
		h.setPrimaryLocked(model.WiFiDirect(100, 36))
	case PriorityMedium:
		h.setPrimaryLocked(model.MAVLink(2, 500))
	default:
		h.setPrimaryLocked(model.LoRa(915, 10))
	}
}

// ProcessCycle derives a priority from the last OODA cycle time and applies
// it. Fast cycles need bandwidth; slow ones favour range.
func (h *Hub) ProcessCycle(cycle time.Duration) Priority {
	var p Priority
	switch {
	case cycle < highPriorityCycle:
		p = PriorityHigh
	case cycle < mediumPriorityCycle:
		p = PriorityMedium
	default:
		p = PriorityLow
	}
	h.AdjustLinks(p)
	return p
}

// AddOperator registers an operator with a fresh heartbeat.
func (h *Hub) AddOperator(id string, clearance uint8, links []model.LinkType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.operators = append(h.operators, model.Operator{
		ID:             id,
		ClearanceLevel: clearance,
		AssignedLinks:  append([]model.LinkType(nil), links...),
		LastHeartbeat:  h.clock.Now(),
	})
}

// Heartbeat refreshes an operator's last heartbeat.
func (h *Hub) Heartbeat(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.operators {
		if h.operators[i].ID == id {
			h.operators[i].LastHeartbeat = h.clock.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownOperator, id)
}

// Operators returns a copy of the registered operators.
func (h *Hub) Operators() []model.Operator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.Operator(nil), h.operators...)
}

// ActiveOperators counts operators heard from within window.
func (h *Hub) ActiveOperators(window time.Duration) int {
	now := h.clock.Now()
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, o := range h.operators {
		if o.Active(now, window) {
			n++
		}
	}
	return n
}

// AddRadarContact appends a contact.
func (h *Hub) AddRadarContact(c model.RadarContact) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contacts = append(h.contacts, c)
}

// SetRadarContacts replaces the live contact list.
func (h *Hub) SetRadarContacts(cs []model.RadarContact) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contacts = append([]model.RadarContact(nil), cs...)
}

// ClearRadarContacts drops all contacts.
func (h *Hub) ClearRadarContacts() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contacts = nil
}

// RadarContacts returns a copy of the live contact list.
func (h *Hub) RadarContacts() []model.RadarContact {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.RadarContact(nil), h.contacts...)
}

// LogBeacon records a navigation beacon fix.
func (h *Hub) LogBeacon(b model.NavigationBeacon) {
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = h.clock.Now()
	}
	h.mu.Lock()
	h.beacons = append(h.beacons, b)
	h.mu.Unlock()

	h.log.Debug(context.Background(), "beacon logged",
		logging.String("beacon_id", b.ID),
		logging.Float64("signal_strength", b.SignalStrength),
	)
}

// Beacons returns a copy of the logged beacons.
func (h *Hub) Beacons() []model.NavigationBeacon {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.NavigationBeacon(nil), h.beacons...)
}

// Topology returns the attached airframe topology, or nil.
func (h *Hub) Topology() *physical.Topology {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.topology
}

// SetTopology attaches the airframe topology shared with the OODA loop.
func (h *Hub) SetTopology(t *physical.Topology) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topology = t
}
