// Package kb is the in-memory fleet registry: which vehicles exist, what
// airframe they fly and what their last control cycle decided.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/ooda"
)

var (
	ErrVehicleExists   = errors.New("vehicle already registered")
	ErrVehicleNotFound = errors.New("vehicle not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventVehicleAdded EventType = iota
	EventCycleRecorded
)

func (t EventType) String() string {
	switch t {
	case EventVehicleAdded:
		return "vehicle_added"
	case EventCycleRecorded:
		return "cycle_recorded"
	default:
		return "unknown"
	}
}

// Vehicle is the registry entry for one simulated UAV.
type Vehicle struct {
	ID           string
	Name         string
	Airframe     string
	Components   int
	Connections  int
	RegisteredAt time.Time

	Cycles     uint64
	LastReport *ooda.CycleReport
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type    EventType
	Vehicle Vehicle
}

type subscriber struct {
	id int
	fn func(Event)
}

// KnowledgeBase is an in-memory, thread-safe vehicle store.
type KnowledgeBase struct {
	mu sync.RWMutex

	vehicles map[string]*Vehicle

	subs    []subscriber
	nextSub int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		vehicles: make(map[string]*Vehicle),
	}
}

// AddVehicle registers v. The ID must be unique.
func (kb *KnowledgeBase) AddVehicle(v Vehicle) error {
	kb.mu.Lock()
	if _, exists := kb.vehicles[v.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrVehicleExists, v.ID)
	}
	stored := v
	stored.LastReport = nil
	stored.Cycles = 0
	kb.vehicles[v.ID] = &stored
	event := Event{Type: EventVehicleAdded, Vehicle: stored}
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// GetVehicle returns a copy of the vehicle with the given ID.
func (kb *KnowledgeBase) GetVehicle(id string) (Vehicle, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	v, ok := kb.vehicles[id]
	if !ok {
		return Vehicle{}, fmt.Errorf("%w: %q", ErrVehicleNotFound, id)
	}
	return copyVehicle(v), nil
}

// ListVehicles returns a snapshot of all vehicles ordered by name, then ID.
func (kb *KnowledgeBase) ListVehicles() []Vehicle {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]Vehicle, 0, len(kb.vehicles))
	for _, v := range kb.vehicles {
		res = append(res, copyVehicle(v))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// RecordCycle stores the latest cycle report of a vehicle and notifies
// subscribers.
func (kb *KnowledgeBase) RecordCycle(id string, report ooda.CycleReport) error {
	kb.mu.Lock()
	v, ok := kb.vehicles[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrVehicleNotFound, id)
	}
	r := report
	r.Fallbacks = append([]string(nil), report.Fallbacks...)
	v.LastReport = &r
	v.Cycles++
	event := Event{Type: EventCycleRecorded, Vehicle: copyVehicle(v)}
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
	return nil
}

// LastReport returns the most recent report of a vehicle.
func (kb *KnowledgeBase) LastReport(id string) (ooda.CycleReport, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	v, ok := kb.vehicles[id]
	if !ok || v.LastReport == nil {
		return ooda.CycleReport{}, false
	}
	return *v.LastReport, true
}

// Reports returns the latest report of every vehicle that has one, ordered
// like ListVehicles.
func (kb *KnowledgeBase) Reports() []ooda.CycleReport {
	var out []ooda.CycleReport
	for _, v := range kb.ListVehicles() {
		if v.LastReport != nil {
			out = append(out, *v.LastReport)
		}
	}
	return out
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs = append(kb.subs, subscriber{id: id, fn: fn})

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		for i, s := range kb.subs {
			if s.id == id {
				kb.subs = append(kb.subs[:i], kb.subs[i+1:]...)
				return
			}
		}
	}
}

// snapshotSubs copies the subscriber list. Callers hold the lock.
func (kb *KnowledgeBase) snapshotSubs() []subscriber {
	return append([]subscriber(nil), kb.subs...)
}

func notify(subs []subscriber, e Event) {
	for _, s := range subs {
		s.fn(e)
	}
}

func copyVehicle(v *Vehicle) Vehicle {
	out := *v
	if v.LastReport != nil {
		r := *v.LastReport
		out.LastReport = &r
	}
	return out
}
