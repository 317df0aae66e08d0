// Package swarm runs a fleet of independent UAVs. Every UAV owns its loop,
// topology and collaborators; nothing mutable is shared between them, so a
// cycle runs each UAV on its own goroutine.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/uav-ooda-simulator/comms"
	"github.com/signalsfoundry/uav-ooda-simulator/flightcontrol"
	"github.com/signalsfoundry/uav-ooda-simulator/internal/logging"
	"github.com/signalsfoundry/uav-ooda-simulator/kb"
	"github.com/signalsfoundry/uav-ooda-simulator/markov"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/ooda"
	"github.com/signalsfoundry/uav-ooda-simulator/payload"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
	"github.com/signalsfoundry/uav-ooda-simulator/timectrl"
)

var ErrDuplicateName = errors.New("uav name already in use")

// UAVConfig is what a new UAV is built from. Topology and Environment must
// not be shared with another UAV. Nil fields get defaults: no topology, the
// default environment model, a MAVLink hub, a camera payload and the wall
// clock.
type UAVConfig struct {
	// Airframe is a descriptive name recorded in the knowledge base.
	Airframe string

	Topology    *physical.Topology
	Environment *markov.EnvironmentModel
	Hub         *comms.Hub
	Payload     payload.Type
	GPS         ooda.GPSReceiver
	Clock       timectrl.SimClock

	// EmptyBay flies without a payload and overrides Payload.
	EmptyBay bool
}

// UAV is one simulated vehicle.
type UAV struct {
	ID   string
	Name string

	Loop     *ooda.Loop
	Hub      *comms.Hub
	Payload  *payload.Manager
	Flight   *flightcontrol.Controller
	Topology *physical.Topology
}

// Result is the outcome of one UAV's cycle.
type Result struct {
	ID       string
	Name     string
	Duration time.Duration
	Report   ooda.CycleReport
	// Priority is the link priority applied after the cycle. It is only set
	// when the swarm adapts links.
	Priority comms.Priority
}

// Swarm holds the fleet.
type Swarm struct {
	mu   sync.Mutex
	uavs []*UAV

	kb      *kb.KnowledgeBase
	log     logging.Logger
	metrics ooda.MetricsRecorder
	adapt   bool
}

type Option func(*Swarm)

// WithKnowledgeBase registers every UAV and each cycle report in store.
func WithKnowledgeBase(store *kb.KnowledgeBase) Option {
	return func(s *Swarm) { s.kb = store }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Swarm) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics is passed to every loop created by AddUAV.
func WithMetrics(m ooda.MetricsRecorder) Option {
	return func(s *Swarm) { s.metrics = m }
}

// WithLinkAdaptation makes RunCycle feed every cycle back into the UAV: the
// hub re-prioritises its links from the cycle time and the payload is
// configured for the reported threat.
func WithLinkAdaptation() Option {
	return func(s *Swarm) { s.adapt = true }
}

// New returns an empty swarm.
func New(opts ...Option) *Swarm {
	s := &Swarm{log: logging.Noop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUAV builds a UAV named name from cfg and adds it to the fleet.
func (s *Swarm) AddUAV(name string, cfg UAVConfig) (*UAV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.uavs {
		if u.Name == name {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}

	id := uuid.NewString()
	clock := cfg.Clock
	if clock == nil {
		clock = timectrl.WallClock{}
	}
	hub := cfg.Hub
	if hub == nil {
		hub = comms.NewHub(model.MAVLink(2, 1000), true, comms.WithClock(clock))
	}
	var pl payload.Type = payload.SurveillanceCamera{ResolutionMpx: 12, ZoomLevel: 4}
	switch {
	case cfg.EmptyBay:
		pl = nil
	case cfg.Payload != nil:
		pl = cfg.Payload
	}
	log := s.log.With(logging.String("vehicle", name), logging.String("vehicle_id", id))

	opts := []ooda.Option{
		ooda.WithVehicleID(id),
		ooda.WithClock(clock),
		ooda.WithLogger(log),
		ooda.WithTopology(cfg.Topology),
		ooda.WithGPS(cfg.GPS),
	}
	if cfg.Environment != nil {
		opts = append(opts, ooda.WithEnvironmentModel(cfg.Environment))
	}
	if s.metrics != nil {
		opts = append(opts, ooda.WithMetrics(s.metrics))
	}
	loop, err := ooda.NewLoop(opts...)
	if err != nil {
		return nil, fmt.Errorf("uav %q: %w", name, err)
	}

	u := &UAV{
		ID:       id,
		Name:     name,
		Loop:     loop,
		Hub:      hub,
		Payload:  payload.NewManager(pl),
		Flight:   flightcontrol.New(log),
		Topology: cfg.Topology,
	}

	if s.kb != nil {
		airframe := cfg.Airframe
		if airframe == "" {
			airframe = "custom"
		}
		v := kb.Vehicle{ID: id, Name: name, Airframe: airframe, RegisteredAt: clock.Now()}
		if cfg.Topology != nil {
			sum := cfg.Topology.Summary()
			v.Components, v.Connections = sum.Components, sum.Connections
		}
		if err := s.kb.AddVehicle(v); err != nil {
			return nil, err
		}
	}

	s.uavs = append(s.uavs, u)
	s.log.Info(context.Background(), "uav added",
		logging.String("vehicle", name),
		logging.String("vehicle_id", id),
		logging.Any("topology", cfg.Topology != nil),
	)
	return u, nil
}

// UAVs returns the fleet ordered by name.
func (s *Swarm) UAVs() []*UAV {
	s.mu.Lock()
	out := append([]*UAV(nil), s.uavs...)
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len is the fleet size.
func (s *Swarm) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uavs)
}

// RunCycle executes one cycle on every UAV concurrently and returns the
// results ordered by name. It returns ctx.Err() without running anything if
// ctx is already done. Concurrent RunCycle calls on the same swarm are not
// supported.
func (s *Swarm) RunCycle(ctx context.Context) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uavs := s.UAVs()
	results := make([]Result, len(uavs))

	var wg sync.WaitGroup
	for i, u := range uavs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := u.Loop.ExecuteCycle(ctx, u.Hub, u.Payload, u.Flight)
			r := Result{ID: u.ID, Name: u.Name, Duration: d, Report: u.Loop.LastReport()}
			if s.adapt {
				r.Priority = u.Hub.ProcessCycle(d)
				u.Payload.Configure(model.Situation{ThreatLevel: r.Report.Threat})
			}
			results[i] = r
		}()
	}
	wg.Wait()

	if s.kb != nil {
		for _, r := range results {
			if err := s.kb.RecordCycle(r.ID, r.Report); err != nil {
				s.log.Warn(ctx, "failed to record cycle", logging.String("vehicle", r.Name), logging.Err(err))
			}
		}
	}
	return results, nil
}
