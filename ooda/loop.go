// Package ooda runs the observe, orient, decide and act control cycle of a
// single UAV. Stage delays are derived from the airframe topology when one
// is configured and from fixed constants otherwise.
package ooda

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/uav-ooda-simulator/comms"
	"github.com/signalsfoundry/uav-ooda-simulator/internal/logging"
	"github.com/signalsfoundry/uav-ooda-simulator/markov"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
	"github.com/signalsfoundry/uav-ooda-simulator/sensorfusion"
	"github.com/signalsfoundry/uav-ooda-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/uav-ooda-simulator/ooda"

// OperatorWindow is how recent a heartbeat must be for an operator to count
// as a message in the observation.
const OperatorWindow = 5 * time.Second

var (
	ErrNilEnvironmentModel = errors.New("ooda: environment model is nil")
	ErrNilClock            = errors.New("ooda: clock is nil")
)

// Loop is one UAV's control loop. It owns its environment model and
// decision cache and is not safe for concurrent use; run one Loop per
// goroutine.
type Loop struct {
	vehicleID string
	clock     timectrl.SimClock
	log       logging.Logger
	tracer    trace.Tracer
	metrics   MetricsRecorder
	fusion    Fusion
	gps       GPSReceiver
	topology  *physical.Topology
	env       *markov.EnvironmentModel

	cached     *Decision
	lastCycle  time.Duration
	lastReport CycleReport
	sequence   uint64
}

// Option configures a Loop.
type Option func(*Loop) error

// WithTopology sets the airframe layout used for stage delays. The loop
// also hands it to the comms hub when the hub has none.
func WithTopology(t *physical.Topology) Option {
	return func(l *Loop) error {
		l.topology = t
		return nil
	}
}

func WithClock(c timectrl.SimClock) Option {
	return func(l *Loop) error {
		if c == nil {
			return ErrNilClock
		}
		l.clock = c
		return nil
	}
}

func WithEnvironmentModel(m *markov.EnvironmentModel) Option {
	return func(l *Loop) error {
		if m == nil {
			return ErrNilEnvironmentModel
		}
		l.env = m
		return nil
	}
}

func WithSensorFusion(f Fusion) Option {
	return func(l *Loop) error {
		if f != nil {
			l.fusion = f
		}
		return nil
	}
}

func WithLogger(log logging.Logger) Option {
	return func(l *Loop) error {
		if log != nil {
			l.log = log
		}
		return nil
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(l *Loop) error {
		if m != nil {
			l.metrics = m
		}
		return nil
	}
}

func WithVehicleID(id string) Option {
	return func(l *Loop) error {
		l.vehicleID = id
		return nil
	}
}

// WithGPS attaches a GPS receiver. Without one observations carry no fix.
func WithGPS(g GPSReceiver) Option {
	return func(l *Loop) error {
		l.gps = g
		return nil
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) error {
		if t != nil {
			l.tracer = t
		}
		return nil
	}
}

// NewLoop builds a loop. Without options it uses the default seven-state
// environment model, the wall clock and no topology.
func NewLoop(opts ...Option) (*Loop, error) {
	l := &Loop{
		clock:   timectrl.WallClock{},
		log:     logging.Noop(),
		tracer:  otel.Tracer(tracerName),
		metrics: noopMetrics{},
		fusion:  sensorfusion.New(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	if l.env == nil {
		l.env = markov.NewDefault()
	}
	return l, nil
}

// LastCycleTime is the duration of the most recent cycle, zero before the
// first one.
func (l *Loop) LastCycleTime() time.Duration { return l.lastCycle }

// LastReport describes the most recent cycle.
func (l *Loop) LastReport() CycleReport { return l.lastReport }

// CachedDecision returns the cached decision, if any.
func (l *Loop) CachedDecision() (Decision, bool) {
	if l.cached == nil {
		return Decision{}, false
	}
	return *l.cached, true
}

func (l *Loop) EnvironmentModel() *markov.EnvironmentModel { return l.env }

func (l *Loop) Topology() *physical.Topology { return l.topology }

func (l *Loop) VehicleID() string { return l.vehicleID }

// ExecuteCycle runs one full cycle against the collaborators and returns its
// duration as measured by the loop's clock. Topology misses fall back to
// fixed latencies; a cycle never fails.
func (l *Loop) ExecuteCycle(ctx context.Context, c Comms, p Payload, f FlightControl) time.Duration {
	ctx, log, cycleID := logging.WithCycleLogger(ctx, l.log)
	ctx, span := l.tracer.Start(ctx, "ooda.cycle", trace.WithAttributes(
		attribute.String("vehicle", l.vehicleID),
		attribute.String("cycle_id", cycleID),
	))
	defer span.End()

	l.sequence++
	start := l.clock.Now()
	report := CycleReport{
		CycleID:   cycleID,
		VehicleID: l.vehicleID,
		Sequence:  l.sequence,
		StartedAt: start,
	}

	if l.topology != nil && c.Topology() == nil {
		c.SetTopology(l.topology)
	}

	// Observe.
	_, obsSpan := l.tracer.Start(ctx, "ooda.observe")
	data := l.observe(c, p, start)
	obsLatency, obsFallback := observationLatency(l.topology, data)
	obsSpan.SetAttributes(
		attribute.Int("radar_contacts", len(data.RadarContacts)),
		attribute.Int("operator_messages", data.OperatorMessages),
		attribute.Bool("gps_fix", data.HasGPSFix()),
	)
	obsSpan.End()
	if obsFallback {
		l.fallback(ctx, log, &report, StageObserve)
	}
	l.clock.Sleep(obsLatency)

	// Orient.
	_, orientSpan := l.tracer.Start(ctx, "ooda.orient")
	situation := l.fusion.Analyze(data)
	envIdx := l.ClassifyEnvironment(situation, data)
	if err := l.env.UpdateState(&envIdx); err != nil {
		log.Warn(ctx, "environment update rejected", logging.Int("index", envIdx), logging.Err(err))
	}
	predictedIdx := l.env.PredictNextState()
	observed, _ := l.env.StateName(envIdx)
	predicted, _ := l.env.StateName(predictedIdx)
	orientSpan.SetAttributes(
		attribute.String("threat", situation.ThreatLevel.String()),
		attribute.String("environment", observed),
		attribute.String("predicted_environment", predicted),
	)
	orientSpan.End()

	// Decide.
	_, decideSpan := l.tracer.Start(ctx, "ooda.decide")
	decision, hit := l.DecideWithPrediction(situation, predicted)
	decideSpan.SetAttributes(
		attribute.String("decision", decision.Kind.String()),
		attribute.Bool("cache_hit", hit),
	)
	decideSpan.End()

	// Act.
	_, actSpan := l.tracer.Start(ctx, "ooda.act")
	actLatency, actFallback := l.act(decision, c, p, f)
	actSpan.SetAttributes(attribute.Int64("latency_ns", actLatency.Nanoseconds()))
	actSpan.End()
	if actFallback {
		l.fallback(ctx, log, &report, StageAct)
	}
	l.clock.Sleep(actLatency)

	elapsed := l.clock.Now().Sub(start)
	l.lastCycle = elapsed

	report.Duration = elapsed
	report.ObservationLatency = obsLatency
	report.ActuationLatency = actLatency
	report.Threat = situation.ThreatLevel
	report.ObservedEnvironment = observed
	report.PredictedEnvironment = predicted
	report.Decision = decision
	report.CacheHit = hit
	report.RadarContacts = len(data.RadarContacts)
	report.OperatorMessages = data.OperatorMessages
	l.lastReport = report

	l.metrics.RecordCycle(l.vehicleID, decision.Kind.String(), elapsed, hit)
	l.metrics.SetEnvironmentState(l.vehicleID, l.env.CurrentIndex())
	span.SetAttributes(
		attribute.String("decision", decision.String()),
		attribute.Int64("duration_ns", elapsed.Nanoseconds()),
	)
	log.Debug(ctx, "ooda cycle complete",
		logging.String("vehicle", l.vehicleID),
		logging.String("threat", situation.ThreatLevel.String()),
		logging.String("environment", observed),
		logging.String("predicted", predicted),
		logging.String("decision", decision.String()),
		logging.Any("cache_hit", hit),
		logging.Duration("duration", elapsed),
	)
	return elapsed
}

func (l *Loop) observe(c Comms, p Payload, now time.Time) model.SensorData {
	powerW, operational := p.Status()
	data := model.SensorData{
		IMU:              model.LevelIMU(now),
		RadarContacts:    c.RadarContacts(),
		OperatorMessages: c.ActiveOperators(OperatorWindow),
		Payload:          model.PayloadStatus{PowerW: powerW, Operational: operational},
	}
	if l.gps != nil {
		data.GPS = l.gps.Fix()
	}
	return data
}

func (l *Loop) act(d Decision, c Comms, p Payload, f FlightControl) (time.Duration, bool) {
	switch d.Kind {
	case ChangeAltitude:
		f.AdjustAltitude(d.Magnitude)
		return altitudeLatency(l.topology, d.Magnitude)
	case SwitchPayloadMode:
		p.ToggleOperational()
		return pathOr(l.topology, payloadPath, 1, PayloadFallback)
	case EnhanceCommsReliability:
		c.AdjustLinks(comms.PriorityMedium)
		return pathOr(l.topology, radioPath, 1, CommsFallback)
	case PrepareMeshNetworking:
		c.SetPrimaryLink(model.WiFiDirect(100, 36))
		// Mesh setup negotiates with peers, doubling the internal hop cost.
		return pathOr(l.topology, radioPath, 2, MeshFallback)
	default:
		return 0, false
	}
}

func (l *Loop) fallback(ctx context.Context, log logging.Logger, r *CycleReport, stage string) {
	r.Fallbacks = append(r.Fallbacks, stage)
	l.metrics.RecordLatencyFallback(l.vehicleID, stage)
	log.Debug(ctx, "topology lookup missed, using fixed latency", logging.String("stage", stage))
}
