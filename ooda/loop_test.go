package ooda

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/comms"
	"github.com/signalsfoundry/uav-ooda-simulator/flightcontrol"
	"github.com/signalsfoundry/uav-ooda-simulator/markov"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/payload"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
	"github.com/signalsfoundry/uav-ooda-simulator/sensorfusion"
	"github.com/signalsfoundry/uav-ooda-simulator/timectrl"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// sequence replays fixed samples, cycling when exhausted.
type sequence struct {
	vals []float64
	i    int
}

func (s *sequence) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

type recorder struct {
	mu        sync.Mutex
	cycles    []string
	hits      int
	fallbacks []string
	env       map[string]int
}

func (r *recorder) RecordCycle(_ string, decision string, _ time.Duration, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, decision)
	if hit {
		r.hits++
	}
}

func (r *recorder) RecordLatencyFallback(_ string, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, stage)
}

func (r *recorder) SetEnvironmentState(vehicle string, state int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.env == nil {
		r.env = make(map[string]int)
	}
	r.env[vehicle] = state
}

type rig struct {
	loop   *Loop
	clock  *timectrl.VirtualClock
	hub    *comms.Hub
	pl     *payload.Manager
	flight *flightcontrol.Controller
	rec    *recorder
}

func newRig(t *testing.T, withLayout bool, samples []float64, extra ...Option) *rig {
	t.Helper()

	clock := timectrl.NewVirtualClock(epoch)
	env := markov.NewDefault(markov.WithRandomSource(&sequence{vals: samples}))
	rec := &recorder{}

	opts := []Option{
		WithClock(clock),
		WithEnvironmentModel(env),
		WithMetrics(rec),
		WithVehicleID("uav-1"),
	}
	if withLayout {
		topo, err := physical.QuadcopterLayout()
		if err != nil {
			t.Fatalf("QuadcopterLayout: %v", err)
		}
		opts = append(opts, WithTopology(topo))
	}
	opts = append(opts, extra...)

	loop, err := NewLoop(opts...)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return &rig{
		loop:   loop,
		clock:  clock,
		hub:    comms.NewHub(model.MAVLink(2, 1000), true, comms.WithClock(clock)),
		pl:     payload.NewManager(payload.SurveillanceCamera{ResolutionMpx: 12, ZoomLevel: 4}),
		flight: flightcontrol.New(nil),
		rec:    rec,
	}
}

func (r *rig) cycle() time.Duration {
	return r.loop.ExecuteCycle(context.Background(), r.hub, r.pl, r.flight)
}

func threeContacts() []model.RadarContact {
	return []model.RadarContact{{DistanceM: 100}, {DistanceM: 200}, {DistanceM: 300}}
}

func TestNewLoopRejectsNilModel(t *testing.T) {
	if _, err := NewLoop(WithEnvironmentModel(nil)); !errors.Is(err, ErrNilEnvironmentModel) {
		t.Fatalf("err = %v, want ErrNilEnvironmentModel", err)
	}
	if _, err := NewLoop(WithClock(nil)); !errors.Is(err, ErrNilClock) {
		t.Fatalf("err = %v, want ErrNilClock", err)
	}
}

func TestNewLoopDefaults(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if l.EnvironmentModel().NumStates() != 7 {
		t.Fatalf("default model has %d states, want 7", l.EnvironmentModel().NumStates())
	}
	if l.LastCycleTime() != 0 {
		t.Fatalf("LastCycleTime before any cycle = %v", l.LastCycleTime())
	}
	if _, ok := l.CachedDecision(); ok {
		t.Fatalf("fresh loop should have no cached decision")
	}
}

func TestClassifyEnvironment(t *testing.T) {
	fix := &model.GPSPosition{Latitude: 47.6, Longitude: -122.3}
	n := func(k int) []model.RadarContact {
		return make([]model.RadarContact, k)
	}

	cases := []struct {
		name   string
		threat model.ThreatLevel
		data   model.SensorData
		want   int
	}{
		{"many contacts without gps", model.ThreatHigh, model.SensorData{RadarContacts: n(4)}, envUrbanCanyon},
		{"many contacts with gps fall through", model.ThreatHigh, model.SensorData{RadarContacts: n(4), GPS: fix}, envHeavyRain},
		{"two contacts with gps", model.ThreatLow, model.SensorData{RadarContacts: n(2), GPS: fix}, envForest},
		{"three contacts with gps", model.ThreatHigh, model.SensorData{RadarContacts: n(3), GPS: fix}, envForest},
		{"one fast contact", model.ThreatLow, model.SensorData{RadarContacts: []model.RadarContact{{RelativeSpeedMps: 31}}}, envMountainous},
		{"exactly thirty is not fast", model.ThreatLow, model.SensorData{RadarContacts: []model.RadarContact{{RelativeSpeedMps: 30}}}, envClear},
		{"high threat", model.ThreatHigh, model.SensorData{RadarContacts: n(3)}, envHeavyRain},
		{"medium with no contacts", model.ThreatMedium, model.SensorData{OperatorMessages: 2}, envFog},
		{"medium with one slow contact", model.ThreatMedium, model.SensorData{OperatorMessages: 1, RadarContacts: []model.RadarContact{{RelativeSpeedMps: 5}}}, envLightRain},
		{"medium with one fast contact and gps", model.ThreatMedium, model.SensorData{RadarContacts: []model.RadarContact{{RelativeSpeedMps: 35}}, GPS: fix}, envMountainous},
		{"low", model.ThreatLow, model.SensorData{}, envClear},
	}

	l, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := l.ClassifyEnvironment(model.Situation{ThreatLevel: tc.threat}, tc.data)
			if got != tc.want {
				t.Fatalf("ClassifyEnvironment() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestClassifyEnvironmentClampsToStateCount(t *testing.T) {
	env := markov.MustNew([]string{"a", "b", "c"}, [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}, 0)
	l, err := NewLoop(WithEnvironmentModel(env))
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	data := model.SensorData{RadarContacts: make([]model.RadarContact, 5)}
	if got := l.ClassifyEnvironment(model.Situation{ThreatLevel: model.ThreatHigh}, data); got != 2 {
		t.Fatalf("clamped index = %d, want 2", got)
	}
}

func TestDecideWithPrediction(t *testing.T) {
	cases := []struct {
		name      string
		threat    model.ThreatLevel
		predicted string
		want      Decision
	}{
		{"low clear", model.ThreatLow, markov.StateClear, NewSwitchPayloadMode()},
		{"low heavy rain", model.ThreatLow, markov.StateHeavyRain, NewEnhanceCommsReliability()},
		{"low fog", model.ThreatLow, markov.StateFog, NewEnhanceCommsReliability()},
		{"low urban", model.ThreatLow, markov.StateUrbanCanyon, NewPrepareMeshNetworking()},
		{"low forest", model.ThreatLow, markov.StateForest, NewSwitchPayloadMode()},
		{"medium fog keeps baseline", model.ThreatMedium, markov.StateFog, NewSwitchPayloadMode()},
		{"high urban keeps baseline", model.ThreatHigh, markov.StateUrbanCanyon, NewChangeAltitude(100)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := NewLoop()
			if err != nil {
				t.Fatalf("NewLoop: %v", err)
			}
			got, hit := l.DecideWithPrediction(model.Situation{ThreatLevel: tc.threat}, tc.predicted)
			if hit {
				t.Fatalf("fresh loop reported a cache hit")
			}
			if got != tc.want {
				t.Fatalf("decision = %v, want %v", got, tc.want)
			}
			cached, ok := l.CachedDecision()
			if !ok || cached != tc.want {
				t.Fatalf("cached = %v (%v), want %v", cached, ok, tc.want)
			}
		})
	}
}

func TestDecideReusesCompatibleCache(t *testing.T) {
	l, err := NewLoop()
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	low := model.Situation{ThreatLevel: model.ThreatLow}
	medium := model.Situation{ThreatLevel: model.ThreatMedium}
	high := model.Situation{ThreatLevel: model.ThreatHigh}

	if d, _ := l.DecideWithPrediction(low, markov.StateClear); d != NewSwitchPayloadMode() {
		t.Fatalf("first decision = %v", d)
	}
	// Payload switching is reusable at medium threat even when the new
	// prediction would have asked for something else.
	if d, hit := l.DecideWithPrediction(medium, markov.StateFog); !hit || d != NewSwitchPayloadMode() {
		t.Fatalf("medium decision = %v hit=%v, want cached payload switch", d, hit)
	}
	// Not reusable at high threat.
	if d, hit := l.DecideWithPrediction(high, markov.StateClear); hit || d != NewChangeAltitude(100) {
		t.Fatalf("high decision = %v hit=%v, want fresh altitude change", d, hit)
	}
	// Altitude changes are not reusable at low threat.
	if d, hit := l.DecideWithPrediction(low, markov.StateUrbanCanyon); hit || d != NewPrepareMeshNetworking() {
		t.Fatalf("low decision = %v hit=%v, want fresh mesh preparation", d, hit)
	}
	// Mesh preparation sticks at every level.
	if d, hit := l.DecideWithPrediction(high, markov.StateClear); !hit || d != NewPrepareMeshNetworking() {
		t.Fatalf("sticky decision = %v hit=%v", d, hit)
	}
}

func TestExecuteCycleWithoutTopologyUsesDefaults(t *testing.T) {
	r := newRig(t, false, []float64{0})

	got := r.cycle()
	want := DefaultObservationLatency + PayloadFallback
	if got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
	if r.loop.LastCycleTime() != want {
		t.Fatalf("LastCycleTime = %v, want %v", r.loop.LastCycleTime(), want)
	}
	if !r.clock.Now().Equal(epoch.Add(want)) {
		t.Fatalf("clock = %v, want %v", r.clock.Now(), epoch.Add(want))
	}
	if _, on := r.pl.Status(); !on {
		t.Fatalf("payload should have been toggled on")
	}
	if len(r.rec.fallbacks) != 0 {
		t.Fatalf("fallbacks = %v, want none without topology", r.rec.fallbacks)
	}
}

func TestExecuteCycleQuadcopterPayloadSwitch(t *testing.T) {
	r := newRig(t, true, []float64{0})

	got := r.cycle()

	// The IMU has no direct link to the sensor hub on the reference
	// airframe, so observation always falls back. The payload path is
	// 0.4ns of board trace plus 1.41ns of cable.
	want := SensorPathFallback + 2*time.Nanosecond
	if got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}

	rep := r.loop.LastReport()
	if rep.Decision != NewSwitchPayloadMode() || rep.CacheHit {
		t.Fatalf("report decision = %v hit=%v", rep.Decision, rep.CacheHit)
	}
	if rep.ObservedEnvironment != markov.StateClear || rep.PredictedEnvironment != markov.StateClear {
		t.Fatalf("environments = %s -> %s", rep.ObservedEnvironment, rep.PredictedEnvironment)
	}
	if len(rep.Fallbacks) != 1 || rep.Fallbacks[0] != StageObserve {
		t.Fatalf("fallbacks = %v, want [observe]", rep.Fallbacks)
	}
	if rep.CycleID == "" || rep.Sequence != 1 || rep.VehicleID != "uav-1" {
		t.Fatalf("report identity = %+v", rep)
	}
	if r.hub.Topology() != r.loop.Topology() {
		t.Fatalf("loop should hand its topology to a hub without one")
	}
	if len(r.rec.cycles) != 1 || r.rec.cycles[0] != "switch_payload_mode" {
		t.Fatalf("recorded cycles = %v", r.rec.cycles)
	}
}

func TestExecuteCycleHighThreatChangesAltitude(t *testing.T) {
	r := newRig(t, true, []float64{0})
	r.hub.SetRadarContacts(threeContacts())

	got := r.cycle()

	// Motor hops are 9.9cm of cable at 0.5ns/cm plus 100 units of
	// mechanical response at 10ns.
	want := SensorPathFallback + 1005*time.Nanosecond
	if got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
	if r.flight.TargetAltitude() != 100 {
		t.Fatalf("target altitude = %v, want 100", r.flight.TargetAltitude())
	}
	if rep := r.loop.LastReport(); rep.Threat != model.ThreatHigh || rep.ObservedEnvironment != markov.StateHeavyRain {
		t.Fatalf("report = %+v", rep)
	}
}

func TestExecuteCycleHighThreatWithoutTopology(t *testing.T) {
	r := newRig(t, false, []float64{0})
	r.hub.SetRadarContacts(threeContacts())

	if got, want := r.cycle(), DefaultObservationLatency+AltitudeFallback; got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
}

func TestExecuteCyclePredictedFogEnhancesComms(t *testing.T) {
	// 0.87 lands in the fog bucket of the clear row.
	r := newRig(t, true, []float64{0.87})

	got := r.cycle()
	if want := SensorPathFallback + 2*time.Nanosecond; got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
	if r.loop.LastReport().Decision != NewEnhanceCommsReliability() {
		t.Fatalf("decision = %v", r.loop.LastReport().Decision)
	}
	if r.hub.Priority() != comms.PriorityMedium {
		t.Fatalf("hub priority = %v, want medium", r.hub.Priority())
	}
	if r.hub.PrimaryLink().Type != model.MAVLink(2, 500) {
		t.Fatalf("primary link = %v", r.hub.PrimaryLink().Type)
	}
}

func TestExecuteCyclePredictedUrbanPreparesMesh(t *testing.T) {
	// 0.92 lands in the urban canyon bucket of the clear row.
	r := newRig(t, true, []float64{0.92})

	got := r.cycle()
	// Twice the 1.52ns radio path.
	if want := SensorPathFallback + 3*time.Nanosecond; got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
	if r.hub.PrimaryLink().Type != model.WiFiDirect(100, 36) {
		t.Fatalf("primary link = %v", r.hub.PrimaryLink().Type)
	}

	// The mesh decision is reused even when threat escalates.
	r.hub.SetRadarContacts(threeContacts())
	r.cycle()
	rep := r.loop.LastReport()
	if !rep.CacheHit || rep.Decision != NewPrepareMeshNetworking() {
		t.Fatalf("second cycle decision = %v hit=%v", rep.Decision, rep.CacheHit)
	}
	if r.rec.hits != 1 {
		t.Fatalf("recorded cache hits = %d, want 1", r.rec.hits)
	}
	if r.flight.Adjustments() != 0 {
		t.Fatalf("flight controller should not have been touched")
	}
}

func TestExecuteCycleMeshFallbackWithoutTopology(t *testing.T) {
	r := newRig(t, false, []float64{0.92})
	if got, want := r.cycle(), DefaultObservationLatency+MeshFallback; got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
}

func TestExecuteCycleWithGPS(t *testing.T) {
	gps := sensorfusion.NewStaticGPS(model.GPSPosition{Latitude: 47.6, Longitude: -122.3, AccuracyM: 2})
	r := newRig(t, true, []float64{0}, WithGPS(gps))
	r.hub.SetRadarContacts([]model.RadarContact{{DistanceM: 50}, {DistanceM: 80}})

	got := r.cycle()

	// GPS adds 4.24cm of cable and 1cm of trace: 2.52ns on top of the IMU
	// fallback, rounded with the 1.81ns payload path.
	if want := 25003*time.Nanosecond + 2*time.Nanosecond; got != want {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
	if rep := r.loop.LastReport(); rep.ObservedEnvironment != markov.StateForest {
		t.Fatalf("observed = %s, want forest", rep.ObservedEnvironment)
	}
	if r.rec.env["uav-1"] != envForest {
		t.Fatalf("environment gauge = %d, want %d", r.rec.env["uav-1"], envForest)
	}
}

func TestExecuteCycleCountsRecentOperators(t *testing.T) {
	r := newRig(t, false, []float64{0})
	r.hub.AddOperator("op-1", 3, nil)
	if err := r.hub.Heartbeat("op-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	r.cycle()
	rep := r.loop.LastReport()
	if rep.OperatorMessages != 1 || rep.Threat != model.ThreatMedium {
		t.Fatalf("report = %+v, want one operator at medium threat", rep)
	}

	r.clock.Advance(OperatorWindow)
	r.cycle()
	if got := r.loop.LastReport().OperatorMessages; got != 0 {
		t.Fatalf("stale heartbeat still counted: %d", got)
	}
}

func TestExecuteCycleTogglesPayloadEachCycle(t *testing.T) {
	r := newRig(t, false, []float64{0})

	for i := 1; i <= 4; i++ {
		r.cycle()
		_, on := r.pl.Status()
		if want := i%2 == 1; on != want {
			t.Fatalf("cycle %d: operational = %v, want %v", i, on, want)
		}
		if rep := r.loop.LastReport(); rep.Sequence != uint64(i) || rep.CacheHit != (i > 1) {
			t.Fatalf("cycle %d report = %+v", i, rep)
		}
	}
}
