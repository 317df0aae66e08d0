package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/uav-ooda-simulator/comms"
	"github.com/signalsfoundry/uav-ooda-simulator/internal/logging"
	"github.com/signalsfoundry/uav-ooda-simulator/internal/observability"
	"github.com/signalsfoundry/uav-ooda-simulator/internal/telemetry"
	"github.com/signalsfoundry/uav-ooda-simulator/kb"
	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/ooda"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
	"github.com/signalsfoundry/uav-ooda-simulator/scenario"
	"github.com/signalsfoundry/uav-ooda-simulator/sensorfusion"
	"github.com/signalsfoundry/uav-ooda-simulator/swarm"
	"github.com/signalsfoundry/uav-ooda-simulator/timectrl"
)

const (
	clockVirtual = "virtual"
	clockWall    = "wall"
)

type config struct {
	scenarioPath string
	uavs         int
	duration     time.Duration
	tick         time.Duration
	accelerated  bool
	clock        string
	metricsAddr  string
	grpcAddr     string
	report       bool
	adapt        bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.scenarioPath, "scenario", "", "path to a YAML scenario; the built-in quadcopter is used when empty")
	flag.IntVar(&cfg.uavs, "uavs", 0, "number of UAVs; overrides the scenario's vehicle count when positive")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "total simulated duration")
	flag.DurationVar(&cfg.tick, "tick", 100*time.Millisecond, "simulated time between OODA cycles")
	flag.BoolVar(&cfg.accelerated, "accelerated", true, "run in accelerated mode (vs real-time)")
	flag.StringVar(&cfg.clock, "clock", clockVirtual, "clock used inside each loop: virtual or wall")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	flag.StringVar(&cfg.grpcAddr, "grpc-addr", "", "TCP address of the telemetry gRPC server (disabled when empty)")
	flag.BoolVar(&cfg.report, "report", false, "print the last cycle report of every UAV as JSON")
	flag.BoolVar(&cfg.adapt, "adapt", true, "re-prioritise links and reconfigure payloads after every cycle")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, log); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, out io.Writer, log logging.Logger) error {
	if cfg.tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", cfg.tick)
	}
	if cfg.clock != clockVirtual && cfg.clock != clockWall {
		return fmt.Errorf("unknown clock %q (want %s or %s)", cfg.clock, clockVirtual, clockWall)
	}

	sc, err := loadScenario(cfg.scenarioPath)
	if err != nil {
		return err
	}
	n := sc.VehicleCount()
	if cfg.uavs > 0 {
		n = cfg.uavs
	}

	tracing := observability.TracingConfigFromEnv()
	tracing.Scenario = sc.Name
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store := kb.NewKnowledgeBase()
	unsubscribe := store.Subscribe(func(e kb.Event) {
		if e.Type == kb.EventVehicleAdded {
			log.Debug(ctx, "vehicle registered",
				logging.String("vehicle", e.Vehicle.Name),
				logging.String("vehicle_id", e.Vehicle.ID),
				logging.Int("components", e.Vehicle.Components),
			)
		}
	})
	defer unsubscribe()

	start := time.Now().UTC()
	opts := []swarm.Option{
		swarm.WithKnowledgeBase(store),
		swarm.WithLogger(log),
		swarm.WithMetrics(collector),
	}
	if cfg.adapt {
		opts = append(opts, swarm.WithLinkAdaptation())
	}
	fleet, err := buildSwarm(sc, n, cfg.clock, start, opts...)
	if err != nil {
		return err
	}
	if uavs := fleet.UAVs(); len(uavs) > 0 {
		if uavs[0].Topology != nil {
			sum := uavs[0].Topology.Summary()
			collector.SetTopologyCounts(sum.Components, sum.Connections)
			logInterference(ctx, log, sc, uavs[0].Topology)
		}
		logLinkBudget(ctx, log, linkBudget(uavs[0].Hub))
		logPositionFix(ctx, log, initialFix(sc, start))
	}

	metricsSrv := serveMetrics(cfg.metricsAddr, collector, log)
	defer func() {
		if metricsSrv == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	var grpcSrv *telemetry.Server
	if cfg.grpcAddr != "" {
		lis, err := net.Listen("tcp", cfg.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.grpcAddr, err)
		}
		grpcSrv = telemetry.NewServer(store, collector, log)
		log.Info(ctx, "starting telemetry gRPC server", logging.String("addr", cfg.grpcAddr))
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Error(ctx, "gRPC server exited", logging.Err(err))
			}
		}()
		grpcSrv.SetServing(true)
		defer grpcSrv.GracefulStop()
	}

	cycles := simulate(ctx, fleet, cfg, start, log)
	log.Info(ctx, "simulation finished",
		logging.String("scenario", sc.Name),
		logging.Int("vehicles", fleet.Len()),
		logging.Int("cycles", cycles),
	)

	if cfg.report {
		if err := writeReports(out, store); err != nil {
			return err
		}
	}

	if (metricsSrv != nil || grpcSrv != nil) && ctx.Err() == nil {
		log.Info(ctx, "serving until interrupted")
		<-ctx.Done()
	}
	return nil
}

func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	return scenario.LoadFile(path)
}

func newClock(mode string, start time.Time) timectrl.SimClock {
	if mode == clockWall {
		return timectrl.WallClock{}
	}
	return timectrl.NewVirtualClock(start)
}

// buildSwarm creates n UAVs from sc. Every UAV gets its own topology,
// environment model, hub and clock.
func buildSwarm(sc *scenario.Scenario, n int, clockMode string, start time.Time, opts ...swarm.Option) (*swarm.Swarm, error) {
	airframe := sc.Topology.Preset
	if airframe == "" {
		airframe = "custom"
	}
	pl := sc.BuildPayload()

	fleet := swarm.New(opts...)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s-%02d", sc.Name, i+1)
		clock := newClock(clockMode, start)

		topo, err := sc.BuildTopology()
		if err != nil {
			return nil, err
		}
		env, err := sc.BuildEnvironmentModel()
		if err != nil {
			return nil, err
		}
		hub, err := sc.BuildHub(comms.WithClock(clock), comms.WithTopology(topo))
		if err != nil {
			return nil, err
		}

		var gps ooda.GPSReceiver
		if fix := sc.GPSFix(); fix != nil {
			gps = sensorfusion.NewStaticGPS(*fix)
		}

		if _, err := fleet.AddUAV(name, swarm.UAVConfig{
			Airframe:    airframe,
			Topology:    topo,
			Environment: env,
			Hub:         hub,
			Payload:     pl,
			GPS:         gps,
			Clock:       clock,
			EmptyBay:    pl == nil,
		}); err != nil {
			return nil, err
		}
	}
	return fleet, nil
}

// simulate drives one swarm cycle per tick until the duration elapses or ctx
// is cancelled, and returns the number of completed cycles.
func simulate(ctx context.Context, fleet *swarm.Swarm, cfg config, start time.Time, log logging.Logger) int {
	mode := timectrl.RealTime
	if cfg.accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(start, cfg.tick, mode)

	var cycles atomic.Int64
	tc.AddListener(func(simTime time.Time) {
		results, err := fleet.RunCycle(ctx)
		if err != nil {
			return
		}
		cycles.Add(1)
		for _, r := range results {
			fields := []logging.Field{
				logging.String("vehicle", r.Name),
				logging.String("decision", r.Report.Decision.String()),
				logging.Duration("duration", r.Duration),
				logging.Any("sim_time", simTime),
			}
			if cfg.adapt {
				fields = append(fields,
					logging.String("link_priority", r.Priority.String()),
					logging.String("qos", comms.QoSForPriority(r.Priority).Name),
				)
			}
			log.Debug(ctx, "cycle complete", fields...)
		}
	})

	select {
	case <-tc.Start(cfg.duration):
	case <-ctx.Done():
		log.Info(ctx, "simulation interrupted")
	}
	return int(cycles.Load())
}

// worstInterference returns the connection with the highest interference
// score. Ties go to the lexically smaller key so the answer is stable.
func worstInterference(impact map[physical.PairKey]float64) (physical.PairKey, float64, bool) {
	var (
		worst physical.PairKey
		score float64
		found bool
	)
	for k, v := range impact {
		if !found || v > score || (v == score && k.String() < worst.String()) {
			worst, score, found = k, v, true
		}
	}
	return worst, score, found
}

func logInterference(ctx context.Context, log logging.Logger, sc *scenario.Scenario, topo *physical.Topology) {
	profile := sc.BuildEMC()
	if profile == nil {
		return
	}
	impact := profile.CalculateInterferenceImpact(topo)
	worst, score, ok := worstInterference(impact)
	if !ok {
		return
	}
	log.Info(ctx, "emc analysis",
		logging.Int("connections", len(impact)),
		logging.String("worst_connection", worst.String()),
		logging.Float64("worst_impact", score),
	)
}

// Reference message for the startup link budget: one report-sized frame to a
// ground station a kilometre out.
const (
	budgetMessageBytes = 1024
	budgetRangeM       = 1000.0
)

func linkBudget(hub *comms.Hub) comms.Transmission {
	return hub.EstimateTransmission(budgetMessageBytes, budgetRangeM)
}

func logLinkBudget(ctx context.Context, log logging.Logger, tx comms.Transmission) {
	log.Info(ctx, "link budget",
		logging.String("link", tx.Link.String()),
		logging.Duration("latency", tx.Total()),
		logging.Duration("internal", tx.Internal),
		logging.Float64("loss_probability", tx.LossProbability),
		logging.Any("fallback", tx.UsedFallback),
	)
}

// initialFix fuses a level IMU reading with the scenario's GPS fix, if any.
func initialFix(sc *scenario.Scenario, at time.Time) sensorfusion.PositionEstimate {
	return sensorfusion.Fuse(model.SensorData{
		IMU: model.LevelIMU(at),
		GPS: sc.GPSFix(),
	}, sensorfusion.DefaultKalmanConfig())
}

func logPositionFix(ctx context.Context, log logging.Logger, est sensorfusion.PositionEstimate) {
	log.Info(ctx, "initial position estimate",
		logging.Float64("x", est.Position.X),
		logging.Float64("y", est.Position.Y),
		logging.Float64("z", est.Position.Z),
		logging.Float64("certainty", est.Certainty),
	)
}

func writeReports(out io.Writer, store *kb.KnowledgeBase) error {
	for _, r := range store.Reports() {
		b, err := telemetry.MarshalReport(r)
		if err != nil {
			return fmt.Errorf("encode report for %s: %w", r.VehicleID, err)
		}
		if _, err := fmt.Fprintln(out, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
