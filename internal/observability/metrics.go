package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Collector bundles Prometheus metrics for simulated OODA cycles and the
// telemetry gRPC surface. It satisfies ooda.MetricsRecorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Cycles           *prometheus.CounterVec
	CycleDurations   prometheus.Histogram
	CacheHits        prometheus.Counter
	LatencyFallbacks *prometheus.CounterVec
	EnvironmentState *prometheus.GaugeVec

	TopologyComponents  prometheus.Gauge
	TopologyConnections prometheus.Gauge

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewCollector registers simulator metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uavsim_ooda_cycles_total",
		Help: "Completed OODA cycles, labeled by the decision taken.",
	}, []string{"decision"}), "uavsim_ooda_cycles_total")
	if err != nil {
		return nil, err
	}

	// Simulated cycles run in the tens of microseconds; the upper buckets
	// catch wall-clock runs on a loaded host.
	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "uavsim_ooda_cycle_duration_seconds",
		Help:    "Simulated OODA cycle duration in seconds.",
		Buckets: []float64{1e-5, 2.5e-5, 5e-5, 1e-4, 2.5e-4, 5e-4, 1e-3, 1e-2, 0.1, 1},
	}), "uavsim_ooda_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	hits, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uavsim_ooda_decision_cache_hits_total",
		Help: "Cycles that reused the cached decision.",
	}), "uavsim_ooda_decision_cache_hits_total")
	if err != nil {
		return nil, err
	}

	fallbacks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uavsim_ooda_latency_fallbacks_total",
		Help: "Topology lookups that missed and used a fixed latency, labeled by stage.",
	}, []string{"stage"}), "uavsim_ooda_latency_fallbacks_total")
	if err != nil {
		return nil, err
	}

	envState, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "uavsim_environment_state",
		Help: "Current environment state index per vehicle.",
	}, []string{"vehicle"}), "uavsim_environment_state")
	if err != nil {
		return nil, err
	}

	components, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uavsim_topology_components",
		Help: "Components in the loaded airframe topology.",
	}), "uavsim_topology_components")
	if err != nil {
		return nil, err
	}
	connections, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uavsim_topology_connections",
		Help: "Connections in the loaded airframe topology.",
	}), "uavsim_topology_connections")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uavsim_grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "uavsim_grpc_requests_total")
	if err != nil {
		return nil, err
	}

	rpcDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uavsim_grpc_request_duration_seconds",
		Help:    "gRPC call latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "uavsim_grpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		Cycles:              cycles,
		CycleDurations:      durations,
		CacheHits:           hits,
		LatencyFallbacks:    fallbacks,
		EnvironmentState:    envState,
		TopologyComponents:  components,
		TopologyConnections: connections,
		RPCRequests:         requests,
		RPCDurations:        rpcDurations,
	}, nil
}

// RecordCycle counts a completed cycle. The vehicle is carried by the
// environment gauge only, keeping cycle series bounded by decision kinds.
func (c *Collector) RecordCycle(_ string, decision string, duration time.Duration, cacheHit bool) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(decision).Inc()
	c.CycleDurations.Observe(duration.Seconds())
	if cacheHit {
		c.CacheHits.Inc()
	}
}

func (c *Collector) RecordLatencyFallback(_ string, stage string) {
	if c == nil {
		return
	}
	c.LatencyFallbacks.WithLabelValues(stage).Inc()
}

func (c *Collector) SetEnvironmentState(vehicle string, state int) {
	if c == nil {
		return
	}
	c.EnvironmentState.WithLabelValues(vehicle).Set(float64(state))
}

// SetTopologyCounts publishes the size of the loaded airframe.
func (c *Collector) SetTopologyCounts(components, connections int) {
	if c == nil {
		return
	}
	c.TopologyComponents.Set(float64(components))
	c.TopologyConnections.Set(float64(connections))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.RPCRequests.WithLabelValues(service, method, code).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	return register(reg, vec, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, counter, name)
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, h, name)
}
