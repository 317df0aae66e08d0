// Package telemetry encodes cycle reports as protobuf well-known types and
// serves them, together with gRPC health, to ground tooling.
package telemetry

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/signalsfoundry/uav-ooda-simulator/ooda"
)

// ReportToStruct flattens a cycle report into a structpb.Struct. Times and
// durations use their canonical protobuf JSON strings.
func ReportToStruct(r ooda.CycleReport) (*structpb.Struct, error) {
	started, err := canonicalJSON(timestamppb.New(r.StartedAt))
	if err != nil {
		return nil, err
	}
	duration, err := canonicalJSON(durationpb.New(r.Duration))
	if err != nil {
		return nil, err
	}

	fallbacks := make([]any, 0, len(r.Fallbacks))
	for _, f := range r.Fallbacks {
		fallbacks = append(fallbacks, f)
	}

	s, err := structpb.NewStruct(map[string]any{
		"cycle_id":               r.CycleID,
		"vehicle_id":             r.VehicleID,
		"sequence":               float64(r.Sequence),
		"started_at":             started,
		"duration":               duration,
		"observation_latency_ns": float64(r.ObservationLatency.Nanoseconds()),
		"actuation_latency_ns":   float64(r.ActuationLatency.Nanoseconds()),
		"threat":                 r.Threat.String(),
		"environment":            r.ObservedEnvironment,
		"predicted_environment":  r.PredictedEnvironment,
		"decision": map[string]any{
			"kind":      r.Decision.Kind.String(),
			"magnitude": r.Decision.Magnitude,
		},
		"cache_hit":         r.CacheHit,
		"fallbacks":         fallbacks,
		"radar_contacts":    float64(r.RadarContacts),
		"operator_messages": float64(r.OperatorMessages),
	})
	if err != nil {
		return nil, fmt.Errorf("encode cycle report: %w", err)
	}
	return s, nil
}

// MarshalReport renders a cycle report as protobuf JSON.
func MarshalReport(r ooda.CycleReport) ([]byte, error) {
	s, err := ReportToStruct(r)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

// canonicalJSON returns the JSON string form of a well-known scalar type,
// e.g. "2025-01-01T00:00:00Z" or "0.000025s".
func canonicalJSON(m proto.Message) (string, error) {
	b, err := protojson.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", m.ProtoReflect().Descriptor().Name(), err)
	}
	var out string
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode %s: %w", m.ProtoReflect().Descriptor().Name(), err)
	}
	return out, nil
}
