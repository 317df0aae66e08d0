package telemetry

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/uav-ooda-simulator/internal/logging"
	"github.com/signalsfoundry/uav-ooda-simulator/internal/observability"
	"github.com/signalsfoundry/uav-ooda-simulator/ooda"
)

// ServiceName is the fully-qualified telemetry service. It shares the health
// status reported by SetServing.
const ServiceName = "uavsim.v1.Telemetry"

const requestIDMetadataKey = "x-request-id"

// ReportSource supplies the cycle reports served over gRPC. *kb.KnowledgeBase
// implements it.
type ReportSource interface {
	LastReport(vehicleID string) (ooda.CycleReport, bool)
	Reports() []ooda.CycleReport
}

// Server is the telemetry gRPC endpoint.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	src    ReportSource
	log    logging.Logger
}

// NewServer builds a gRPC server exposing grpc.health.v1 and the telemetry
// service. collector may be nil.
func NewServer(src ReportSource, collector *observability.Collector, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}

	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}

	s := &Server{
		grpc: grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(interceptors...),
		),
		health: health.NewServer(),
		src:    src,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.grpc.RegisterService(&telemetryServiceDesc, s)
	s.SetServing(false)
	return s
}

// SetServing flips the overall and telemetry health status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Stop or GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// LastReport answers {"vehicle_id": "..."} with that vehicle's latest report.
func (s *Server) LastReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["vehicle_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "vehicle_id is required")
	}
	r, ok := s.src.LastReport(id)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no report for vehicle %q", id)
	}
	out, err := ReportToStruct(r)
	if err != nil {
		s.logger(ctx).Error(ctx, "encode report failed", logging.String("vehicle", id), logging.Err(err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ListReports returns the latest report of every vehicle.
func (s *Server) ListReports(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	reports := s.src.Reports()
	values := make([]*structpb.Value, 0, len(reports))
	for _, r := range reports {
		st, err := ReportToStruct(r)
		if err != nil {
			s.logger(ctx).Error(ctx, "encode report failed", logging.String("vehicle", r.VehicleID), logging.Err(err))
			return nil, status.Error(codes.Internal, err.Error())
		}
		values = append(values, structpb.NewStructValue(st))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *Server) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// telemetryService is the handler surface registered under ServiceName.
type telemetryService interface {
	LastReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListReports(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// The service uses well-known message types only, so it is described by
// hand instead of through generated stubs.
var telemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*telemetryService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "LastReport",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				call := func(ctx context.Context, req any) (any, error) {
					return srv.(telemetryService).LastReport(ctx, req.(*structpb.Struct))
				}
				if interceptor == nil {
					return call(ctx, in)
				}
				return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/LastReport"}, call)
			},
		},
		{
			MethodName: "ListReports",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(emptypb.Empty)
				if err := dec(in); err != nil {
					return nil, err
				}
				call := func(ctx context.Context, req any) (any, error) {
					return srv.(telemetryService).ListReports(ctx, req.(*emptypb.Empty))
				}
				if interceptor == nil {
					return call(ctx, in)
				}
				return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListReports"}, call)
			},
		},
	},
	Metadata: "uavsim/v1/telemetry",
}

// RequestIDUnaryServerInterceptor ensures a request_id is present on the
// context, sourcing it from inbound metadata if provided, and attaches a
// per-request logger annotated with request_id and method.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithRequestID(ctx, vals[0])
			}
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		return handler(ctx, req)
	}
}

// TracingUnaryServerInterceptor names the otelgrpc server span after the
// service and method and tags it with the request id.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		span := trace.SpanFromContext(ctx)
		span.SetName(fmt.Sprintf("Telemetry/%s/%s", service, method))

		attrs := []attribute.KeyValue{
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		return resp, err
	}
}
