package telemetry

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/uav-ooda-simulator/internal/observability"
	"github.com/signalsfoundry/uav-ooda-simulator/ooda"
)

type fakeSource map[string]ooda.CycleReport

func (f fakeSource) LastReport(id string) (ooda.CycleReport, bool) {
	r, ok := f[id]
	return r, ok
}

func (f fakeSource) Reports() []ooda.CycleReport {
	out := make([]ooda.CycleReport, 0, len(f))
	for _, r := range f {
		out = append(out, r)
	}
	return out
}

func startServer(t *testing.T, src ReportSource, collector *observability.Collector) (*Server, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(src, collector, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func TestHealthFollowsSetServing(t *testing.T) {
	srv, conn := startServer(t, fakeSource{}, nil)
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v, want NOT_SERVING", resp.GetStatus())
	}

	srv.SetServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestLastReportRPC(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	_, conn := startServer(t, fakeSource{"v-1": sampleReport()}, collector)
	ctx := context.Background()
	method := "/" + ServiceName + "/LastReport"

	req, err := structpb.NewStruct(map[string]any{"vehicle_id": "v-1"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, method, req, resp); err != nil {
		t.Fatalf("LastReport: %v", err)
	}
	if got := resp.GetFields()["cycle_id"].GetStringValue(); got != "c-1" {
		t.Fatalf("cycle_id = %q", got)
	}

	missing, _ := structpb.NewStruct(map[string]any{"vehicle_id": "ghost"})
	err = conn.Invoke(ctx, method, missing, new(structpb.Struct))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("missing vehicle code = %v, want NotFound", status.Code(err))
	}

	err = conn.Invoke(ctx, method, &structpb.Struct{}, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("empty request code = %v, want InvalidArgument", status.Code(err))
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Telemetry", "LastReport", "OK")); got != 1 {
		t.Fatalf("uavsim_grpc_requests_total{OK} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Telemetry", "LastReport", "NotFound")); got != 1 {
		t.Fatalf("uavsim_grpc_requests_total{NotFound} = %v, want 1", got)
	}
}

func TestListReportsRPC(t *testing.T) {
	second := sampleReport()
	second.VehicleID = "v-2"
	_, conn := startServer(t, fakeSource{"v-1": sampleReport(), "v-2": second}, nil)

	resp := new(structpb.ListValue)
	if err := conn.Invoke(context.Background(), "/"+ServiceName+"/ListReports", &emptypb.Empty{}, resp); err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(resp.GetValues()) != 2 {
		t.Fatalf("ListReports returned %d reports, want 2", len(resp.GetValues()))
	}
}
