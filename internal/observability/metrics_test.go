package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/rf-propagation-sim/core"
)

func TestUnaryInterceptorRecordsCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	if _, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("interceptor returned error: %v", err)
	}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("rfsim_grpc_requests_total OK = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("rfsim_grpc_requests_total NotFound = %v, want 1", got)
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/grpc.health.v1.Health/Watch", "Health", "Watch"},
		{"/Svc/Do", "Svc", "Do"},
		{"garbage", "unknown", "unknown"},
		{"", "unknown", "unknown"},
	}
	for _, tt := range tests {
		service, method := SplitMethod(tt.in)
		if service != tt.service || method != tt.method {
			t.Fatalf("SplitMethod(%q) = %q, %q, want %q, %q", tt.in, service, method, tt.service, tt.method)
		}
	}
}

func TestEngineMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveStep("floor-1", 3*time.Millisecond, 0.5)
	collector.ObserveStep("floor-1", 2*time.Millisecond, 1.0)
	collector.IncSkippedSteps()
	collector.SetSceneObjects("floor-1", 4)
	collector.ObserveConfigurationLoad(nil)
	collector.ObserveConfigurationLoad(context.Canceled)

	if got := testutil.ToFloat64(collector.Steps.WithLabelValues("floor-1")); got != 2 {
		t.Fatalf("steps = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SimulationTime); got != 1.0 {
		t.Fatalf("simulation time = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SkippedSteps); got != 1 {
		t.Fatalf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SceneObjects.WithLabelValues("floor-1")); got != 4 {
		t.Fatalf("scene objects = %v, want 4", got)
	}
	if ok, bad := testutil.ToFloat64(collector.ConfigLoads.WithLabelValues("ok")), testutil.ToFloat64(collector.ConfigLoads.WithLabelValues("error")); ok != 1 || bad != 1 {
		t.Fatalf("config loads ok=%v error=%v", ok, bad)
	}
	if count := histogramSampleCount(t, reg, "rfsim_step_duration_seconds", nil); count != 2 {
		t.Fatalf("step duration samples = %d, want 2", count)
	}
}

func TestObserveLinks(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveLinks("lab", []core.LinkResult{
		{TransmitterID: "ap", ReceiverID: "a", PathLossDb: 60, Viable: true},
		{TransmitterID: "ap", ReceiverID: "b", PathLossDb: 95},
		{TransmitterID: "ap", ReceiverID: "c", PathLossDb: 70, Viable: true},
	})

	if got := testutil.ToFloat64(collector.LinksViable.WithLabelValues("lab")); got != 2 {
		t.Fatalf("viable = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.LinksTotal.WithLabelValues("lab")); got != 3 {
		t.Fatalf("total = %v, want 3", got)
	}
	if count := histogramSampleCount(t, reg, "rfsim_link_path_loss_db", map[string]string{"scene": "lab"}); count != 3 {
		t.Fatalf("path loss samples = %d, want 3", count)
	}
}

func TestNewEngineCollectorTwiceSharesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}

	second.IncSkippedSteps()
	if got := testutil.ToFloat64(first.SkippedSteps); got != 1 {
		t.Fatalf("first collector skipped = %v, want shared series", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *EngineCollector
	c.ObserveStep("s", time.Millisecond, 1)
	c.IncSkippedSteps()
	c.SetSceneObjects("s", 1)
	c.ObserveConfigurationLoad(nil)
	c.ObserveLinks("s", nil)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector gatherer should be nil")
	}
}

func TestMetricsHandlerExposesEngineSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.ObserveStep("floor-1", time.Millisecond, 0.5)
	collector.SetSceneObjects("floor-1", 3)
	collector.ObserveConfigurationLoad(nil)
	collector.ObserveLinks("floor-1", []core.LinkResult{{PathLossDb: 72, Viable: true}})
	collector.RPCRequests.WithLabelValues("Health", "Check", "OK").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"rfsim_steps_total",
		"rfsim_step_duration_seconds",
		"rfsim_simulation_time_seconds",
		"rfsim_scene_objects",
		"rfsim_configuration_loads_total",
		"rfsim_link_path_loss_db",
		"rfsim_links_viable",
		"rfsim_links_total",
		"rfsim_grpc_requests_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, `rfsim_scene_objects{scene="floor-1"} 3`) {
		t.Fatalf("/metrics output missing scene object gauge: %s", body)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
