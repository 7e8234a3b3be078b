package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/rf-propagation-sim/core"
)

// EngineCollector bundles Prometheus metrics for the simulation engine and
// its propagation systems, and the host's gRPC surface.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Steps          *prometheus.CounterVec
	StepDurations  prometheus.Histogram
	SkippedSteps   prometheus.Counter
	SimulationTime prometheus.Gauge
	SceneObjects   *prometheus.GaugeVec
	ConfigLoads    *prometheus.CounterVec

	LinkPathLoss *prometheus.HistogramVec
	LinksViable  *prometheus.GaugeVec
	LinksTotal   *prometheus.GaugeVec

	RPCRequests *prometheus.CounterVec
}

// NewEngineCollector registers the engine metrics against reg, defaulting
// to the global Prometheus registry when nil. Registering twice against
// the same registry returns collectors sharing the existing series.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &EngineCollector{gatherer: gatherer}

	var err error
	if c.Steps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfsim_steps_total",
		Help: "Simulation steps executed, labeled by scene.",
	}, []string{"scene"})); err != nil {
		return nil, err
	}
	if c.StepDurations, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rfsim_step_duration_seconds",
		Help:    "Wall-clock time spent in one simulation step.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})); err != nil {
		return nil, err
	}
	if c.SkippedSteps, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfsim_skipped_steps_total",
		Help: "Step requests ignored because no scene was active.",
	})); err != nil {
		return nil, err
	}
	if c.SimulationTime, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfsim_simulation_time_seconds",
		Help: "Simulated seconds elapsed since the last reset.",
	})); err != nil {
		return nil, err
	}
	if c.SceneObjects, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfsim_scene_objects",
		Help: "Objects in a scene at its last step.",
	}, []string{"scene"})); err != nil {
		return nil, err
	}
	if c.ConfigLoads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfsim_configuration_loads_total",
		Help: "Engine configuration loads, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.LinkPathLoss, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rfsim_link_path_loss_db",
		Help:    "Path loss of evaluated links in dB.",
		Buckets: prometheus.LinearBuckets(30, 10, 12),
	}, []string{"scene"})); err != nil {
		return nil, err
	}
	if c.LinksViable, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfsim_links_viable",
		Help: "Links whose received power met the receiver sensitivity at the last step.",
	}, []string{"scene"})); err != nil {
		return nil, err
	}
	if c.LinksTotal, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfsim_links_total",
		Help: "Transmitter/receiver pairs evaluated at the last step.",
	}, []string{"scene"})); err != nil {
		return nil, err
	}
	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfsim_grpc_requests_total",
		Help: "Handled gRPC requests, labeled by service, method, and status code.",
	}, []string{"service", "method", "code"})); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the gatherer the collector was registered with.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveStep records one engine step.
func (c *EngineCollector) ObserveStep(scene string, wall time.Duration, simulationSeconds float64) {
	if c == nil {
		return
	}
	c.Steps.WithLabelValues(scene).Inc()
	c.StepDurations.Observe(wall.Seconds())
	c.SimulationTime.Set(simulationSeconds)
}

// IncSkippedSteps counts a step request without an active scene.
func (c *EngineCollector) IncSkippedSteps() {
	if c == nil {
		return
	}
	c.SkippedSteps.Inc()
}

// SetSceneObjects updates the object gauge for scene.
func (c *EngineCollector) SetSceneObjects(scene string, objects int) {
	if c == nil {
		return
	}
	c.SceneObjects.WithLabelValues(scene).Set(float64(objects))
}

// ObserveConfigurationLoad counts a load as "ok" or "error".
func (c *EngineCollector) ObserveConfigurationLoad(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ConfigLoads.WithLabelValues(result).Inc()
}

// ObserveLinks records one tick of link results for scene.
func (c *EngineCollector) ObserveLinks(scene string, results []core.LinkResult) {
	if c == nil {
		return
	}
	hist := c.LinkPathLoss.WithLabelValues(scene)
	viable := 0
	for _, r := range results {
		hist.Observe(r.PathLossDb)
		if r.Viable {
			viable++
		}
	}
	c.LinksViable.WithLabelValues(scene).Set(float64(viable))
	c.LinksTotal.WithLabelValues(scene).Set(float64(len(results)))
}

// UnaryServerInterceptor counts unary RPCs by status code.
func (c *EngineCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and
// method, returning "unknown" for parts it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service, method := parts[len(parts)-2], parts[len(parts)-1]
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

// register adds col to reg. If an identical collector is already
// registered, the existing one is returned so its series are shared.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	err := reg.Register(col)
	if err == nil {
		return col, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
		return col, fmt.Errorf("collector already registered with incompatible type: %w", err)
	}
	return col, err
}
