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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/rf-propagation-sim/engine"
	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/internal/observability"
	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/timectrl"
)

// healthService is the service name reported by the health server while a
// run is in progress.
const healthService = "rfsim.Engine"

// Config is the command-line surface of rfsim.
type Config struct {
	Source      string
	Scene       string
	LogLevel    string
	LogFormat   string
	Realtime    bool
	MetricsAddr string
	HealthAddr  string
	ReportPath  string
}

func main() {
	envLog := logging.ConfigFromEnv()

	var cfg Config
	flag.StringVar(&cfg.Source, "config", "", "engine document: a file path or an inline YAML payload")
	flag.StringVar(&cfg.Scene, "scene", "", "scene to run; defaults to the document's active scene, then the first one")
	flag.StringVar(&cfg.LogLevel, "log-level", envLog.Level, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", envLog.Format, "log format (text or json)")
	flag.BoolVar(&cfg.Realtime, "realtime", false, "pace ticks against the wall clock")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables it")
	flag.StringVar(&cfg.HealthAddr, "health-addr", "", "TCP address for the gRPC health service; empty disables it")
	flag.StringVar(&cfg.ReportPath, "report", "", "write per-tick link results as CSV to this path; - for stdout")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	var lis net.Listener
	if cfg.HealthAddr != "" {
		lis, err = net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.HealthAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	err = run(ctx, cfg, log, lis)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	if err != nil {
		log.Error(ctx, "rfsim failed", logging.Err(err))
	}
	os.Exit(exitCode(err))
}

// run loads cfg.Source, runs it to completion and tears down the servers
// it started. lis may be nil to skip the health service.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	log = logging.OrNoop(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := observability.NewEngineCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)
	defer shutdownHTTP(metricsSrv)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	if lis != nil {
		server := grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(
				observability.RunIDUnaryServerInterceptor(log),
				collector.UnaryServerInterceptor(),
			),
		)
		healthpb.RegisterHealthServer(server, healthSrv)
		log.Info(ctx, "serving gRPC health", logging.String("addr", lis.Addr().String()))
		go func() {
			if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Warn(context.Background(), "gRPC server exited", logging.Err(err))
			}
		}()
		// Stop rather than GracefulStop: open Watch streams never drain.
		defer server.Stop()
	}
	defer healthSrv.Shutdown()

	e := engine.New(
		engine.WithLogger(log),
		engine.WithMetrics(collector),
		engine.WithLinkRecorder(collector),
	)
	if err := e.LoadConfiguration(ctx, cfg.Source); err != nil {
		return err
	}
	if err := selectScene(e, cfg.Scene); err != nil {
		return err
	}
	runCfg, ok := e.RunConfig()
	if !ok {
		return fmt.Errorf("%w: configuration has no run section", model.ErrConfiguration)
	}

	opts := []engine.RunnerOption{engine.WithRunLogger(log)}
	if cfg.Realtime {
		opts = append(opts, engine.WithMode(timectrl.RealTime))
	}
	var report *linkReport
	if cfg.ReportPath != "" {
		out, closeOut, err := openReport(cfg.ReportPath)
		if err != nil {
			return err
		}
		defer closeOut()
		report = newLinkReport(e, out)
		opts = append(opts, engine.WithTickHook(report.Hook()))
	}

	runner, err := engine.NewRunner(e, runCfg, opts...)
	if err != nil {
		return err
	}

	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	stats, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	fields := []logging.Field{
		logging.String("scene", e.ActiveScene().Name()),
		logging.Int("iterations", stats.Iterations),
		logging.Float64("simulated_s", stats.SimulatedSeconds),
	}
	if report != nil {
		fields = append(fields, logging.Int("report_rows", report.rows))
	}
	log.Info(ctx, "simulation complete", fields...)
	return nil
}

// selectScene activates name when given. Otherwise the document's active
// scene is kept, falling back to the first registered scene.
func selectScene(e *engine.RFEngine, name string) error {
	if name != "" {
		return e.SetActiveSceneByName(name)
	}
	if e.ActiveScene() != nil {
		return nil
	}
	scenes := e.RegisteredScenes()
	if len(scenes) == 0 {
		return engine.ErrNoActiveScene
	}
	return e.SetActiveScene(scenes[0])
}

func openReport(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating report: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func serveMetrics(addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownHTTP(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
