// Command lagcompd runs the reference simulation with lag compensation and
// streams debug traces to the configured sink.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/OCAP2/lagcomp/internal/api"
	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/internal/lagcomp"
	"github.com/OCAP2/lagcomp/internal/logging"
	"github.com/OCAP2/lagcomp/internal/model"
	"github.com/OCAP2/lagcomp/internal/monitor"
	intOtel "github.com/OCAP2/lagcomp/internal/otel"
	"github.com/OCAP2/lagcomp/internal/simworld"
	"github.com/OCAP2/lagcomp/internal/trace"
)

// BuildDate and Version can be set at build time via ldflags.
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServiceName string = "lagcompd"
)

type options struct {
	configDir string
	scenario  string
	duration  time.Duration
	seed      uint64
}

func main() {
	var opts options
	flag.StringVar(&opts.configDir, "config", ".", "directory containing "+config.FileName)
	flag.StringVar(&opts.scenario, "scenario", "", "scenario YAML file (overrides sim.scenario)")
	flag.DurationVar(&opts.duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	flag.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "target selection seed")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ServiceName, err)
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until ctx is done.
func run(ctx context.Context, opts options) error {
	startedAt := time.Now()

	configMissing := false
	if err := config.Load(opts.configDir); err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			return err
		}
		configMissing = true
	}

	logsDir := config.GetString("logsDir")
	logFile, err := logging.OpenLogFile(logsDir, ServiceName, startedAt)
	if err != nil {
		return err
	}
	defer logFile.Close()

	provider, otelFile, err := setupOTel(ctx, logsDir, startedAt)
	if err != nil {
		return err
	}
	if otelFile != nil {
		defer otelFile.Close()
	}

	// The context provider is installed before the simulation exists and is
	// called from every goroutine that logs.
	var current atomic.Pointer[simulation]
	slogManager := logging.NewSlogManager()
	slogManager.Setup(logFile, config.GetString("logLevel"), provider.LoggerProvider(), func(context.Context) []slog.Attr {
		s := current.Load()
		if s == nil {
			return nil
		}
		return []slog.Attr{
			slog.Int("tick", s.world.Tick()),
			slog.Bool("session", s.ctrl.Active()),
		}
	})
	logger := slogManager.Logger()
	logger.Info("Starting", "service", ServiceName, "version", Version, "buildDate", BuildDate)
	if configMissing {
		logger.Warn("Config file not found, using defaults", "dir", opts.configDir, "file", config.FileName)
	}

	simCfg := config.GetSimConfig()
	scenarioPath := opts.scenario
	if scenarioPath == "" {
		scenarioPath = simCfg.Scenario
	}
	sc, err := simworld.LoadScenario(scenarioPath)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}
	if scenarioPath == "" && simCfg.TickRate > 0 {
		sc.TickRate = simCfg.TickRate
	}

	lc := config.GetLagCompConfig()
	traceCfg := config.GetTraceConfig()

	backend, sinkType, err := trace.Open(traceCfg, trace.Dependencies{
		Info: model.ServerInfo{
			Name:      ServiceName,
			TickRate:  sc.TickRate,
			StartedAt: startedAt,
		},
		DB:     config.GetDBConfig(),
		Influx: config.GetInfluxConfig(),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	pipeline, err := trace.NewPipeline(backend, logger, traceCfg.Buffer)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to start trace pipeline: %w", err)
	}
	logger.Info("Trace sink ready", "type", sinkType)

	var tracer lagcomp.Tracer
	if lc.Debug {
		tracer = pipeline
	}
	sim, err := newSimulation(sc, lc, simCfg.FireInterval, tracer, opts.seed, logger)
	if err != nil {
		_ = pipeline.Close()
		return err
	}
	current.Store(sim)
	logger.Info("Simulation ready",
		"tickRate", sc.TickRate,
		"actors", len(sc.Actors),
		"solids", len(sc.Solids),
		"enabled", lc.Enabled,
		"debug", lc.Debug)

	mon := monitor.NewService(monitor.Dependencies{
		Store:      sim.recorder.Store(),
		Controller: sim.ctrl,
		Trace:      pipeline,
		SinkType:   sinkType,
		Clock:      sim.world,
		Logger:     logger,
		StatusPath: filepath.Join(logsDir, ServiceName+".status.json"),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx, simCfg.StatusEvery)
	}()

	loop(ctx, sim)
	wg.Wait()

	st := mon.Status()
	mon.LogStatus(st)
	if err := mon.WriteStatus(st); err != nil {
		logger.Error("Error writing final status", "error", err)
	}
	logger.Info("Simulation stopped", "shots", sim.shots, "hits", sim.hits)

	if err := pipeline.Close(); err != nil {
		logger.Error("Error closing trace sink", "error", err)
	}
	if exp, ok := backend.(trace.Exporter); ok && exp.ExportedFilePath() != "" {
		path := exp.ExportedFilePath()
		logger.Info("Trace exported", "path", path)
		if up := config.GetUploadConfig(); up.URL != "" {
			uploadTrace(up, path, api.UploadMetadata{
				Name:     ServiceName,
				TickRate: sc.TickRate,
				Sessions: st.Sessions,
				Duration: sim.world.Now(),
				Tag:      up.Tag,
			}, logger)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: otel shutdown: %v\n", ServiceName, err)
	}
	return nil
}

// loop steps the simulation at its tick rate until ctx is done.
func loop(ctx context.Context, sim *simulation) {
	ticker := time.NewTicker(time.Duration(sim.world.TickInterval() * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sim.step()
		}
	}
}

// uploadTrace sends an exported trace to the viewer. Failures are logged; the
// file stays on disk.
func uploadTrace(cfg config.UploadConfig, path string, meta api.UploadMetadata, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := api.New(cfg.URL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Warn("Trace viewer unreachable, skipping upload", "url", cfg.URL, "error", err)
		return
	}
	if err := client.Upload(ctx, path, meta); err != nil {
		logger.Error("Trace upload failed", "path", path, "error", err)
		return
	}
	logger.Info("Trace uploaded", "path", path, "url", cfg.URL)
}

// setupOTel creates the OTel provider. Without an OTLP endpoint log records
// go to a JSON lines file next to the text log.
func setupOTel(ctx context.Context, logsDir string, startedAt time.Time) (*intOtel.Provider, *os.File, error) {
	cfg := config.GetOTelConfig()
	oc := intOtel.Config{
		Enabled:      cfg.Enabled,
		ServiceName:  cfg.ServiceName,
		BatchTimeout: cfg.BatchTimeout,
		Endpoint:     cfg.Endpoint,
		Insecure:     cfg.Insecure,
	}

	var f *os.File
	if cfg.Enabled && cfg.Endpoint == "" {
		var err error
		f, err = logging.OpenLogFile(logsDir, ServiceName+".otel", startedAt)
		if err != nil {
			return nil, nil, err
		}
		oc.LogWriter = f
	}

	p, err := intOtel.New(ctx, oc)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return nil, nil, fmt.Errorf("failed to set up OTel: %w", err)
	}
	return p, f, nil
}
