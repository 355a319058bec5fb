package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailcam/mailcam/internal/config"
	"github.com/mailcam/mailcam/internal/detector"
	"github.com/mailcam/mailcam/internal/fetch"
	"github.com/mailcam/mailcam/internal/health"
	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/model"
	"github.com/mailcam/mailcam/internal/publisher"
	"github.com/mailcam/mailcam/internal/service"
	"github.com/mailcam/mailcam/internal/telemetry"
	"github.com/mailcam/mailcam/internal/tracker"
	"github.com/mailcam/mailcam/internal/vision"
	"github.com/mailcam/mailcam/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	// Load configuration
	configSvc, err := config.NewService(configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := configSvc.Get()

	// Initialize logger
	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	configSvc.SetLogger(log)

	log.Info("Starting mailcam detector",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	// Create main context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	labels, err := model.LoadLabels(cfg.Model.LabelsPath)
	if err != nil {
		log.Error("Failed to load labels", "error", err)
		os.Exit(1)
	}

	invoker, err := model.NewONNXInvoker(cfg.Model.Path, cfg.Model.TensorSide, len(labels))
	if err != nil {
		log.Error("Failed to load detection model", "error", err, "path", cfg.Model.Path)
		os.Exit(1)
	}
	defer invoker.Close()

	allowLabels := make(map[string]bool, len(cfg.Model.AllowLabels))
	for _, label := range cfg.Model.AllowLabels {
		allowLabels[label] = true
	}
	pipeline := vision.NewPipeline(vision.Params{
		TensorSide:   invoker.InputSide(),
		NumClasses:   len(labels),
		ConfMin:      float32(cfg.Model.ConfMin),
		AreaMinFrac:  float32(cfg.Model.AreaMinFrac),
		IoUThreshold: float32(cfg.Model.IoUThreshold),
		Labels:       labels,
		AllowLabels:  allowLabels,
	})

	track := tracker.New(cfg.Model.AllowLabels, cfg.Tracker.ResetHour, time.Now())
	fetcher := fetch.New(cfg.Source.URL, cfg.Source.FetchTimeout)

	// Create services
	pub := publisher.New(log, cfg.MQTT, cfg.Model.AllowLabels)
	det := detector.New(log, cfg, fetcher, invoker, pipeline, track, pub)
	collector := telemetry.NewCollector(log)
	reporter := telemetry.NewReporter(log, collector, pub, cfg.Telemetry)
	webServer := web.NewServer(&cfg.Web, log)

	// Health checks back the web server's health API
	svcMgr := service.NewManager(log)
	registry := health.NewRegistry(log, svcMgr)
	registry.RegisterChecker(health.NewModelChecker(cfg.Model.Path, cfg.Model.LabelsPath))
	registry.RegisterChecker(health.NewSourceChecker(cfg.Source.URL))
	registry.RegisterChecker(health.NewBrokerChecker(pub, cfg.MQTT.BrokerURL()))
	registry.RegisterChecker(health.NewLoopChecker(collector, cfg.Source.PollInterval))

	webServer.SetVersion(version)
	webServer.SetHealthRegistry(registry)
	webServer.SetDetectionSource(det)
	webServer.SetStatsSource(collector)
	webServer.SetConfigDependency(configSvc)

	// Registration order is shutdown order reversed: the detector goes
	// down first so nothing publishes into a closed publisher.
	svcMgr.Register(pub)
	svcMgr.Register(collector)
	svcMgr.Register(reporter)
	svcMgr.Register(webServer)
	svcMgr.Register(det)

	if err := svcMgr.Start(ctx, cfg); err != nil {
		log.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}
