package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skymesh/skymesh-ground-monitor/internal/alert"
	"github.com/skymesh/skymesh-ground-monitor/internal/backend"
	mqttbackend "github.com/skymesh/skymesh-ground-monitor/internal/backend/mqtt"
	udpbackend "github.com/skymesh/skymesh-ground-monitor/internal/backend/udp"
	"github.com/skymesh/skymesh-ground-monitor/internal/config"
	"github.com/skymesh/skymesh-ground-monitor/internal/mode"
	"github.com/skymesh/skymesh-ground-monitor/internal/monitoring"
	"github.com/skymesh/skymesh-ground-monitor/internal/pipeline"
	"github.com/skymesh/skymesh-ground-monitor/internal/stats"
	"github.com/skymesh/skymesh-ground-monitor/internal/storage"
	"github.com/skymesh/skymesh-ground-monitor/internal/telemetry"
	"github.com/skymesh/skymesh-ground-monitor/internal/validation"
)

var (
	engine    *validation.Engine
	collector *stats.Collector
	alerts    *alert.Manager
	tracker   *mode.Tracker
	server    *pipeline.Server

	stopRulesWatcher func() error
	stopMetricsSaver chan struct{}
)

func run(cmd *cobra.Command, args []string) error {
	tasks := []func() error{
		setLogLevel,
		setSyslog,
		printStartMessage,
		setupStorage,
		setupMonitoring,
		setupValidation,
		setupMetricsCollector,
		setupAlerts,
		setupModeTracker,
		setRadioBackend,
		startMonitorServer,
		startMetricsSaver,
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	exitChan := make(chan struct{})
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.WithField("signal", <-sigChan).Info("signal received")
	go func() {
		log.Warning("stopping skymesh-ground-monitor")
		close(stopMetricsSaver)
		if stopRulesWatcher != nil {
			if err := stopRulesWatcher(); err != nil {
				log.WithError(err).Error("stop rules watcher error")
			}
		}
		if err := backend.RadioBackend().Close(); err != nil {
			log.Fatal(err)
		}
		if err := server.Stop(); err != nil {
			log.Fatal(err)
		}
		exitChan <- struct{}{}
	}()
	select {
	case <-exitChan:
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received, stopping immediately")
	}

	return nil
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version": version,
	}).Info("starting SkyMesh Ground Monitor")
	return nil
}

func setupStorage() error {
	if err := storage.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup storage error")
	}
	return nil
}

func setupMonitoring() error {
	if err := monitoring.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup monitoring error")
	}
	return nil
}

func setupValidation() error {
	engine = validation.NewEngine(validation.Config{
		MaxViolations:   config.C.Monitor.Validation.MaxViolations,
		GPSMaxClimbRate: config.C.Monitor.Validation.GPSMaxClimbRate,
	})

	if config.C.Monitor.Validation.RulesFile == "" {
		log.Warning("no rules file configured, only temporal anomaly detection is active")
		return nil
	}

	rules, err := validation.LoadRules(config.C.Monitor.Validation.RulesFile)
	if err != nil {
		return errors.Wrap(err, "load rules error")
	}
	engine.SetRules(rules)

	log.WithFields(log.Fields{
		"rules_file": config.C.Monitor.Validation.RulesFile,
		"rules":      len(rules),
	}).Info("validation rules loaded")

	if config.C.Monitor.Validation.WatchRules {
		stopRulesWatcher, err = validation.WatchRules(config.C.Monitor.Validation.RulesFile, engine)
		if err != nil {
			return errors.Wrap(err, "watch rules error")
		}
	}

	return nil
}

func setupMetricsCollector() error {
	collector = stats.NewCollector(stats.Config{
		RateWindow:        config.C.Monitor.Metrics.RateWindow,
		ThroughputWindow:  config.C.Monitor.Metrics.ThroughputWindow,
		LatencyTimeout:    config.C.Monitor.Metrics.LatencyTimeout,
		MaxLatencySamples: config.C.Monitor.Metrics.MaxLatencySamples,
	})
	return nil
}

func setupAlerts() error {
	var channels []alert.Channel

	for _, name := range config.C.Monitor.Alerts.Channels {
		switch name {
		case "log":
			channels = append(channels, alert.LogChannel{})
		case "mqtt":
			conf := config.C.Monitor.Alerts.MQTT
			ch, err := alert.NewMQTTChannel(alert.MQTTConfig{
				Server:   conf.Server,
				Username: conf.Username,
				Password: conf.Password,
				QOS:      conf.QOS,
				ClientID: conf.ClientID,
				Topic:    conf.Topic,
			})
			if err != nil {
				return errors.Wrap(err, "setup mqtt alert channel error")
			}
			channels = append(channels, ch)
		default:
			return fmt.Errorf("unexpected alert channel: %s", name)
		}
	}

	alerts = alert.NewManager(alert.Config{
		ThrottleWindow:          config.C.Monitor.Alerts.ThrottleWindow,
		DuplicateWindow:         config.C.Monitor.Alerts.DuplicateWindow,
		MaxAlertsPerWindow:      config.C.Monitor.Alerts.MaxAlertsPerWindow,
		RelayLatencyThresholdMS: config.C.Monitor.Alerts.RelayLatencyThresholdMS,
		MaxHistory:              config.C.Monitor.Alerts.MaxHistory,
	}, channels...)

	return nil
}

func setupModeTracker() error {
	tracker = mode.NewTracker(time.Now())
	return nil
}

func setRadioBackend() error {
	var err error
	var b backend.Backend

	switch config.C.Monitor.Backend.Type {
	case "mqtt":
		b, err = mqttbackend.NewBackend(config.C)
	case "udp":
		b, err = udpbackend.NewBackend(config.C)
	default:
		return fmt.Errorf("unexpected radio backend type: %s", config.C.Monitor.Backend.Type)
	}

	if err != nil {
		return errors.Wrap(err, "radio-backend setup failed")
	}

	backend.SetRadioBackend(b)
	return nil
}

func startMonitorServer() error {
	p := pipeline.New(telemetry.JSONCodec{}, engine, collector, alerts, tracker)
	server = pipeline.NewServer(p, backend.RadioBackend())
	return server.Start()
}

func startMetricsSaver() error {
	stopMetricsSaver = make(chan struct{})

	interval := config.C.Monitor.Metrics.Aggregation.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	go metricsSaverLoop(interval)
	return nil
}

// metricsSaverLoop periodically persists the per-interval counter deltas.
func metricsSaverLoop(interval time.Duration) {
	var lastDecoder uint64
	var lastBytes uint64
	var lastChecksum uint64
	var lastParse uint64
	var lastAlerts uint64

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopMetricsSaver:
			return
		case now := <-ticker.C:
			ds := server.Pipeline().DecoderStats()
			as := alerts.GetStats()

			record := storage.MetricsRecord{
				Time: now,
				Metrics: map[string]float64{
					"rx_packets":        float64(ds.PacketsReceived - lastDecoder),
					"rx_bytes":          float64(ds.BytesProcessed - lastBytes),
					"checksum_errors":   float64(ds.ChecksumErrors - lastChecksum),
					"parse_errors":      float64(ds.ParseErrors - lastParse),
					"alerts_dispatched": float64(as.TotalAlerts - lastAlerts),
				},
			}

			lastDecoder = ds.PacketsReceived
			lastBytes = ds.BytesProcessed
			lastChecksum = ds.ChecksumErrors
			lastParse = ds.ParseErrors
			lastAlerts = as.TotalAlerts

			if err := storage.SaveMetrics(context.Background(), "monitor", record); err != nil {
				log.WithError(err).Error("save metrics error")
			}
		}
	}
}
