// lantzd runs a lab of instruments as a daemon.
//
// It loads the bench description from config.yaml, builds the declared
// instruments, brings them up in dependency order and then forwards every
// feat change to the MQTT state bus and the local history database while
// periodically exporting call statistics to InfluxDB. On SIGINT/SIGTERM
// the instruments it started are finalised in reverse order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lantzproject/lantz-core/internal/flock"
	"github.com/lantzproject/lantz-core/internal/fungen"
	"github.com/lantzproject/lantz-core/internal/history"
	"github.com/lantzproject/lantz-core/internal/infrastructure/config"
	"github.com/lantzproject/lantz-core/internal/infrastructure/influxdb"
	"github.com/lantzproject/lantz-core/internal/infrastructure/logging"
	"github.com/lantzproject/lantz-core/internal/infrastructure/mqtt"
	"github.com/lantzproject/lantz-core/internal/instrument"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// statsExportInterval is how often accumulated call statistics are
// flushed to InfluxDB.
const statsExportInterval = 30 * time.Second

// shutdownTimeout bounds instrument finalisation after a signal.
const shutdownTimeout = 30 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting lantzd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the feat history store (optional)
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(history.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer func() {
			log.Info("closing history store")
			if closeErr := store.Close(); closeErr != nil {
				log.Error("error closing history store", "error", closeErr)
			}
		}()
		log.Info("history store opened", "path", cfg.History.Path)

		if cfg.History.RetentionDays > 0 {
			retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
			deleted, pruneErr := store.Prune(ctx, retention)
			if pruneErr != nil {
				log.Warn("history prune failed", "error", pruneErr)
			} else if deleted > 0 {
				log.Info("history pruned", "deleted", deleted, "retention_days", cfg.History.RetentionDays)
			}
		}
	} else {
		log.Info("history disabled")
	}

	// Connect to the MQTT state bus (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the declared instruments and register them with the flock
	devices, err := buildDevices(cfg.Flock.Instruments, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, d := range devices {
			fungen.Release(d)
		}
	}()

	flk := flock.New()
	flk.SetLogger(log)
	for _, ic := range cfg.Flock.Instruments {
		if err := flk.Add(devices[ic.Name], ic.DependsOn...); err != nil {
			return fmt.Errorf("registering instrument %q: %w", ic.Name, err)
		}
	}

	// Attach change observers before anything powers up so startup
	// transitions are captured too.
	var stops []func()
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()
	if mqttClient != nil {
		// #nosec G115 -- QoS validated to 0..2 by config
		statePub := mqtt.NewStatePublisher(mqttClient, byte(cfg.MQTT.QoS))
		statePub.SetLogger(log)
		for _, d := range devices {
			stops = append(stops, statePub.Watch(d))
		}
	}
	if store != nil {
		recorder := history.NewRecorder(store)
		recorder.SetLogger(log)
		for _, d := range devices {
			stops = append(stops, recorder.Watch(d))
		}
	}

	// Bring the bench up in dependency order. The OnFailed hook selects
	// containment: one broken instrument does not stop the rest.
	hooks := flock.Hooks{
		OnReady: func(name string) { log.Info("instrument ready", "instrument", name) },
		OnFailed: func(name string, err error) {
			log.Error("instrument failed", "instrument", name, "error", err)
		},
	}
	session := flk.Session()
	if err := session.Initialize(ctx, flock.WithConcurrency(cfg.Flock.Concurrency), flock.WithHooks(hooks)); err != nil {
		log.Error("instrument startup incomplete", "error", err)
	}
	log.Info("instruments ready", "members", session.Owned())

	// Periodic statistics export
	if influxClient != nil {
		go exportStats(ctx, influxClient, devices)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// The signal context is already cancelled; finalisation gets its own
	// deadline so instruments still shut down cleanly.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Close(shutdownCtx, flock.WithConcurrency(cfg.Flock.Concurrency), flock.WithHooks(hooks)); err != nil {
		log.Error("error finalising instruments", "error", err)
	}

	log.Info("lantzd stopped")
	return nil
}

// buildDevices constructs one device per declared instrument.
func buildDevices(decls []config.InstrumentConfig, log *logging.Logger) (map[string]*instrument.Device, error) {
	devices := make(map[string]*instrument.Device, len(decls))
	for _, ic := range decls {
		d, err := buildDevice(ic)
		if err != nil {
			for _, built := range devices {
				fungen.Release(built)
			}
			return nil, fmt.Errorf("building instrument %q: %w", ic.Name, err)
		}
		d.SetLogger(log)
		devices[ic.Name] = d
		log.Info("instrument built", "instrument", ic.Name, "driver", ic.Driver, "simulate", ic.Simulate)
	}
	return devices, nil
}

// buildDevice dispatches on the configured driver name.
func buildDevice(ic config.InstrumentConfig) (*instrument.Device, error) {
	switch ic.Driver {
	case "fungen":
		if !ic.Simulate {
			return nil, fmt.Errorf("driver %q has no hardware transport configured, set simulate: true", ic.Driver)
		}
		return fungen.NewSimulated(ic.Name)
	default:
		return nil, fmt.Errorf("unknown driver %q", ic.Driver)
	}
}

// exportStats periodically writes every device's call statistics until the
// context is cancelled.
func exportStats(ctx context.Context, client *influxdb.Client, devices map[string]*instrument.Device) {
	ticker := time.NewTicker(statsExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, d := range devices {
				client.WriteDeviceStats(d)
			}
			client.Flush()
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses the LANTZ_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LANTZ_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
