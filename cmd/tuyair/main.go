// Tuya IR Bridge
//
// This is the main entry point for the Tuya IR bridge. The bridge subscribes
// to one MQTT command topic per configured IR blaster and forwards each named
// command to the blaster over the Tuya LAN protocol.
//
// Startup resources (working directory by default):
//   - config.json: broker settings
//   - devices.json: IR blasters
//   - template.txt: command names and their IR codes
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nerrad567/tuya-ir-bridge/internal/bridge"
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// dotEnvPath is an optional env file read before the environment is consulted.
const dotEnvPath = ".env"

// Environment variables that relocate the startup resources.
const (
	envConfigPath   = "TUYAIR_CONFIG"
	envDevicesPath  = "TUYAIR_DEVICES"
	envTemplatePath = "TUYAIR_TEMPLATE"
)

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
	log.Info("starting Tuya IR bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(dotEnvPath); err != nil {
		log.Warn("ignoring env file", "path", dotEnvPath, "error", err)
	}

	paths := getPaths()
	res, err := bridge.LoadResources(paths, log)
	if err != nil {
		return err
	}
	log.Info("configuration loaded",
		"config", paths.Config,
		"devices", res.Registry.Len(),
		"commands", res.Table.Len(),
	)

	// Reinitialise logger with config settings
	log = logging.New(res.Config.Logging, version)
	log.Info("logger initialised",
		"level", res.Config.Logging.Level,
		"format", res.Config.Logging.Format,
	)

	opts := bridge.SupervisorOptions{
		Resources: res,
		Logger:    log,
	}

	// Connect to InfluxDB (optional). Telemetry never blocks the bridge.
	if res.Config.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, res.Config.InfluxDB)
		if influxErr != nil {
			log.Warn("InfluxDB unavailable, dispatch telemetry disabled", "error", influxErr)
		} else {
			defer func() {
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
				log.Info("InfluxDB connection closed",
					"points_queued", influxClient.Queued(),
					"batches_failed", influxClient.Failed(),
				)
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			opts.Recorder = influxClient
			log.Info("InfluxDB connected",
				"url", res.Config.InfluxDB.URL,
				"org", res.Config.InfluxDB.Org,
				"bucket", res.Config.InfluxDB.Bucket,
			)
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	sup, err := bridge.NewSupervisor(opts)
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}

	sup.Start(ctx)
	log.Info("initialisation complete, waiting for shutdown signal",
		"broker", res.Config.BrokerURL(),
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		if err := sup.Wait(); err != nil {
			log.Warn("sessions ended with errors", "error", err)
		}
	case <-sup.Done():
		// Terminated sessions are not restarted, so nothing is left to serve.
		if err := sup.Err(); err != nil {
			return fmt.Errorf("all sessions terminated: %w", err)
		}
		log.Warn("no sessions running")
	}

	log.Info("Tuya IR bridge stopped")
	return nil
}

// getPaths returns the startup resource paths.
// Each can be overridden by its environment variable.
func getPaths() bridge.Paths {
	paths := bridge.DefaultPaths()
	if path := os.Getenv(envConfigPath); path != "" {
		paths.Config = path
	}
	if path := os.Getenv(envDevicesPath); path != "" {
		paths.Devices = path
	}
	if path := os.Getenv(envTemplatePath); path != "" {
		paths.Template = path
	}
	return paths
}

// loadDotEnv exports the variables of an optional env file. Variables already
// present in the environment are left alone. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
