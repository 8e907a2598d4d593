package cfg

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidemark-io/tidemark/highwater"
)

// PollingConfiguration controls the high-water agent cadences.
type PollingConfiguration struct {
	FastIntervalMS        int `toml:"fast_interval_ms"`
	SlowIntervalMS        int `toml:"slow_interval_ms"`
	HealthCheckIntervalMS int `toml:"health_check_interval_ms"`
	StaleThresholdMS      int `toml:"stale_threshold_ms"`
}

// NATSConfiguration controls progress publication over NATS JetStream.
type NATSConfiguration struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// AdminConfiguration controls the HTTP status endpoint.
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// TelemetryConfiguration controls Prometheus metrics.
type TelemetryConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// LoggingConfiguration controls logging behavior.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

type Configuration struct {
	NodeName string `toml:"node_name"`
	DBPath   string `toml:"db_path"`

	Polling   PollingConfiguration   `toml:"polling"`
	NATS      NATSConfiguration      `toml:"nats"`
	Admin     AdminConfiguration     `toml:"admin"`
	Telemetry TelemetryConfiguration `toml:"telemetry"`
	Logging   LoggingConfiguration   `toml:"logging"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Configuration {
	return &Configuration{
		NodeName: "tidemark",
		DBPath:   "tidemark.db",
		Polling: PollingConfiguration{
			FastIntervalMS:        250,
			SlowIntervalMS:        1000,
			HealthCheckIntervalMS: 5000,
			StaleThresholdMS:      3000,
		},
		NATS: NATSConfiguration{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "tidemark.progress",
		},
		Admin: AdminConfiguration{
			Enabled: true,
			Bind:    "0.0.0.0:8090",
		},
		Telemetry: TelemetryConfiguration{
			Enabled: true,
		},
		Logging: LoggingConfiguration{
			Format: "console",
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty or missing
// path returns the defaults untouched, so the daemon runs without a config
// file.
func Load(path string) (*Configuration, error) {
	config := Default()
	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("load configuration %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("load configuration %s: %w", path, err)
	}
	return config, nil
}

func (c *Configuration) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Polling.FastIntervalMS <= 0 || c.Polling.SlowIntervalMS <= 0 {
		return fmt.Errorf("polling intervals must be positive")
	}
	if c.Polling.FastIntervalMS > c.Polling.SlowIntervalMS {
		return fmt.Errorf("fast_interval_ms must not exceed slow_interval_ms")
	}
	if c.Polling.HealthCheckIntervalMS <= 0 {
		return fmt.Errorf("health_check_interval_ms must be positive")
	}
	if c.Polling.StaleThresholdMS <= 0 {
		return fmt.Errorf("stale_threshold_ms must be positive")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats requires url when enabled")
	}
	if c.NATS.Enabled && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats requires subject_prefix when enabled")
	}
	if c.Admin.Enabled && c.Admin.Bind == "" {
		return fmt.Errorf("admin requires bind when enabled")
	}
	return nil
}

// Settings converts the polling section into agent settings.
func (c *Configuration) Settings() highwater.Settings {
	return highwater.Settings{
		FastPollInterval:       time.Duration(c.Polling.FastIntervalMS) * time.Millisecond,
		SlowPollInterval:       time.Duration(c.Polling.SlowIntervalMS) * time.Millisecond,
		HealthCheckInterval:    time.Duration(c.Polling.HealthCheckIntervalMS) * time.Millisecond,
		StaleSequenceThreshold: time.Duration(c.Polling.StaleThresholdMS) * time.Millisecond,
	}
}
