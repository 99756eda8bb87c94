// Package config loads mediator configuration from an optional config file
// layered under environment variables, the way
// station/internal/config/config.go's InitViper/bindEnvVars layer
// STN_/STATION_-prefixed env vars over a config.yaml. Environment variables
// always win over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of knobs the mediator binary needs to start.
type Config struct {
	// DefinitionsDir is scanned for *.workflow.yaml / *.workflow.yml files.
	DefinitionsDir string

	// StatePath is the sqlite database file backing the state store, opened
	// by `mediator serve` and `mediator inspect` via state.Open.
	StatePath string

	// Bus connection.
	NATSURL           string
	NATSStream        string
	NATSConsumerGroup string
	NATSEmbedded      bool
	NATSAckWait       time.Duration

	// Telemetry.
	TelemetryEnabled     bool
	TelemetryServiceName string
	OTLPEndpoint         string
}

// Load reads cfgFile (if non-empty) or ./mediator.yaml / $XDG_CONFIG_HOME
// /mediator/mediator.yaml, then overlays MEDIATOR_*-prefixed environment
// variables, and returns the resolved Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if cwd, err := os.Getwd(); err == nil {
			v.AddConfigPath(cwd)
		}
		v.AddConfigPath(configDir())
		v.SetConfigType("yaml")
		v.SetConfigName("mediator")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MEDIATOR")
	v.AutomaticEnv()
	bindEnvVars(v)

	cfg := &Config{
		DefinitionsDir:       v.GetString("definitions_dir"),
		StatePath:            v.GetString("state_path"),
		NATSURL:              v.GetString("nats.url"),
		NATSStream:           v.GetString("nats.stream"),
		NATSConsumerGroup:    v.GetString("nats.consumer_group"),
		NATSEmbedded:         v.GetBool("nats.embedded"),
		NATSAckWait:          v.GetDuration("nats.ack_wait"),
		TelemetryEnabled:     v.GetBool("telemetry.enabled"),
		TelemetryServiceName: v.GetString("telemetry.service_name"),
		OTLPEndpoint:         v.GetString("telemetry.otlp_endpoint"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("definitions_dir", "./workflows")
	v.SetDefault("state_path", "./mediator.db")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "MEDIATOR_EVENTS")
	v.SetDefault("nats.consumer_group", "mediator")
	v.SetDefault("nats.embedded", false)
	v.SetDefault("nats.ack_wait", 30*time.Second)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "mediator")
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// bindEnvVars binds every config key to an explicit MEDIATOR_-prefixed
// environment variable, so `v.AutomaticEnv` also reaches nested keys viper
// wouldn't otherwise map automatically (dotted keys vs underscored env names).
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("definitions_dir", "MEDIATOR_DEFINITIONS_DIR")
	v.BindEnv("state_path", "MEDIATOR_STATE_PATH")
	v.BindEnv("nats.url", "MEDIATOR_NATS_URL")
	v.BindEnv("nats.stream", "MEDIATOR_NATS_STREAM")
	v.BindEnv("nats.consumer_group", "MEDIATOR_NATS_CONSUMER_GROUP")
	v.BindEnv("nats.embedded", "MEDIATOR_NATS_EMBEDDED")
	v.BindEnv("nats.ack_wait", "MEDIATOR_NATS_ACK_WAIT")
	v.BindEnv("telemetry.enabled", "MEDIATOR_TELEMETRY_ENABLED")
	v.BindEnv("telemetry.service_name", "MEDIATOR_TELEMETRY_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "MEDIATOR_OTLP_ENDPOINT")
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediator")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mediator")
}
