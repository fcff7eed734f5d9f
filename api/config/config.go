package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"
)

const (
	// The default timeout duration for a device scan.
	DefaultDiscoveryTimeout = 10 * time.Second

	// The default timeout duration for resolving a Classic device's services.
	DefaultServiceDiscoveryTimeout = 10 * time.Second

	DefaultAdapter            = "hci0"
	DefaultServiceUUID        = "fff0"
	DefaultCharacteristicUUID = "fff6"
	DefaultSerialPortUUID     = "00001101-0000-1000-8000-00805f9b34fb"
	DefaultReadBufferSize     = 1024
	DefaultEventBufferSize    = 64
)

// Configuration describes a general configuration.
type Configuration struct {
	// Adapter holds the name of the local Bluetooth adapter, for example "hci0".
	Adapter string `yaml:"adapter"`

	// ServiceUUID holds the GATT service that is bound on Low Energy devices.
	ServiceUUID string `yaml:"service_uuid"`

	// CharacteristicUUID holds the GATT characteristic used both for writing
	// outbound data and receiving notifications.
	CharacteristicUUID string `yaml:"characteristic_uuid"`

	// SerialPortUUID holds the Classic service that triggers an RFCOMM connection.
	SerialPortUUID string `yaml:"serial_port_uuid"`

	DiscoveryTimeout        time.Duration `yaml:"discovery_timeout"`
	ServiceDiscoveryTimeout time.Duration `yaml:"service_discovery_timeout"`

	// ReadBufferSize holds the size of a single RFCOMM socket read.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// EventBufferSize holds the per-subscriber event channel capacity.
	EventBufferSize int `yaml:"event_buffer_size"`

	Logging Logging `yaml:"logging"`
}

// Logging describes the logger configuration.
type Logging struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// New returns a new configuration with the default values.
func New() Configuration {
	return Configuration{
		Adapter:                 DefaultAdapter,
		ServiceUUID:             DefaultServiceUUID,
		CharacteristicUUID:      DefaultCharacteristicUUID,
		SerialPortUUID:          DefaultSerialPortUUID,
		DiscoveryTimeout:        DefaultDiscoveryTimeout,
		ServiceDiscoveryTimeout: DefaultServiceDiscoveryTimeout,
		ReadBufferSize:          DefaultReadBufferSize,
		EventBufferSize:         DefaultEventBufferSize,
		Logging: Logging{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads a YAML configuration file on top of the default values.
// An empty path returns the defaults.
func Load(path string) (Configuration, error) {
	cfg := New()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "read-config", "path", path),
			ftag.With(ftag.NotFound),
			fmsg.With("Cannot read configuration file"),
		)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "parse-config", "path", path),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Cannot parse configuration file"),
		)
	}

	return cfg, nil
}

// ApplyEnv overrides configuration values from BLUELINK_* environment variables.
func (c *Configuration) ApplyEnv() {
	str := map[string]*string{
		"BLUELINK_ADAPTER":             &c.Adapter,
		"BLUELINK_SERVICE_UUID":        &c.ServiceUUID,
		"BLUELINK_CHARACTERISTIC_UUID": &c.CharacteristicUUID,
		"BLUELINK_SERIAL_PORT_UUID":    &c.SerialPortUUID,
		"BLUELINK_LOG_LEVEL":           &c.Logging.Level,
		"BLUELINK_LOG_FORMAT":          &c.Logging.Format,
		"BLUELINK_LOG_OUTPUT":          &c.Logging.Output,
	}
	for env, field := range str {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("BLUELINK_DISCOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DiscoveryTimeout = d
		}
	}
	if v := os.Getenv("BLUELINK_READ_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ReadBufferSize = n
		}
	}
}
