package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, "hci0", cfg.Adapter)
	assert.Equal(t, "fff0", cfg.ServiceUUID)
	assert.Equal(t, "fff6", cfg.CharacteristicUUID)
	assert.Equal(t, DefaultSerialPortUUID, cfg.SerialPortUUID)
	assert.Equal(t, DefaultDiscoveryTimeout, cfg.DiscoveryTimeout)
	assert.Equal(t, DefaultEventBufferSize, cfg.EventBufferSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, New(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bluelink.yaml")
	data := []byte(`
adapter: hci1
service_uuid: "ffe0"
characteristic_uuid: "ffe1"
discovery_timeout: 3s
read_buffer_size: 512
logging:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hci1", cfg.Adapter)
	assert.Equal(t, "ffe0", cfg.ServiceUUID)
	assert.Equal(t, "ffe1", cfg.CharacteristicUUID)
	assert.Equal(t, 3*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, 512, cfg.ReadBufferSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Unset keys keep their defaults.
	assert.Equal(t, DefaultSerialPortUUID, cfg.SerialPortUUID)
	assert.Equal(t, DefaultServiceDiscoveryTimeout, cfg.ServiceDiscoveryTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ftag.NotFound, ftag.Get(err))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adapter: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, ftag.InvalidArgument, ftag.Get(err))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BLUELINK_ADAPTER", "hci2")
	t.Setenv("BLUELINK_LOG_LEVEL", "warn")
	t.Setenv("BLUELINK_DISCOVERY_TIMEOUT", "25s")
	t.Setenv("BLUELINK_READ_BUFFER_SIZE", "not-a-number")

	cfg := New()
	cfg.ApplyEnv()

	assert.Equal(t, "hci2", cfg.Adapter)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 25*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, DefaultReadBufferSize, cfg.ReadBufferSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Configuration)
	}{
		{"empty adapter", func(c *Configuration) { c.Adapter = "" }},
		{"empty service", func(c *Configuration) { c.ServiceUUID = "" }},
		{"zero timeout", func(c *Configuration) { c.DiscoveryTimeout = 0 }},
		{"negative read buffer", func(c *Configuration) { c.ReadBufferSize = -1 }},
		{"zero event buffer", func(c *Configuration) { c.EventBufferSize = 0 }},
		{"bad log format", func(c *Configuration) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, ftag.InvalidArgument, ftag.Get(err))
		})
	}
}
