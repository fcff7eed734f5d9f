package config

import (
	"context"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Validate checks the configuration for missing or out-of-range values.
// UUID strings are only checked for presence here, they are parsed by the
// components that consume them.
func (c Configuration) Validate() error {
	var problems []string

	if c.Adapter == "" {
		problems = append(problems, "adapter is empty")
	}
	if c.ServiceUUID == "" {
		problems = append(problems, "service_uuid is empty")
	}
	if c.CharacteristicUUID == "" {
		problems = append(problems, "characteristic_uuid is empty")
	}
	if c.SerialPortUUID == "" {
		problems = append(problems, "serial_port_uuid is empty")
	}
	if c.DiscoveryTimeout <= 0 {
		problems = append(problems, "discovery_timeout must be positive")
	}
	if c.ServiceDiscoveryTimeout <= 0 {
		problems = append(problems, "service_discovery_timeout must be positive")
	}
	if c.ReadBufferSize <= 0 {
		problems = append(problems, "read_buffer_size must be positive")
	}
	if c.EventBufferSize <= 0 {
		problems = append(problems, "event_buffer_size must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, "logging.format must be text or json")
	}

	if len(problems) == 0 {
		return nil
	}

	return fault.Wrap(fault.New(strings.Join(problems, "; ")),
		fctx.With(context.Background(), "error_at", "validate-config"),
		ftag.With(ftag.InvalidArgument),
		fmsg.With("Invalid configuration"),
	)
}
