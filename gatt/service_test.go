package gatt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"tinygo.org/x/bluetooth"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/logging"
)

// staticDescriber describes characteristics from a fixed set.
type staticDescriber struct {
	device          api.MacAddress
	service         uuid.UUID
	characteristics []api.Characteristic
}

func (d *staticDescriber) DescribeCharacteristic(device api.MacAddress, service, characteristic uuid.UUID) (api.Characteristic, bool) {
	if device != d.device || service != d.service {
		return api.Characteristic{}, false
	}

	for _, ch := range d.characteristics {
		if ch.UUID == characteristic {
			return ch, true
		}
	}

	return api.Characteristic{}, false
}

func newTestService(describer CharacteristicDescriber) *Service {
	adapter := NewAdapter(nil, 0, logging.Discard())
	if describer != nil {
		adapter.SetDescriber(describer)
	}

	device := api.DeviceData{Address: api.MustParseMAC("11:22:33:44:55:66"), RadioClass: api.RadioLowEnergy}
	client := newController(adapter, device, nil)

	return newService(client, api.UUID16(0xFFF0), bluetooth.DeviceService{}, nil)
}

func TestServiceDescribeAssumed(t *testing.T) {
	s := newTestService(nil)

	ch := s.describe(api.UUID16(0xFFF6))
	assert.Equal(t, describeCharacteristic(api.UUID16(0xFFF6)), ch)
}

func TestServiceDescribeFromStack(t *testing.T) {
	writeOnly := api.Characteristic{UUID: api.UUID16(0xFFF6), Properties: api.PropertyWrite}

	s := newTestService(&staticDescriber{
		device:          api.MustParseMAC("11:22:33:44:55:66"),
		service:         api.UUID16(0xFFF0),
		characteristics: []api.Characteristic{writeOnly},
	})

	ch := s.describe(api.UUID16(0xFFF6))
	assert.Equal(t, writeOnly, ch)
	assert.False(t, ch.Properties.Has(api.PropertyNotify))

	_, ok := ch.Descriptor(api.ClientCharacteristicConfigurationUUID)
	assert.False(t, ok)

	// Characteristics the stack does not know are usable for writing only.
	unknown := s.describe(api.UUID16(0xFFF7))
	assert.True(t, unknown.IsValid())
	assert.Zero(t, unknown.Properties)
	assert.Empty(t, unknown.Descriptors)
}

func TestServiceCharacteristicBeforeDetails(t *testing.T) {
	s := newTestService(nil)

	assert.False(t, s.Characteristic(api.UUID16(0xFFF6)).IsValid())
}
