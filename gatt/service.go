package gatt

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	api "github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// Service is a remote GATT service of a connected device.
type Service struct {
	client  *Controller
	handler api.ServiceHandler

	id      uuid.UUID
	service bluetooth.DeviceService
	state   atomic.Uint32

	characteristics map[uuid.UUID]bluetooth.DeviceCharacteristic
	described       map[uuid.UUID]api.Characteristic
	mu              sync.Mutex
}

func newService(c *Controller, id uuid.UUID, svc bluetooth.DeviceService, handler api.ServiceHandler) *Service {
	s := &Service{
		client:          c,
		handler:         handler,
		id:              id,
		service:         svc,
		characteristics: make(map[uuid.UUID]bluetooth.DeviceCharacteristic),
		described:       make(map[uuid.UUID]api.Characteristic),
	}
	s.state.Store(uint32(api.ServiceRemote))

	return s
}

// UUID returns the UUID of the service.
func (s *Service) UUID() uuid.UUID {
	return s.id
}

// State returns the discovery state of the service.
func (s *Service) State() api.ServiceState {
	return api.ServiceState(s.state.Load())
}

// DiscoverDetails resolves the characteristics of the service.
func (s *Service) DiscoverDetails() error {
	if err := s.client.checkConnected("gatt-discover-details"); err != nil {
		return err
	}

	s.setState(api.ServiceDiscovering)

	s.client.loop.Post(func() {
		chars, err := s.service.DiscoverCharacteristics(nil)
		if err != nil {
			s.setState(api.ServiceRemote)
			s.handler.ServiceError(errorkinds.NewControllerError(errorkinds.ServiceOperation, err, "gatt-discover-characteristics"))
			return
		}

		resolved := make(map[uuid.UUID]bluetooth.DeviceCharacteristic, len(chars))
		described := make(map[uuid.UUID]api.Characteristic, len(chars))
		for _, ch := range chars {
			id, err := fromTinyUUID(ch.UUID())
			if err != nil {
				continue
			}

			resolved[id] = ch
			described[id] = s.describe(id)
		}

		s.mu.Lock()
		s.characteristics = resolved
		s.described = described
		s.mu.Unlock()

		s.setState(api.ServiceDiscovered)
	})

	return nil
}

// Characteristic returns a resolved characteristic of the service.
func (s *Service) Characteristic(id uuid.UUID) api.Characteristic {
	if s.State() != api.ServiceDiscovered {
		return api.Characteristic{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.described[id]
}

// describe returns the description of a resolved characteristic. If the
// platform stack cannot describe it, the characteristic has no properties
// or descriptors.
func (s *Service) describe(id uuid.UUID) api.Characteristic {
	describer := s.client.adapter.describer
	if describer == nil {
		return describeCharacteristic(id)
	}

	if ch, ok := describer.DescribeCharacteristic(s.client.mac, s.id, id); ok {
		return ch
	}

	s.client.log.WithField("uuid", id).Debug("Cannot describe characteristic")

	return api.Characteristic{UUID: id}
}

// WriteCharacteristic writes a value to a characteristic.
func (s *Service) WriteCharacteristic(c api.Characteristic, data []byte, mode api.WriteMode) error {
	ch, err := s.lookup(c, "gatt-write-characteristic")
	if err != nil {
		return err
	}

	value := append([]byte(nil), data...)

	s.client.loop.Post(func() {
		var err error
		if mode == api.WriteWithoutResponse {
			_, err = ch.WriteWithoutResponse(value)
		} else {
			_, err = ch.Write(value)
		}

		if err != nil {
			s.handler.ServiceError(errorkinds.NewControllerError(errorkinds.ServiceCharacteristicWrite, err, "gatt-write-characteristic"))
			return
		}

		s.handler.CharacteristicWritten(c.UUID, value)
	})

	return nil
}

// ReadCharacteristic reads the value of a characteristic.
func (s *Service) ReadCharacteristic(c api.Characteristic) error {
	ch, err := s.lookup(c, "gatt-read-characteristic")
	if err != nil {
		return err
	}

	s.client.loop.Post(func() {
		buf := make([]byte, s.client.adapter.readBufferSize)

		n, err := ch.Read(buf)
		if err != nil {
			s.handler.ServiceError(errorkinds.NewControllerError(errorkinds.ServiceCharacteristicRead, err, "gatt-read-characteristic"))
			return
		}

		s.handler.CharacteristicRead(c.UUID, buf[:n])
	})

	return nil
}

// WriteDescriptor writes a descriptor value. Only the client characteristic
// configuration descriptor is supported, which enables or disables notifications.
func (s *Service) WriteDescriptor(c api.Characteristic, d api.Descriptor, data []byte) error {
	ch, err := s.lookup(c, "gatt-write-descriptor")
	if err != nil {
		return err
	}

	if d.UUID != api.ClientCharacteristicConfigurationUUID {
		return fault.Wrap(errorkinds.ErrNotSupported,
			fctx.With(context.Background(), "error_at", "gatt-write-descriptor", "uuid", d.UUID.String()),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Only the client characteristic configuration descriptor can be written"),
		)
	}

	value := append([]byte(nil), data...)

	s.client.loop.Post(func() {
		var callback func([]byte)
		if notificationsEnabled(value) {
			callback = func(buf []byte) {
				s.handler.CharacteristicChanged(c.UUID, append([]byte(nil), buf...))
			}
		}

		if err := ch.EnableNotifications(callback); err != nil {
			s.handler.ServiceError(errorkinds.NewControllerError(errorkinds.ServiceDescriptorWrite, err, "gatt-write-descriptor"))
			return
		}

		s.handler.DescriptorWritten(d.UUID, value)
	})

	return nil
}

func (s *Service) lookup(c api.Characteristic, at string) (bluetooth.DeviceCharacteristic, error) {
	if err := s.client.checkConnected(at); err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}

	s.mu.Lock()
	ch, ok := s.characteristics[c.UUID]
	s.mu.Unlock()

	if !ok {
		return ch, errorkinds.New(errorkinds.CharacteristicInvalid, 0,
			fault.Newf("characteristic %s is not resolved", c.UUID), at,
		)
	}

	return ch, nil
}

func (s *Service) setState(state api.ServiceState) {
	if api.ServiceState(s.state.Swap(uint32(state))) != state {
		s.handler.ServiceStateChanged(state)
	}
}
