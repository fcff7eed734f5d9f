package controller

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// characteristicBinding holds the characteristics that carry data on the
// target service.
type characteristicBinding struct {
	write  uuid.UUID
	notify uuid.UUID
	cccd   uuid.UUID

	// armed is set once notifications on the notify characteristic are enabled.
	armed bool
}

// bleSession is a connection to a Low Energy device over GATT.
type bleSession struct {
	c *Controller

	dev        bluetooth.DeviceData
	controller bluetooth.LowEnergyController
	service    bluetooth.LowEnergyService

	binding *characteristicBinding
}

// bleControllerHandler forwards GATT client callbacks to the controller's loop.
type bleControllerHandler struct {
	s *bleSession
}

// bleServiceHandler forwards GATT service callbacks to the controller's loop.
type bleServiceHandler struct {
	s *bleSession
}

func (c *Controller) connectLowEnergy(device bluetooth.DeviceData) {
	s := &bleSession{c: c, dev: device}

	controller, err := c.stack.NewLowEnergyController(device, &bleControllerHandler{s})
	if err != nil {
		c.publishError(err, errorkinds.BleControllerError, int(errorkinds.ControllerUnknown))
		return
	}
	s.controller = controller

	c.attach(s)

	if err := controller.ConnectToDevice(); err != nil {
		c.publishError(err, errorkinds.BleControllerError, int(errorkinds.ControllerConnection))
		c.clearSession()
	}
}

func (s *bleSession) device() bluetooth.DeviceData {
	return s.dev
}

func (s *bleSession) transport() bluetooth.Transport {
	return bluetooth.TransportGATT
}

// characteristic looks up a characteristic of the target service. It returns
// false and logs the condition if the service or characteristic is unusable.
func (s *bleSession) characteristic(id uuid.UUID) (bluetooth.Characteristic, bool) {
	fields := logrus.Fields{"address": s.dev.Address, "uuid": id}

	if s.service == nil {
		s.c.warn(errorkinds.ServiceNotFound, fields, "Target GATT service was not found")
		return bluetooth.Characteristic{}, false
	}

	ch := s.service.Characteristic(id)
	if !ch.IsValid() {
		s.c.warn(errorkinds.CharacteristicInvalid, fields, "Invalid GATT characteristic")
		return ch, false
	}

	return ch, true
}

func (s *bleSession) send(data []byte) {
	ch, ok := s.characteristic(s.c.characteristicUUID)
	if !ok {
		return
	}

	if err := s.service.WriteCharacteristic(ch, data, bluetooth.WriteWithResponse); err != nil {
		s.c.publishError(err, errorkinds.BleControllerError, int(errorkinds.ServiceCharacteristicWrite))
		return
	}

	s.c.log.WithFields(logrus.Fields{"address": s.dev.Address, "bytes": len(data)}).Debug("Sent GATT data")
}

func (s *bleSession) read() {
	ch, ok := s.characteristic(s.c.characteristicUUID)
	if !ok {
		return
	}

	if !ch.Properties.Has(bluetooth.PropertyRead) {
		s.c.warn(errorkinds.CharacteristicInvalid,
			logrus.Fields{"address": s.dev.Address, "uuid": ch.UUID},
			"GATT characteristic is not readable",
		)
		return
	}

	if err := s.service.ReadCharacteristic(ch); err != nil {
		s.c.publishError(err, errorkinds.BleControllerError, int(errorkinds.ServiceCharacteristicRead))
	}
}

func (s *bleSession) disconnect() bool {
	if err := s.controller.DisconnectFromDevice(); err != nil {
		s.c.publishError(err, errorkinds.BleControllerError, int(errorkinds.ControllerUnknown))
		return false
	}

	return true
}

func (s *bleSession) close() {
	if err := s.controller.DisconnectFromDevice(); err != nil {
		s.c.log.WithError(err).Debug("Cannot disconnect GATT client")
	}
}

// setupFailed publishes err. If the session is not connected yet, it is torn
// down without a ConnectionLost, so that the device can be connected again.
func (s *bleSession) setupFailed(err error, code int) {
	c := s.c

	c.publishError(err, errorkinds.BleControllerError, code)
	if c.ConnectionState() == StateConnected {
		return
	}

	c.log.WithField("address", s.dev.Address).Debug("GATT setup failed, dropping session")
	c.teardown()
}

// bind resolves the characteristic binding once the target service has
// discovered all its details, and arms notifications. The session is
// considered connected once notifications are armed, or immediately if
// they cannot be armed.
func (s *bleSession) bind() {
	c := s.c

	s.binding = &characteristicBinding{
		write:  c.characteristicUUID,
		notify: c.characteristicUUID,
		cccd:   bluetooth.ClientCharacteristicConfigurationUUID,
	}

	fields := logrus.Fields{"address": s.dev.Address, "uuid": s.binding.notify}

	ch, ok := s.characteristic(s.binding.notify)
	if !ok {
		c.established(s)
		return
	}

	if !ch.Properties.Has(bluetooth.PropertyNotify) {
		c.warn(errorkinds.CharacteristicInvalid, fields, "GATT characteristic does not support notifications")
		c.established(s)
		return
	}

	desc, ok := ch.Descriptor(s.binding.cccd)
	if !ok || !desc.IsValid() {
		c.warn(errorkinds.DescriptorMissing, fields, "Client characteristic configuration descriptor is missing")
		c.established(s)
		return
	}

	if err := s.service.WriteDescriptor(ch, desc, bluetooth.EnableNotificationValue); err != nil {
		c.publishError(err, errorkinds.BleControllerError, int(errorkinds.ServiceDescriptorWrite))
		c.established(s)
		return
	}

	c.log.WithFields(fields).Debug("Enabling GATT notifications")
}

func (h *bleControllerHandler) ControllerConnected() {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.log.WithField("address", s.dev.Address).Debug("GATT client connected, discovering services")
		s.c.setState(StateServiceDiscovery)

		if err := s.controller.DiscoverServices(); err != nil {
			s.setupFailed(err, int(errorkinds.ServiceOperation))
		}
	})
}

func (h *bleControllerHandler) ControllerDisconnected() {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.lost(s)
	})
}

func (h *bleControllerHandler) ServiceFound(service uuid.UUID) {
	s := h.s
	s.c.exec.Post(func() {
		c := s.c
		if !c.current(s) {
			return
		}

		log := c.log.WithFields(logrus.Fields{"address": s.dev.Address, "uuid": service})
		if service != c.serviceUUID || s.service != nil {
			log.Debug("Ignoring GATT service")
			return
		}

		svc, err := s.controller.CreateServiceObject(service, &bleServiceHandler{s})
		if err != nil {
			s.setupFailed(err, int(errorkinds.ServiceOperation))
			return
		}

		s.service = svc
		c.setState(StateCharacteristicSetup)
		log.Info("Target GATT service found, discovering details")

		if err := svc.DiscoverDetails(); err != nil {
			s.setupFailed(err, int(errorkinds.ServiceOperation))
		}
	})
}

func (h *bleControllerHandler) ServiceDiscoveryFinished() {
	s := h.s
	s.c.exec.Post(func() {
		c := s.c
		if !c.current(s) || s.service != nil {
			return
		}

		c.publishError(
			errorkinds.New(errorkinds.ServiceNotFound, 0, nil, "gatt-service-scan"),
			errorkinds.ServiceNotFound, 0,
		)
	})
}

func (h *bleControllerHandler) ControllerError(err error) {
	s := h.s
	s.c.exec.Post(func() {
		c := s.c
		if !c.current(s) {
			return
		}

		s.setupFailed(err, int(errorkinds.ControllerUnknown))
	})
}

func (h *bleServiceHandler) ServiceStateChanged(state bluetooth.ServiceState) {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.log.WithFields(logrus.Fields{"address": s.dev.Address, "state": state}).Debug("GATT service state changed")
		if state == bluetooth.ServiceDiscovered && s.binding == nil {
			s.bind()
		}
	})
}

func (h *bleServiceHandler) CharacteristicChanged(c uuid.UUID, value []byte) {
	h.characteristicValue(c, value)
}

func (h *bleServiceHandler) CharacteristicRead(c uuid.UUID, value []byte) {
	h.characteristicValue(c, value)
}

func (h *bleServiceHandler) characteristicValue(c uuid.UUID, value []byte) {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) || s.binding == nil || c != s.binding.notify {
			return
		}

		s.c.received(s, value)
	})
}

func (h *bleServiceHandler) CharacteristicWritten(c uuid.UUID, value []byte) {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.log.WithFields(logrus.Fields{
			"address": s.dev.Address,
			"uuid":    c,
			"bytes":   len(value),
		}).Debug("GATT characteristic written")
	})
}

func (h *bleServiceHandler) DescriptorWritten(d uuid.UUID, value []byte) {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) || s.binding == nil || d != s.binding.cccd || s.binding.armed {
			return
		}

		s.binding.armed = true
		s.c.log.WithField("address", s.dev.Address).Info("GATT notifications enabled")
		s.c.established(s)
	})
}

func (h *bleServiceHandler) ServiceError(err error) {
	s := h.s
	s.c.exec.Post(func() {
		c := s.c
		if !c.current(s) {
			return
		}

		// A failed notification setup leaves the session usable for sending.
		if s.binding != nil && !s.binding.armed && c.ConnectionState() == StateCharacteristicSetup {
			c.publishError(err, errorkinds.BleControllerError, int(errorkinds.ServiceOperation))
			c.established(s)
			return
		}

		s.setupFailed(err, int(errorkinds.ServiceOperation))
	})
}
