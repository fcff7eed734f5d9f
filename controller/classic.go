package controller

import (
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/errorkinds"
)

// classicSession is a connection to a Classic device over an RFCOMM channel.
type classicSession struct {
	c *Controller

	dev    bluetooth.DeviceData
	socket bluetooth.RFCOMMSocket

	// serialPortFound is set once the Serial Port service of the device
	// was reported by the service scan.
	serialPortFound bool
}

// serviceScanHandler forwards Classic service scan callbacks to the controller's loop.
type serviceScanHandler struct {
	c *Controller
}

// socketHandler forwards RFCOMM socket callbacks to the controller's loop.
type socketHandler struct {
	s *classicSession
}

func (c *Controller) connectClassic(device bluetooth.DeviceData) {
	s := &classicSession{c: c, dev: device}

	socket, err := c.stack.NewRFCOMMSocket(&socketHandler{s})
	if err != nil {
		c.publishError(err, errorkinds.SocketError, int(errorkinds.SocketUnknown))
		return
	}
	s.socket = socket

	if c.serviceAgent == nil {
		agent, err := c.stack.NewServiceDiscoveryAgent(device.Address, &serviceScanHandler{c})
		if err != nil {
			c.publishError(err, errorkinds.DiscoveryFailure, 0)
			return
		}

		c.serviceAgent = agent
	} else {
		c.stopServiceScan()
		c.serviceAgent.SetRemoteAddress(device.Address)
	}

	c.attach(s)
	c.store.ClearServices(device.Address)

	if err := c.serviceAgent.Start(); err != nil {
		c.publishError(err, errorkinds.DiscoveryFailure, 0)
		c.clearSession()
		return
	}

	c.serviceScan = true
}

func (c *Controller) stopServiceScan() {
	if !c.serviceScan {
		return
	}

	c.serviceScan = false
	if err := c.serviceAgent.Stop(); err != nil {
		c.log.WithError(err).Debug("Cannot stop service discovery")
	}
}

// activeClassic returns the active session if it is a Classic session to address.
func (c *Controller) activeClassic(address bluetooth.MacAddress) (*classicSession, bool) {
	s, ok := c.session.(*classicSession)
	if !ok || s.dev.Address != address {
		return nil, false
	}

	return s, true
}

func (s *classicSession) device() bluetooth.DeviceData {
	return s.dev
}

func (s *classicSession) transport() bluetooth.Transport {
	return bluetooth.TransportRFCOMM
}

func (s *classicSession) send(data []byte) {
	if !s.socket.IsOpen() {
		s.c.warn(errorkinds.WriteNotPermittedNoActiveSession,
			logrus.Fields{"address": s.dev.Address, "socket": s.socket.State()},
			"RFCOMM socket is not open, dropping outbound data",
		)
		return
	}

	n, err := s.socket.Write(data)
	if err != nil {
		s.c.publishError(err, errorkinds.SocketError, int(errorkinds.SocketOperationError))
		return
	}

	s.c.log.WithFields(logrus.Fields{"address": s.dev.Address, "bytes": n}).Debug("Sent RFCOMM data")
}

func (s *classicSession) read() {
	s.c.log.WithField("address", s.dev.Address).Debug("RFCOMM data is delivered as it arrives, ignoring read request")
}

func (s *classicSession) disconnect() bool {
	if s.socket.State() == bluetooth.SocketUnconnected {
		s.c.stopServiceScan()
		return false
	}

	if err := s.socket.Close(); err != nil {
		s.c.log.WithError(err).Debug("Cannot close RFCOMM socket")
	}

	return true
}

func (s *classicSession) close() {
	s.c.stopServiceScan()

	if s.socket.State() == bluetooth.SocketUnconnected {
		return
	}

	if err := s.socket.Close(); err != nil {
		s.c.log.WithError(err).Debug("Cannot close RFCOMM socket")
	}
}

func (h *serviceScanHandler) ServiceFound(service bluetooth.ServiceData) {
	h.c.exec.Post(func() {
		c := h.c

		if service.Name == "" {
			service.Name = bluetooth.ServiceName(service.UUID)
		}

		if c.store.AddService(service) {
			c.log.WithFields(logrus.Fields{
				"address": service.Address,
				"uuid":    service.UUID,
				"name":    service.Name,
			}).Debug("Service discovered")
			c.publish(bluetooth.EventServiceDiscovered, service)
		}

		if service.UUID != c.serialPortUUID {
			return
		}

		s, ok := c.activeClassic(service.Address)
		if !ok || s.socket.State() != bluetooth.SocketUnconnected {
			return
		}

		s.serialPortFound = true
		c.log.WithField("address", service.Address).Info("Serial Port service found, opening RFCOMM channel")

		if err := s.socket.ConnectToService(service.Address, service.UUID); err != nil {
			c.publishError(err, errorkinds.SocketError, int(errorkinds.SocketUnknown))
			c.teardown()
		}
	})
}

func (h *serviceScanHandler) ServiceScanFinished(address bluetooth.MacAddress) {
	h.c.exec.Post(func() {
		c := h.c

		s, ok := c.activeClassic(address)
		if !ok {
			c.log.WithField("address", address).Debug("Ignoring finished service scan of inactive device")
			return
		}

		c.serviceScan = false
		if s.serialPortFound {
			return
		}

		c.publishError(
			errorkinds.New(errorkinds.ServiceNotFound, 0, nil, "classic-service-scan"),
			errorkinds.ServiceNotFound, 0,
		)
		c.teardown()
	})
}

func (h *serviceScanHandler) ServiceScanError(address bluetooth.MacAddress, err error) {
	h.c.exec.Post(func() {
		c := h.c

		s, ok := c.activeClassic(address)
		if !ok {
			c.log.WithError(err).WithField("address", address).Debug("Ignoring service scan error of inactive device")
			return
		}

		c.serviceScan = false

		c.publishError(err, errorkinds.DiscoveryFailure, 0)
		if !s.serialPortFound {
			c.teardown()
		}
	})
}

func (h *socketHandler) SocketConnected() {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.established(s)
	})
}

func (h *socketHandler) SocketDisconnected() {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.lost(s)
	})
}

func (h *socketHandler) SocketReadyRead() {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.received(s, s.socket.ReadAll())
	})
}

func (h *socketHandler) SocketError(err error) {
	s := h.s
	s.c.exec.Post(func() {
		if !s.c.current(s) {
			return
		}

		s.c.publishError(err, errorkinds.SocketError, int(errorkinds.SocketUnknown))

		// A channel that never connected will not report a disconnection.
		if s.c.ConnectionState() != StateConnected {
			s.c.teardown()
		}
	})
}
